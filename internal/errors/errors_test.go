package errors_test

import (
	"fmt"
	"testing"

	"codeberg.org/mutker/smartinfra/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	f := errors.New()

	assert.Equal(t, "Invalid port", f.New(errors.ErrInvalidPort).Error())
	assert.Equal(t, "custom", f.WithMessage(errors.ErrInvalidPort, "custom").Error())
	assert.Equal(t, "Invalid port: 70000", f.WithData(errors.ErrInvalidPort, 70000).Error())
	assert.Equal(t, "dcim_unknown", f.New(errors.ErrorCode("dcim_unknown")).Error())
}

func TestWrapUnwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := errors.New().Wrap(errors.ErrInitFailed, cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Initialization failed: boom", err.Error())
	assert.Equal(t, errors.ErrInitFailed, err.Code())
}

func TestHasCode(t *testing.T) {
	f := errors.New()
	inner := f.New(errors.ErrInvalidPort)
	outer := f.Wrap(errors.ErrInvalidConfig, inner)
	wrapped := fmt.Errorf("loading: %w", outer)

	assert.True(t, errors.HasCode(wrapped, errors.ErrInvalidConfig))
	assert.True(t, errors.HasCode(wrapped, errors.ErrInvalidPort))
	assert.False(t, errors.HasCode(wrapped, errors.ErrTimeout))
	assert.False(t, errors.HasCode(fmt.Errorf("plain"), errors.ErrTimeout))
	assert.False(t, errors.HasCode(nil, errors.ErrTimeout))
}
