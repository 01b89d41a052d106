package pid_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"codeberg.org/mutker/smartinfra/internal/errors"
	"codeberg.org/mutker/smartinfra/internal/pid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndRemove(t *testing.T) {
	f := pid.New(t.TempDir(), "monitor")
	assert.Equal(t, "smartinfra-monitor.pid", filepath.Base(f.Path()))

	require.NoError(t, f.Write())
	data, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	require.NoError(t, f.Remove())
	assert.NoFileExists(t, f.Path())
	require.NoError(t, f.Remove())
}

func TestWriteRefusesLiveProcess(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, pid.New(dir, "mock-dcim").Write())

	err := pid.New(dir, "mock-dcim").Write()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrAlreadyRunning))

	// Other modes are independent.
	assert.NoError(t, pid.New(dir, "demo-api").Write())
}

func TestWriteReplacesStaleFile(t *testing.T) {
	f := pid.New(t.TempDir(), "monitor")
	require.NoError(t, os.WriteFile(f.Path(), []byte("not-a-pid"), 0o600))

	require.NoError(t, f.Write())
	data, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
}
