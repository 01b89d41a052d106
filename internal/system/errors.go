package system

import "codeberg.org/mutker/smartinfra/internal/errors"

const (
	ErrProcRead  = errors.ErrorCode("system_proc_read_failed")
	ErrProcParse = errors.ErrorCode("system_proc_parse_failed")
)
