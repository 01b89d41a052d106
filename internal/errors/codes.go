package errors

// Shared error codes. Packages declare their own, more specific codes
// next to the code that returns them.
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrAlreadyRunning  ErrorCode = "already_running"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrInvalidMode     ErrorCode = "invalid_mode"
	ErrInvalidPort     ErrorCode = "invalid_port"
	ErrInvalidInterval ErrorCode = "invalid_interval"
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Lifecycle errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"
	ErrServeFailed    ErrorCode = "serve_failed"
	ErrTimeout        ErrorCode = "operation_timeout"

	// Self-test errors
	ErrSelfTestFailed ErrorCode = "self_test_failed"
)

var errorMessages = map[ErrorCode]string{
	ErrInternal:        "Internal error occurred",
	ErrInvalidArgument: "Invalid argument provided",
	ErrAlreadyRunning:  "Another instance is already running",
	ErrInvalidConfig:   "Invalid configuration",
	ErrReadConfig:      "Failed to read configuration",
	ErrBindFlags:       "Failed to bind flags",
	ErrInvalidMode:     "Invalid operation mode",
	ErrInvalidPort:     "Invalid port",
	ErrInvalidInterval: "Invalid interval value",
	ErrInvalidLogLevel: "Invalid log level",
	ErrInitFailed:      "Initialization failed",
	ErrShutdownFailed:  "Shutdown failed",
	ErrServeFailed:     "Server stopped unexpectedly",
	ErrTimeout:         "Operation timed out",
	ErrSelfTestFailed:  "Self-test failed",
}

// GetErrorMessage returns the default message for a code, or the code
// itself when none is registered.
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
