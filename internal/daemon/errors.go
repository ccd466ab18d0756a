package daemon

import "errors"

var (
	// ErrMissingLogger is returned when logger is not provided
	ErrMissingLogger = errors.New("logger is required")

	// ErrMissingAPIHandler is returned when API handler is not provided
	ErrMissingAPIHandler = errors.New("API handler is required")

	// ErrManagerNotStarted is returned when trying to shutdown a manager that hasn't started
	ErrManagerNotStarted = errors.New("manager not started")

	// ErrStreamFailed is returned when a session's stream entered ERROR.
	ErrStreamFailed = errors.New("stream entered ERROR")

	// ErrUnknownDriver is returned for driver names the daemon does not build.
	ErrUnknownDriver = errors.New("unknown driver")
)
