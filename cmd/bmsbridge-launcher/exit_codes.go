package main

import (
	"errors"

	"bmsbridge-launcher/internal/cli/output"
	"bmsbridge-launcher/internal/monitor"
	"bmsbridge-launcher/internal/settings"
)

// Exit codes for bmsbridge-launcher so scripts can tell failures apart

const (
	// ExitCodeSuccess indicates normal program termination
	ExitCodeSuccess = 0

	// ExitCodeGeneralError indicates a generic error (default)
	ExitCodeGeneralError = 1

	// ExitCodeExecutableNotFound indicates the server binary is missing
	ExitCodeExecutableNotFound = 2

	// ExitCodeServerUnreachable indicates the server's HTTP API did not answer
	ExitCodeServerUnreachable = 3

	// ExitCodeConfigError indicates configuration validation failed
	ExitCodeConfigError = 4

	// ExitCodeCancelled indicates the user declined a confirmation
	ExitCodeCancelled = 5
)

// exitCodeFor maps an error returned by a command onto an exit code
func exitCodeFor(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var se output.StructuredError
	if errors.As(err, &se) && se.Code == output.ErrCodeConfigInvalid {
		return ExitCodeConfigError
	}

	switch {
	case errors.Is(err, monitor.ErrExecutableNotFound):
		return ExitCodeExecutableNotFound
	case errors.Is(err, monitor.ErrHealthUnreachable):
		return ExitCodeServerUnreachable
	case errors.Is(err, settings.ErrAddCancelled):
		return ExitCodeCancelled
	default:
		return ExitCodeGeneralError
	}
}
