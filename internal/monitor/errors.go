package monitor

import (
	"errors"
	"fmt"
)

var (
	// ErrExecutableNotFound means the server binary is missing at its expected path
	ErrExecutableNotFound = errors.New("server executable not found")

	// ErrAlreadyRunning means Start was called while a live handle exists
	ErrAlreadyRunning = errors.New("server already running")

	// ErrProcessStart wraps launch failures
	ErrProcessStart = errors.New("failed to start server process")

	// ErrHealthUnreachable means the health endpoint did not answer
	ErrHealthUnreachable = errors.New("health endpoint unreachable")

	// ErrHealthStatus means the health endpoint answered with a non-2xx code
	ErrHealthStatus = errors.New("health endpoint returned non-success status")

	// ErrStopTargetNotFound means there was nothing to stop
	ErrStopTargetNotFound = errors.New("no server process to stop")

	// ErrTerminationFailed means the kill command itself failed
	ErrTerminationFailed = errors.New("failed to terminate server process tree")
)

// HealthStatusError carries the HTTP status of a non-2xx health response
type HealthStatusError struct {
	Code   int
	Status string
}

func (e *HealthStatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("API returned status %s", e.Status)
	}
	return fmt.Sprintf("API returned status %d", e.Code)
}

func (e *HealthStatusError) Unwrap() error {
	return ErrHealthStatus
}
