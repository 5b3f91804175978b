package output

import "errors"

// Error codes reported by the CLI
const (
	ErrCodeConfigInvalid       = "CONFIG_INVALID"
	ErrCodeExecutableNotFound  = "EXECUTABLE_NOT_FOUND"
	ErrCodeServerUnreachable   = "SERVER_UNREACHABLE"
	ErrCodeInvalidOutputFormat = "INVALID_OUTPUT_FORMAT"
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeSettingsInvalid     = "SETTINGS_INVALID"
	ErrCodeCancelled           = "CANCELLED"
	ErrCodeJournalLocked       = "JOURNAL_LOCKED"
	ErrCodeOperationFailed     = "OPERATION_FAILED"
)

// StructuredError is a CLI failure with a stable code and an optional hint
// on how to recover. It is a value type; the With* methods return copies.
type StructuredError struct {
	Code            string                 `json:"code" yaml:"code"`
	Message         string                 `json:"message" yaml:"message"`
	Guidance        string                 `json:"guidance,omitempty" yaml:"guidance,omitempty"`
	RecoveryCommand string                 `json:"recovery_command,omitempty" yaml:"recovery_command,omitempty"`
	Context         map[string]interface{} `json:"context,omitempty" yaml:"context,omitempty"`

	cause error
}

func (e StructuredError) Error() string {
	return e.Message
}

// Unwrap exposes the error the structured error was built from, if any
func (e StructuredError) Unwrap() error {
	return e.cause
}

// NewStructuredError creates an error with code and message
func NewStructuredError(code, message string) StructuredError {
	return StructuredError{Code: code, Message: message}
}

// Wrap creates an error with code whose message and cause come from err
func Wrap(err error, code string) StructuredError {
	return StructuredError{Code: code, Message: err.Error(), cause: err}
}

func (e StructuredError) WithGuidance(guidance string) StructuredError {
	e.Guidance = guidance
	return e
}

func (e StructuredError) WithRecoveryCommand(cmd string) StructuredError {
	e.RecoveryCommand = cmd
	return e
}

// WithContext attaches a key/value pair. The receiver's map is not shared
// with the copy.
func (e StructuredError) WithContext(key string, value interface{}) StructuredError {
	ctx := make(map[string]interface{}, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	e.Context = ctx
	return e
}

// FromError returns the StructuredError inside err, or wraps err with code
func FromError(err error, code string) StructuredError {
	var se StructuredError
	if errors.As(err, &se) {
		return se
	}
	return Wrap(err, code)
}
