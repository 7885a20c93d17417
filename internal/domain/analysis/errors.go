package analysis

import (
	"errors"
	"fmt"
)

// ErrValidation is returned for empty or otherwise unusable input. Nothing is invoked.
var ErrValidation = errors.New("validation failed")

// ErrInvalidDocument indicates an uploaded structured document did not parse as JSON.
var ErrInvalidDocument = errors.New("invalid JSON document")

// InvocationError means the analyzer could not be started, crashed, exited
// non-zero or was abandoned after the timeout.
type InvocationError struct {
	Err    error
	Stderr string
}

func (e *InvocationError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("analyzer invocation failed: %v: %s", e.Err, e.Stderr)
	}
	return fmt.Sprintf("analyzer invocation failed: %v", e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// DiagnosticError means the analyzer wrote something unexpected on its diagnostic channel.
type DiagnosticError struct {
	Stderr string
}

func (e *DiagnosticError) Error() string {
	return fmt.Sprintf("analyzer diagnostic output: %s", e.Stderr)
}

// NotificationError reports a failed relay to the messaging sink.
type NotificationError struct {
	StatusCode int
	Err        error
}

func (e *NotificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("notification failed: %v", e.Err)
	}
	return fmt.Sprintf("notification failed: sink returned status %d", e.StatusCode)
}

func (e *NotificationError) Unwrap() error { return e.Err }

// IsAnalyzerFailure reports whether err should be absorbed by the fallback synthesizer.
func IsAnalyzerFailure(err error) bool {
	var ie *InvocationError
	var de *DiagnosticError
	return errors.As(err, &ie) || errors.As(err, &de)
}

// ErrSinkNotConfigured is returned by notifiers without a sink address.
var ErrSinkNotConfigured = errors.New("messaging webhook url not configured")
