package tools

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrUnavailable indicates the tool's transport is gone: the serving endpoint
// dropped the connection or the session was closed. The agent treats it as
// terminal for the run; there is no implicit reconnection.
var ErrUnavailable = errors.New("tool unavailable")

// ExecutionError is a single failed invocation attempt: a remote call error,
// a timeout, rejected arguments, or a malformed payload. It is not terminal;
// the agent surfaces it to the model as tool-result text.
type ExecutionError struct {
	ToolName string
	Cause    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s: %s", e.ToolName, e.Cause.Error())
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// NewExecutionError wraps a tool invocation failure.
func NewExecutionError(toolName string, cause error) *ExecutionError {
	return &ExecutionError{
		ToolName: toolName,
		Cause:    cause,
	}
}
