package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrProcedureNotFound is returned by Start when the named procedure
// version cannot be loaded. No execution record is created.
var ErrProcedureNotFound = errors.New("procedure not found")

// ErrActionCrashed is the normalized error for a handler panic. It is
// handled exactly like a handler-returned error.
var ErrActionCrashed = errors.New("task_crashed")

// ErrActionTimeout is the normalized error synthesized when a handler
// neither returns nor crashes within its per-action timeout.
var ErrActionTimeout = errors.New("action_timeout")

// ErrExecutionFinished is returned by handle operations on an execution
// that has already reached a terminal status.
var ErrExecutionFinished = errors.New("execution already finished")

// reasonOverallTimeout is recorded on an execution killed by the
// overall-timeout watchdog.
const reasonOverallTimeout = "overall_timeout_exceeded"

// ContextValidationError is returned by Start in strict mode when the
// initial context violates the procedure's context schema.
type ContextValidationError struct {
	Violations []string
}

func (e *ContextValidationError) Error() string {
	return fmt.Sprintf("initial context invalid: %s", strings.Join(e.Violations, "; "))
}
