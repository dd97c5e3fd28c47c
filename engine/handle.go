package engine

import (
	"github.com/mimo-os/runtime/procstore"
)

// Handle is the caller's reference to a running execution. It is returned
// by Engine.Start; there is no global lookup of running executions.
type Handle struct {
	x *execution
}

// ID returns the execution record's ID.
func (h *Handle) ID() string {
	return h.x.rec.ID
}

// SendEvent delivers an external event to the execution. Unmatched events
// are ignored by the machine; sending to a finished execution returns
// ErrExecutionFinished.
func (h *Handle) SendEvent(event string) error {
	select {
	case <-h.x.quit:
		return ErrExecutionFinished
	default:
	}
	h.x.send(message{kind: msgExternalEvent, event: event})
	return nil
}

// Interrupt stops the execution with status "interrupted". It takes effect
// at the next message the control loop processes; the result of any
// in-flight action is discarded.
func (h *Handle) Interrupt(reason string) error {
	select {
	case <-h.x.quit:
		return ErrExecutionFinished
	default:
	}
	h.x.send(message{kind: msgInterrupt, reason: reason})
	return nil
}

// State returns a read-only snapshot of the current state name and context.
// It never blocks the running machine.
func (h *Handle) State() (string, map[string]any) {
	h.x.mu.RLock()
	defer h.x.mu.RUnlock()
	return h.x.rec.CurrentState, cloneContext(h.x.rec.Context)
}

// Snapshot returns a deep copy of the full execution record, including its
// history.
func (h *Handle) Snapshot() *procstore.Execution {
	h.x.mu.RLock()
	defer h.x.mu.RUnlock()
	return h.x.rec.Clone()
}

// Done returns a channel that delivers the final outcome exactly once when
// the execution reaches a terminal status.
func (h *Handle) Done() <-chan Outcome {
	return h.x.outcome
}
