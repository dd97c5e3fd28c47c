package events

import "time"

// EventType identifies the type of event emitted by the runtime.
type EventType string

const (
	// EventExecutionStarted marks an execution entering its initial state.
	EventExecutionStarted EventType = "execution.started"
	// EventExecutionTransitioned marks a state transition.
	EventExecutionTransitioned EventType = "execution.transitioned"
	// EventExecutionCompleted marks an execution reaching a terminal state.
	EventExecutionCompleted EventType = "execution.completed"
	// EventExecutionFailed marks an execution ending in failure.
	EventExecutionFailed EventType = "execution.failed"
	// EventExecutionInterrupted marks a caller-initiated interrupt.
	EventExecutionInterrupted EventType = "execution.interrupted"

	// EventActionStarted marks an action dispatch.
	EventActionStarted EventType = "action.started"
	// EventActionCompleted marks an action returning successfully.
	EventActionCompleted EventType = "action.completed"
	// EventActionFailed marks an action error, crash, or timeout.
	EventActionFailed EventType = "action.failed"
	// EventActionRetried marks a retry of a failed action.
	EventActionRetried EventType = "action.retried"

	// EventProcedureRegistered marks a new procedure version registration.
	EventProcedureRegistered EventType = "procedure.registered"
	// EventProcedureLoaded marks a procedure load through the registry.
	EventProcedureLoaded EventType = "procedure.loaded"
)

// EventData is a marker interface for event payloads.
type EventData interface {
	eventData()
}

// Event represents a runtime event delivered to listeners.
type Event struct {
	Type        EventType
	Timestamp   time.Time
	ExecutionID string
	Procedure   string
	Version     string
	Data        EventData
}

// baseEventData provides a shared marker implementation for all payloads.
type baseEventData struct{}

func (baseEventData) eventData() {}

// ExecutionStartedData is the payload of execution.started.
type ExecutionStartedData struct {
	baseEventData
	InitialState string
}

// ExecutionTransitionedData is the payload of execution.transitioned.
type ExecutionTransitionedData struct {
	baseEventData
	From  string
	To    string
	Event string
}

// ExecutionFinishedData is the payload of execution.completed,
// execution.failed, and execution.interrupted.
type ExecutionFinishedData struct {
	baseEventData
	Status   string
	Duration time.Duration
	Error    string
}

// ActionStartedData is the payload of action.started.
type ActionStartedData struct {
	baseEventData
	State   string
	Handler string
}

// ActionCompletedData is the payload of action.completed.
type ActionCompletedData struct {
	baseEventData
	State    string
	Handler  string
	Duration time.Duration
}

// ActionFailedData is the payload of action.failed.
type ActionFailedData struct {
	baseEventData
	State    string
	Handler  string
	Reason   string
	Duration time.Duration
}

// ActionRetriedData is the payload of action.retried.
type ActionRetriedData struct {
	baseEventData
	State   string
	Handler string
	Attempt int
	Backoff time.Duration
}

// ProcedureRegisteredData is the payload of procedure.registered.
type ProcedureRegisteredData struct {
	baseEventData
	Hash string
}

// ProcedureLoadedData is the payload of procedure.loaded.
type ProcedureLoadedData struct {
	baseEventData
	CacheHit bool
}
