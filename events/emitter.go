package events

import "time"

// Emitter publishes events for one execution with shared metadata.
// A nil Emitter (or one without a bus) discards everything, so callers
// never need to guard emission sites.
type Emitter struct {
	bus         *Bus
	executionID string
	procedure   string
	version     string
}

// NewEmitter creates an emitter bound to one execution.
func NewEmitter(bus *Bus, executionID, procedure, version string) *Emitter {
	return &Emitter{
		bus:         bus,
		executionID: executionID,
		procedure:   procedure,
		version:     version,
	}
}

func (e *Emitter) emit(eventType EventType, data EventData) {
	if e == nil || e.bus == nil {
		return
	}

	e.bus.Publish(&Event{
		Type:        eventType,
		Timestamp:   time.Now(),
		ExecutionID: e.executionID,
		Procedure:   e.procedure,
		Version:     e.version,
		Data:        data,
	})
}

// ExecutionStarted emits the execution.started event.
func (e *Emitter) ExecutionStarted(initialState string) {
	e.emit(EventExecutionStarted, &ExecutionStartedData{InitialState: initialState})
}

// ExecutionTransitioned emits the execution.transitioned event.
func (e *Emitter) ExecutionTransitioned(from, to, event string) {
	e.emit(EventExecutionTransitioned, &ExecutionTransitionedData{From: from, To: to, Event: event})
}

// ExecutionCompleted emits the execution.completed event.
func (e *Emitter) ExecutionCompleted(duration time.Duration) {
	e.emit(EventExecutionCompleted, &ExecutionFinishedData{Status: "completed", Duration: duration})
}

// ExecutionFailed emits the execution.failed event.
func (e *Emitter) ExecutionFailed(duration time.Duration, reason string) {
	e.emit(EventExecutionFailed, &ExecutionFinishedData{Status: "failed", Duration: duration, Error: reason})
}

// ExecutionInterrupted emits the execution.interrupted event.
func (e *Emitter) ExecutionInterrupted(duration time.Duration, reason string) {
	e.emit(EventExecutionInterrupted, &ExecutionFinishedData{Status: "interrupted", Duration: duration, Error: reason})
}

// ActionStarted emits the action.started event.
func (e *Emitter) ActionStarted(state, handler string) {
	e.emit(EventActionStarted, &ActionStartedData{State: state, Handler: handler})
}

// ActionCompleted emits the action.completed event.
func (e *Emitter) ActionCompleted(state, handler string, duration time.Duration) {
	e.emit(EventActionCompleted, &ActionCompletedData{State: state, Handler: handler, Duration: duration})
}

// ActionFailed emits the action.failed event.
func (e *Emitter) ActionFailed(state, handler, reason string, duration time.Duration) {
	e.emit(EventActionFailed, &ActionFailedData{State: state, Handler: handler, Reason: reason, Duration: duration})
}

// ActionRetried emits the action.retried event.
func (e *Emitter) ActionRetried(state, handler string, attempt int, backoff time.Duration) {
	e.emit(EventActionRetried, &ActionRetriedData{State: state, Handler: handler, Attempt: attempt, Backoff: backoff})
}
