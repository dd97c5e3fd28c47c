// Package prometheus provides Prometheus metrics exporters for the procedure runtime.
package prometheus

import (
	"github.com/mimo-os/runtime/events"
)

// Status constants for metric labels.
const (
	statusSuccess = "success"
	statusError   = "error"
)

// MetricsListener records runtime events as Prometheus metrics.
// It implements the events.Listener signature and should be registered
// with an EventBus using SubscribeAll.
type MetricsListener struct{}

// NewMetricsListener creates a new MetricsListener.
func NewMetricsListener() *MetricsListener {
	return &MetricsListener{}
}

// Handle processes an event and records relevant metrics.
// This method is designed to be used with EventBus.SubscribeAll.
func (l *MetricsListener) Handle(event *events.Event) {
	//exhaustive:ignore
	switch event.Type {
	case events.EventExecutionStarted:
		RecordExecutionStart()
	case events.EventExecutionCompleted,
		events.EventExecutionFailed,
		events.EventExecutionInterrupted:
		l.handleExecutionFinished(event)
	case events.EventExecutionTransitioned:
		l.handleTransitioned(event)
	case events.EventActionCompleted:
		l.handleActionCompleted(event)
	case events.EventActionFailed:
		l.handleActionFailed(event)
	case events.EventActionRetried:
		l.handleActionRetried(event)
	case events.EventProcedureLoaded:
		l.handleProcedureLoaded(event)
	case events.EventProcedureRegistered:
		RecordProcedureRegistered(event.Procedure)
	default:
		// Ignore events that don't have metrics
	}
}

func (l *MetricsListener) handleExecutionFinished(event *events.Event) {
	if data, ok := event.Data.(*events.ExecutionFinishedData); ok {
		RecordExecutionEnd(event.Procedure, data.Status, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleTransitioned(event *events.Event) {
	if data, ok := event.Data.(*events.ExecutionTransitionedData); ok {
		RecordTransition(event.Procedure, data.Event)
	}
}

func (l *MetricsListener) handleActionCompleted(event *events.Event) {
	if data, ok := event.Data.(*events.ActionCompletedData); ok {
		RecordAction(data.Handler, statusSuccess, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleActionFailed(event *events.Event) {
	if data, ok := event.Data.(*events.ActionFailedData); ok {
		RecordAction(data.Handler, statusError, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleActionRetried(event *events.Event) {
	if data, ok := event.Data.(*events.ActionRetriedData); ok {
		RecordActionRetry(data.Handler)
	}
}

func (l *MetricsListener) handleProcedureLoaded(event *events.Event) {
	if data, ok := event.Data.(*events.ProcedureLoadedData); ok {
		RecordCacheLookup(data.CacheHit)
	}
}

// Listener returns an events.Listener function that can be registered with an EventBus.
func (l *MetricsListener) Listener() events.Listener {
	return l.Handle
}
