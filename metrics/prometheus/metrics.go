// Package prometheus provides Prometheus metrics exporters for the procedure runtime.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mimo"

var (
	// executionsActive is a gauge of currently running executions.
	executionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executions_active",
			Help:      "Number of currently running procedure executions",
		},
	)

	// executionDuration is a histogram of total execution duration.
	executionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Histogram of total procedure execution duration in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"procedure", "status"}, // status: completed, failed, interrupted
	)

	// executionsTotal is a counter of finished executions.
	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Total number of finished procedure executions",
		},
		[]string{"procedure", "status"},
	)

	// transitionsTotal is a counter of state transitions.
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of state transitions",
		},
		[]string{"procedure", "event"}, // event: success, error, custom events
	)

	// actionDuration is a histogram of action handler duration.
	actionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Duration of action handler invocations in seconds",
			Buckets:   prometheus.DefBuckets, // .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10
		},
		[]string{"handler"},
	)

	// actionsTotal is a counter of action handler invocations.
	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Total number of action handler invocations",
		},
		[]string{"handler", "status"}, // status: success, error
	)

	// actionRetriesTotal is a counter of action retries.
	actionRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_retries_total",
			Help:      "Total number of action retries",
		},
		[]string{"handler"},
	)

	// procedureCacheTotal is a counter of registry cache lookups.
	procedureCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "procedure_cache_total",
			Help:      "Total number of procedure cache lookups",
		},
		[]string{"result"}, // result: hit, miss
	)

	// proceduresRegisteredTotal is a counter of registered procedure versions.
	proceduresRegisteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "procedures_registered_total",
			Help:      "Total number of registered procedure versions",
		},
		[]string{"procedure"},
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		executionsActive,
		executionDuration,
		executionsTotal,
		transitionsTotal,
		actionDuration,
		actionsTotal,
		actionRetriesTotal,
		procedureCacheTotal,
		proceduresRegisteredTotal,
	}
)

// RecordExecutionStart records an execution entering its initial state.
func RecordExecutionStart() {
	executionsActive.Inc()
}

// RecordExecutionEnd records a finished execution with its terminal status.
func RecordExecutionEnd(procedure, status string, durationSeconds float64) {
	executionsActive.Dec()
	executionDuration.WithLabelValues(procedure, status).Observe(durationSeconds)
	executionsTotal.WithLabelValues(procedure, status).Inc()
}

// RecordTransition records a state transition.
func RecordTransition(procedure, event string) {
	transitionsTotal.WithLabelValues(procedure, event).Inc()
}

// RecordAction records an action handler invocation.
func RecordAction(handler, status string, durationSeconds float64) {
	actionDuration.WithLabelValues(handler).Observe(durationSeconds)
	actionsTotal.WithLabelValues(handler, status).Inc()
}

// RecordActionRetry records a retry of a failed action.
func RecordActionRetry(handler string) {
	actionRetriesTotal.WithLabelValues(handler).Inc()
}

// RecordCacheLookup records a registry cache lookup result.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	procedureCacheTotal.WithLabelValues(result).Inc()
}

// RecordProcedureRegistered records a new procedure version registration.
func RecordProcedureRegistered(procedure string) {
	proceduresRegisteredTotal.WithLabelValues(procedure).Inc()
}
