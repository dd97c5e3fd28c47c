package prometheus

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mimo-os/runtime/events"
)

func TestRecordExecutionStartEnd(t *testing.T) {
	executionsActive.Set(0)
	executionDuration.Reset()
	executionsTotal.Reset()

	RecordExecutionStart()
	active := testutil.ToFloat64(executionsActive)
	if active != 1 {
		t.Errorf("Expected 1 active execution, got %f", active)
	}

	RecordExecutionStart()
	active = testutil.ToFloat64(executionsActive)
	if active != 2 {
		t.Errorf("Expected 2 active executions, got %f", active)
	}

	RecordExecutionEnd("onboarding", "completed", 5.0)
	active = testutil.ToFloat64(executionsActive)
	if active != 1 {
		t.Errorf("Expected 1 active execution after end, got %f", active)
	}

	RecordExecutionEnd("onboarding", "failed", 2.0)
	active = testutil.ToFloat64(executionsActive)
	if active != 0 {
		t.Errorf("Expected 0 active executions after end, got %f", active)
	}

	completed := testutil.ToFloat64(executionsTotal.WithLabelValues("onboarding", "completed"))
	failed := testutil.ToFloat64(executionsTotal.WithLabelValues("onboarding", "failed"))
	if completed != 1 {
		t.Errorf("Expected 1 completed execution, got %f", completed)
	}
	if failed != 1 {
		t.Errorf("Expected 1 failed execution, got %f", failed)
	}
}

func TestRecordTransition(t *testing.T) {
	transitionsTotal.Reset()

	RecordTransition("onboarding", "success")
	RecordTransition("onboarding", "success")
	RecordTransition("onboarding", "error")

	successCount := testutil.ToFloat64(transitionsTotal.WithLabelValues("onboarding", "success"))
	errorCount := testutil.ToFloat64(transitionsTotal.WithLabelValues("onboarding", "error"))

	if successCount != 2 {
		t.Errorf("Expected 2 success transitions, got %f", successCount)
	}
	if errorCount != 1 {
		t.Errorf("Expected 1 error transition, got %f", errorCount)
	}
}

func TestRecordAction(t *testing.T) {
	actionDuration.Reset()
	actionsTotal.Reset()

	RecordAction("fetch_profile", "success", 0.5)
	RecordAction("fetch_profile", "success", 1.0)
	RecordAction("send_email", "error", 0.2)

	successCount := testutil.ToFloat64(actionsTotal.WithLabelValues("fetch_profile", "success"))
	errorCount := testutil.ToFloat64(actionsTotal.WithLabelValues("send_email", "error"))

	if successCount != 2 {
		t.Errorf("Expected 2 success actions, got %f", successCount)
	}
	if errorCount != 1 {
		t.Errorf("Expected 1 error action, got %f", errorCount)
	}

	count := testutil.CollectAndCount(actionDuration)
	if count == 0 {
		t.Error("Expected non-zero histogram observations")
	}
}

func TestRecordActionRetry(t *testing.T) {
	actionRetriesTotal.Reset()

	RecordActionRetry("fetch_profile")
	RecordActionRetry("fetch_profile")

	retries := testutil.ToFloat64(actionRetriesTotal.WithLabelValues("fetch_profile"))
	if retries != 2 {
		t.Errorf("Expected 2 retries, got %f", retries)
	}
}

func TestRecordCacheLookup(t *testing.T) {
	procedureCacheTotal.Reset()

	RecordCacheLookup(true)
	RecordCacheLookup(true)
	RecordCacheLookup(false)

	hits := testutil.ToFloat64(procedureCacheTotal.WithLabelValues("hit"))
	misses := testutil.ToFloat64(procedureCacheTotal.WithLabelValues("miss"))

	if hits != 2 {
		t.Errorf("Expected 2 cache hits, got %f", hits)
	}
	if misses != 1 {
		t.Errorf("Expected 1 cache miss, got %f", misses)
	}
}

func TestRecordProcedureRegistered(t *testing.T) {
	proceduresRegisteredTotal.Reset()

	RecordProcedureRegistered("onboarding")
	RecordProcedureRegistered("onboarding")
	RecordProcedureRegistered("billing")

	onboarding := testutil.ToFloat64(proceduresRegisteredTotal.WithLabelValues("onboarding"))
	billing := testutil.ToFloat64(proceduresRegisteredTotal.WithLabelValues("billing"))

	if onboarding != 2 {
		t.Errorf("Expected 2 onboarding registrations, got %f", onboarding)
	}
	if billing != 1 {
		t.Errorf("Expected 1 billing registration, got %f", billing)
	}
}

func TestNewExporter(t *testing.T) {
	exporter := NewExporter(":9091")
	if exporter == nil {
		t.Fatal("Expected non-nil exporter")
	}
	if exporter.Registry() == nil {
		t.Error("Expected non-nil registry")
	}
}

func TestNewExporterWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter := NewExporterWithRegistry(":9092", reg)

	if exporter.Registry() != reg {
		t.Error("Expected custom registry to be used")
	}
}

func TestExporterHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "Test counter",
	})
	reg.MustRegister(counter)
	counter.Inc()

	exporter := NewExporterWithRegistry(":9093", reg)
	handler := exporter.Handler()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	resp := rec.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "test_counter") {
		t.Error("Expected response to contain test_counter metric")
	}
}

func TestExporterRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter := NewExporterWithRegistry(":9094", reg)

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "custom_counter",
		Help: "Custom counter",
	})

	err := exporter.Register(counter)
	if err != nil {
		t.Errorf("Expected no error registering counter, got %v", err)
	}

	// Registering again should fail
	err = exporter.Register(counter)
	if err == nil {
		t.Error("Expected error when registering duplicate counter")
	}
}

func TestExporterStartShutdown(t *testing.T) {
	exporter := NewExporterWithRegistry(":0", prometheus.NewRegistry())

	errCh := make(chan error, 1)
	go func() {
		errCh <- exporter.Start()
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := exporter.Shutdown(ctx)
	if err != nil {
		t.Errorf("Expected no error on shutdown, got %v", err)
	}

	select {
	case err := <-errCh:
		if err != http.ErrServerClosed {
			t.Errorf("Expected ErrServerClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for server to stop")
	}
}

func TestExporterDoubleStart(t *testing.T) {
	exporter := NewExporterWithRegistry(":0", prometheus.NewRegistry())

	go func() {
		_ = exporter.Start()
	}()

	time.Sleep(100 * time.Millisecond)

	// Second start should return nil immediately
	err := exporter.Start()
	if err != nil {
		t.Errorf("Expected nil on double start, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = exporter.Shutdown(ctx)
}

func TestMetricsListener(t *testing.T) {
	executionsActive.Set(0)
	executionDuration.Reset()
	executionsTotal.Reset()
	transitionsTotal.Reset()
	actionDuration.Reset()
	actionsTotal.Reset()
	actionRetriesTotal.Reset()
	procedureCacheTotal.Reset()
	proceduresRegisteredTotal.Reset()

	listener := NewMetricsListener()

	// Execution started
	listener.Handle(&events.Event{
		Type:      events.EventExecutionStarted,
		Procedure: "onboarding",
		Data:      &events.ExecutionStartedData{InitialState: "start"},
	})
	active := testutil.ToFloat64(executionsActive)
	if active != 1 {
		t.Errorf("Expected 1 active execution after start event, got %f", active)
	}

	// Execution completed
	listener.Handle(&events.Event{
		Type:      events.EventExecutionCompleted,
		Procedure: "onboarding",
		Data: &events.ExecutionFinishedData{
			Status:   "completed",
			Duration: 5 * time.Second,
		},
	})
	active = testutil.ToFloat64(executionsActive)
	if active != 0 {
		t.Errorf("Expected 0 active executions after completed event, got %f", active)
	}

	// Execution failed
	executionsActive.Inc() // Simulate another execution start
	listener.Handle(&events.Event{
		Type:      events.EventExecutionFailed,
		Procedure: "onboarding",
		Data: &events.ExecutionFinishedData{
			Status:   "failed",
			Duration: 2 * time.Second,
		},
	})
	active = testutil.ToFloat64(executionsActive)
	if active != 0 {
		t.Errorf("Expected 0 active executions after failed event, got %f", active)
	}

	// Transition
	listener.Handle(&events.Event{
		Type:      events.EventExecutionTransitioned,
		Procedure: "onboarding",
		Data: &events.ExecutionTransitionedData{
			From:  "start",
			To:    "verify",
			Event: "success",
		},
	})
	transitions := testutil.ToFloat64(transitionsTotal.WithLabelValues("onboarding", "success"))
	if transitions != 1 {
		t.Errorf("Expected 1 transition, got %f", transitions)
	}

	// Action completed
	listener.Handle(&events.Event{
		Type: events.EventActionCompleted,
		Data: &events.ActionCompletedData{
			State:    "start",
			Handler:  "fetch_profile",
			Duration: 500 * time.Millisecond,
		},
	})
	successCount := testutil.ToFloat64(actionsTotal.WithLabelValues("fetch_profile", "success"))
	if successCount != 1 {
		t.Errorf("Expected 1 action success, got %f", successCount)
	}

	// Action failed
	listener.Handle(&events.Event{
		Type: events.EventActionFailed,
		Data: &events.ActionFailedData{
			State:    "start",
			Handler:  "fetch_profile",
			Reason:   "timeout",
			Duration: 200 * time.Millisecond,
		},
	})
	errorCount := testutil.ToFloat64(actionsTotal.WithLabelValues("fetch_profile", "error"))
	if errorCount != 1 {
		t.Errorf("Expected 1 action error, got %f", errorCount)
	}

	// Action retried
	listener.Handle(&events.Event{
		Type: events.EventActionRetried,
		Data: &events.ActionRetriedData{
			State:   "start",
			Handler: "fetch_profile",
			Attempt: 1,
			Backoff: time.Second,
		},
	})
	retries := testutil.ToFloat64(actionRetriesTotal.WithLabelValues("fetch_profile"))
	if retries != 1 {
		t.Errorf("Expected 1 action retry, got %f", retries)
	}

	// Procedure loaded (cache hit and miss)
	listener.Handle(&events.Event{
		Type: events.EventProcedureLoaded,
		Data: &events.ProcedureLoadedData{CacheHit: true},
	})
	listener.Handle(&events.Event{
		Type: events.EventProcedureLoaded,
		Data: &events.ProcedureLoadedData{CacheHit: false},
	})
	hits := testutil.ToFloat64(procedureCacheTotal.WithLabelValues("hit"))
	misses := testutil.ToFloat64(procedureCacheTotal.WithLabelValues("miss"))
	if hits != 1 {
		t.Errorf("Expected 1 cache hit, got %f", hits)
	}
	if misses != 1 {
		t.Errorf("Expected 1 cache miss, got %f", misses)
	}

	// Procedure registered
	listener.Handle(&events.Event{
		Type:      events.EventProcedureRegistered,
		Procedure: "billing",
		Data:      &events.ProcedureRegisteredData{Hash: "sha256:abc"},
	})
	registered := testutil.ToFloat64(proceduresRegisteredTotal.WithLabelValues("billing"))
	if registered != 1 {
		t.Errorf("Expected 1 procedure registration, got %f", registered)
	}
}

func TestMetricsListenerFunction(t *testing.T) {
	listener := NewMetricsListener()
	fn := listener.Listener()

	if fn == nil {
		t.Error("Expected non-nil listener function")
	}

	// Verify it's callable
	executionsActive.Set(0)
	fn(&events.Event{
		Type: events.EventExecutionStarted,
		Data: &events.ExecutionStartedData{},
	})

	active := testutil.ToFloat64(executionsActive)
	if active != 1 {
		t.Errorf("Expected 1 active execution via listener function, got %f", active)
	}
}

func TestMetricsListenerIgnoresUnknownEvents(t *testing.T) {
	listener := NewMetricsListener()

	// Should not panic
	listener.Handle(&events.Event{
		Type: events.EventActionStarted,
		Data: &events.ActionStartedData{State: "start", Handler: "fetch_profile"},
	})
}

func TestMetricsListenerNilData(t *testing.T) {
	listener := NewMetricsListener()

	// These should not panic even with nil data
	listener.Handle(&events.Event{
		Type: events.EventExecutionCompleted,
		Data: nil,
	})

	listener.Handle(&events.Event{
		Type: events.EventActionCompleted,
		Data: nil,
	})
}
