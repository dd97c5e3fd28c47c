package logger

import (
	"context"
	"testing"
)

func TestWithExecutionID(t *testing.T) {
	ctx := WithExecutionID(context.Background(), "exec-42")

	if v := ctx.Value(ContextKeyExecutionID); v != "exec-42" {
		t.Errorf("Expected exec-42, got %v", v)
	}
}

func TestWithLoggingContext(t *testing.T) {
	fields := &LoggingFields{
		ExecutionID:      "exec-1",
		Procedure:        "onboarding",
		ProcedureVersion: "1.2.0",
		State:            "collect",
		Handler:          "fetch_profile",
		RequestID:        "req-9",
		CorrelationID:    "corr-3",
		Environment:      "production",
	}

	ctx := WithLoggingContext(context.Background(), fields)
	got := ExtractLoggingFields(ctx)

	if got != *fields {
		t.Errorf("Round trip mismatch: got %+v, want %+v", got, *fields)
	}
}

func TestWithLoggingContext_Nil(t *testing.T) {
	ctx := context.Background()
	if got := WithLoggingContext(ctx, nil); got != ctx {
		t.Error("Nil fields should return the original context")
	}
}

func TestWithLoggingContext_PartialFields(t *testing.T) {
	ctx := WithLoggingContext(context.Background(), &LoggingFields{
		ExecutionID: "exec-7",
		State:       "verify",
	})
	got := ExtractLoggingFields(ctx)

	if got.ExecutionID != "exec-7" {
		t.Errorf("Expected exec-7, got %q", got.ExecutionID)
	}
	if got.State != "verify" {
		t.Errorf("Expected verify, got %q", got.State)
	}
	if got.Procedure != "" {
		t.Errorf("Expected empty procedure, got %q", got.Procedure)
	}
}

func TestExtractLoggingFields_EmptyContext(t *testing.T) {
	got := ExtractLoggingFields(context.Background())
	if got != (LoggingFields{}) {
		t.Errorf("Expected zero fields, got %+v", got)
	}
}

func TestContextLogging(t *testing.T) {
	ctx := WithExecutionID(context.Background(), "exec-1")
	ctx = WithProcedure(ctx, "onboarding")

	// Should not panic and should carry the context fields through the handler
	InfoContext(ctx, "test message with execution context")
}
