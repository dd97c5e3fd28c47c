// Package logger provides structured logging with automatic PII redaction.
package logger

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for common logging fields.
// These keys are used to store values in context.Context that will be
// automatically extracted and added to log entries.
const (
	// ContextKeyExecutionID identifies the running procedure execution.
	ContextKeyExecutionID contextKey = "execution_id"

	// ContextKeyProcedure identifies the procedure being executed.
	ContextKeyProcedure contextKey = "procedure"

	// ContextKeyProcedureVersion identifies the version of the procedure.
	ContextKeyProcedureVersion contextKey = "procedure_version"

	// ContextKeyState identifies the current procedure state.
	ContextKeyState contextKey = "state"

	// ContextKeyHandler identifies the action handler being invoked.
	ContextKeyHandler contextKey = "handler"

	// ContextKeyRequestID identifies the individual gateway request.
	ContextKeyRequestID contextKey = "request_id"

	// ContextKeyCorrelationID is used for distributed tracing.
	ContextKeyCorrelationID contextKey = "correlation_id"

	// ContextKeyEnvironment identifies the deployment environment.
	ContextKeyEnvironment contextKey = "environment"
)

// allContextKeys lists all context keys that should be extracted for logging.
// This is used by the handler to iterate over all possible context values.
var allContextKeys = []contextKey{
	ContextKeyExecutionID,
	ContextKeyProcedure,
	ContextKeyProcedureVersion,
	ContextKeyState,
	ContextKeyHandler,
	ContextKeyRequestID,
	ContextKeyCorrelationID,
	ContextKeyEnvironment,
}

// WithExecutionID returns a new context with the execution ID set.
func WithExecutionID(ctx context.Context, executionID string) context.Context {
	return context.WithValue(ctx, ContextKeyExecutionID, executionID)
}

// WithProcedure returns a new context with the procedure name set.
func WithProcedure(ctx context.Context, procedure string) context.Context {
	return context.WithValue(ctx, ContextKeyProcedure, procedure)
}

// WithProcedureVersion returns a new context with the procedure version set.
func WithProcedureVersion(ctx context.Context, version string) context.Context {
	return context.WithValue(ctx, ContextKeyProcedureVersion, version)
}

// WithState returns a new context with the current state name set.
func WithState(ctx context.Context, state string) context.Context {
	return context.WithValue(ctx, ContextKeyState, state)
}

// WithHandler returns a new context with the action handler name set.
func WithHandler(ctx context.Context, handler string) context.Context {
	return context.WithValue(ctx, ContextKeyHandler, handler)
}

// WithRequestID returns a new context with the request ID set.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// WithCorrelationID returns a new context with the correlation ID set.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, ContextKeyCorrelationID, correlationID)
}

// WithEnvironment returns a new context with the environment set.
func WithEnvironment(ctx context.Context, environment string) context.Context {
	return context.WithValue(ctx, ContextKeyEnvironment, environment)
}

// WithLoggingContext returns a new context with multiple logging fields set at once.
// This is a convenience function for setting multiple fields in one call.
// Only non-empty values are set.
func WithLoggingContext(ctx context.Context, fields *LoggingFields) context.Context {
	if fields == nil {
		return ctx
	}
	if fields.ExecutionID != "" {
		ctx = WithExecutionID(ctx, fields.ExecutionID)
	}
	if fields.Procedure != "" {
		ctx = WithProcedure(ctx, fields.Procedure)
	}
	if fields.ProcedureVersion != "" {
		ctx = WithProcedureVersion(ctx, fields.ProcedureVersion)
	}
	if fields.State != "" {
		ctx = WithState(ctx, fields.State)
	}
	if fields.Handler != "" {
		ctx = WithHandler(ctx, fields.Handler)
	}
	if fields.RequestID != "" {
		ctx = WithRequestID(ctx, fields.RequestID)
	}
	if fields.CorrelationID != "" {
		ctx = WithCorrelationID(ctx, fields.CorrelationID)
	}
	if fields.Environment != "" {
		ctx = WithEnvironment(ctx, fields.Environment)
	}
	return ctx
}

// LoggingFields holds all standard logging context fields.
// This struct is used with WithLoggingContext for bulk field setting.
type LoggingFields struct {
	ExecutionID      string
	Procedure        string
	ProcedureVersion string
	State            string
	Handler          string
	RequestID        string
	CorrelationID    string
	Environment      string
}

// ExtractLoggingFields extracts all logging fields from a context.
// Returns a LoggingFields struct with all values found in the context.
func ExtractLoggingFields(ctx context.Context) LoggingFields {
	fields := LoggingFields{}
	if v := ctx.Value(ContextKeyExecutionID); v != nil {
		fields.ExecutionID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyProcedure); v != nil {
		fields.Procedure, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyProcedureVersion); v != nil {
		fields.ProcedureVersion, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyState); v != nil {
		fields.State, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyHandler); v != nil {
		fields.Handler, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyRequestID); v != nil {
		fields.RequestID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyCorrelationID); v != nil {
		fields.CorrelationID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyEnvironment); v != nil {
		fields.Environment, _ = v.(string)
	}
	return fields
}
