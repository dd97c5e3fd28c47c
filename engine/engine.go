// Package engine implements the execution runtime: it drives one isolated
// state machine per running procedure, dispatches step actions under
// timeout and crash containment, applies the retry policy, and persists the
// execution record at every transition and at completion.
//
// Each execution runs its own control loop goroutine. Actions run in
// supervised child goroutines so a slow, hung, or panicking handler can
// never block or kill the loop. Transitions within one execution are
// processed strictly sequentially; separate executions are independent.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/mimo-os/runtime/events"
	"github.com/mimo-os/runtime/logger"
	"github.com/mimo-os/runtime/procedure"
	"github.com/mimo-os/runtime/procstore"
	"github.com/mimo-os/runtime/registry"
)

const (
	// defaultBaseRetryDelay seeds the exponential backoff schedule.
	defaultBaseRetryDelay = 100 * time.Millisecond

	// defaultActionTimeout bounds actions that declare no timeout of
	// their own.
	defaultActionTimeout = 30 * time.Second
)

// ProcedureLoader resolves a (name, version) pair to a validated procedure
// record. *registry.Registry satisfies it.
type ProcedureLoader interface {
	Load(ctx context.Context, name, version string) (*procedure.Procedure, error)
}

// Engine starts and supervises procedure executions.
type Engine struct {
	loader        ProcedureLoader
	handlers      *HandlerRegistry
	store         procstore.ExecutionStore
	bus           *events.Bus
	validator     *procedure.ContextValidator
	sem           *semaphore.Weighted
	baseDelay     time.Duration
	actionTimeout time.Duration
	strictContext bool
	now           func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithEventBus attaches an event bus; the engine publishes execution and
// action lifecycle events to it.
func WithEventBus(bus *events.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithMaxConcurrent caps the number of concurrently running executions.
// Start blocks until a slot frees or its context is cancelled. Zero (the
// default) means unlimited.
func WithMaxConcurrent(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sem = semaphore.NewWeighted(n)
		}
	}
}

// WithBaseRetryDelay sets the base of the exponential backoff schedule.
// The nth retry waits base * 2^(n-1).
func WithBaseRetryDelay(d time.Duration) Option {
	return func(e *Engine) { e.baseDelay = d }
}

// WithDefaultActionTimeout sets the per-action timeout applied to actions
// that declare none.
func WithDefaultActionTimeout(d time.Duration) Option {
	return func(e *Engine) { e.actionTimeout = d }
}

// WithStrictContextValidation makes Start reject an initial context that
// violates the procedure's context schema. By default violations are only
// logged and the execution starts anyway.
func WithStrictContextValidation(strict bool) Option {
	return func(e *Engine) { e.strictContext = strict }
}

// WithTimeFunc sets a custom time function for deterministic tests.
func WithTimeFunc(fn func() time.Time) Option {
	return func(e *Engine) { e.now = fn }
}

// New creates an engine backed by the given loader, handler registry, and
// execution store.
func New(loader ProcedureLoader, handlers *HandlerRegistry, store procstore.ExecutionStore, opts ...Option) *Engine {
	e := &Engine{
		loader:        loader,
		handlers:      handlers,
		store:         store,
		validator:     procedure.NewContextValidator(),
		baseDelay:     defaultBaseRetryDelay,
		actionTimeout: defaultActionTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartOption configures a single execution start.
type StartOption func(*startOptions)

type startOptions struct {
	timeoutOverride time.Duration
}

// WithTimeoutOverride replaces the procedure's overall timeout for this
// execution only.
func WithTimeoutOverride(d time.Duration) StartOption {
	return func(o *startOptions) { o.timeoutOverride = d }
}

// Start resolves the procedure, creates an execution record, and runs the
// state machine from its initial state. The returned handle is the caller's
// only reference to the running execution.
//
// ErrProcedureNotFound is returned when the (name, version) pair does not
// resolve; no execution record is created in that case.
func (e *Engine) Start(ctx context.Context, name, version string, initialContext map[string]any, opts ...StartOption) (*Handle, error) {
	var so startOptions
	for _, opt := range opts {
		opt(&so)
	}

	proc, err := e.loader.Load(ctx, name, version)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) || errors.Is(err, procstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s@%s", ErrProcedureNotFound, name, version)
		}
		return nil, fmt.Errorf("loading procedure %s@%s: %w", name, version, err)
	}

	if violations := e.validateContext(proc, initialContext); len(violations) > 0 {
		if e.strictContext {
			return nil, &ContextValidationError{Violations: violations}
		}
		logger.Warn("Initial context violates context schema",
			"procedure", proc.Name,
			"version", proc.Version,
			"violations", violations)
	}

	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("acquiring execution slot: %w", err)
		}
	}

	started := e.now()
	rec := &procstore.Execution{
		ID:               uuid.New().String(),
		ProcedureName:    proc.Name,
		ProcedureVersion: proc.Version,
		Status:           procstore.StatusRunning,
		CurrentState:     proc.Definition.InitialState,
		Context:          cloneContext(initialContext),
		StartedAt:        started,
	}
	if err := e.store.CreateExecution(ctx, rec); err != nil {
		if e.sem != nil {
			e.sem.Release(1)
		}
		return nil, fmt.Errorf("creating execution record: %w", err)
	}

	overallTimeout := time.Duration(proc.TimeoutMs) * time.Millisecond
	if so.timeoutOverride > 0 {
		overallTimeout = so.timeoutOverride
	}

	x := newExecution(e, proc, rec, overallTimeout)
	logger.ExecutionStarted(rec.ID, proc.Name, proc.Version, proc.Definition.InitialState)

	go x.run()

	return &Handle{x: x}, nil
}

// GetExecution retrieves a persisted execution record by ID. It reads the
// store directly and works for finished executions too.
func (e *Engine) GetExecution(ctx context.Context, id string) (*procstore.Execution, error) {
	return e.store.GetExecution(ctx, id)
}

// ListExecutions returns persisted execution records matching opts, newest
// first.
func (e *Engine) ListExecutions(ctx context.Context, opts procstore.ListOptions) ([]*procstore.Execution, error) {
	return e.store.ListExecutions(ctx, opts)
}

// validateContext checks the initial context against the procedure's
// context schema. Schema compilation failures are logged, never fatal.
func (e *Engine) validateContext(proc *procedure.Procedure, initial map[string]any) []string {
	if proc.Definition == nil || len(proc.Definition.ContextSchema) == 0 {
		return nil
	}
	violations, err := e.validator.Validate(proc.Definition.ContextSchema, initial)
	if err != nil {
		logger.Warn("Context schema could not be evaluated",
			"procedure", proc.Name,
			"version", proc.Version,
			"error", err)
		return nil
	}
	return violations
}

func cloneContext(c map[string]any) map[string]any {
	out := make(map[string]any, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
