package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Invocation carries the inputs to an action handler: the execution's
// current context and the arguments declared on the action.
type Invocation struct {
	Context map[string]any
	Args    map[string]any
}

// Result is the outcome of a successful handler invocation. Handlers build
// one with Success, SuccessWith, or Transition; returning an error instead
// routes the execution through the error-handling path.
type Result struct {
	patch map[string]any
	event string
}

// Success returns a bare success result. The execution transitions on the
// implicit "success" event without a context change.
func Success() *Result {
	return &Result{}
}

// SuccessWith returns a success result carrying a context patch. The patch
// is merged into the execution context before the "success" transition.
func SuccessWith(patch map[string]any) *Result {
	return &Result{patch: patch}
}

// Transition returns a result that fires the given event directly,
// bypassing the implicit "success" mapping.
func Transition(event string) *Result {
	return &Result{event: event}
}

// Handler is an invocable action implementation. The context carries the
// per-action deadline; handlers that respect it shut down promptly on
// timeout, but even handlers that ignore it cannot stall the execution.
type Handler func(ctx context.Context, inv Invocation) (*Result, error)

// HandlerRegistry maps handler identifiers to invocable functions.
// Handlers are registered ahead of time; the runtime only ever resolves
// identifiers against this table, never dynamically.
//
// HandlerRegistry implements registry.HandlerResolver, so procedure
// registration can reject definitions naming unknown handlers.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewHandlerRegistry creates an empty handler registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler under the given identifier.
// Returns an error if the identifier is empty, the handler is nil, or the
// identifier is already taken.
func (r *HandlerRegistry) Register(id string, h Handler) error {
	if id == "" {
		return fmt.Errorf("handler ID cannot be empty")
	}
	if h == nil {
		return fmt.Errorf("handler %q cannot be nil", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[id]; exists {
		return fmt.Errorf("handler %q is already registered", id)
	}
	r.handlers[id] = h
	return nil
}

// Has reports whether a handler is registered under the given identifier.
func (r *HandlerRegistry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[id]
	return ok
}

// Get returns the handler registered under the given identifier.
func (r *HandlerRegistry) Get(id string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[id]
	return h, ok
}

// IDs returns all registered handler identifiers, sorted.
func (r *HandlerRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
