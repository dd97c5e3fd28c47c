// Package registry resolves procedure (name, version) pairs to validated,
// immutable procedure records.
//
// Registration runs the structural validator before anything is persisted,
// so an invalid definition never reaches storage or the execution runtime.
// Loads are cached by (name, version); cache entries never expire and are
// invalidated only by registration and deactivation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mimo-os/runtime/events"
	"github.com/mimo-os/runtime/procedure"
	"github.com/mimo-os/runtime/procstore"
)

// VersionLatest resolves to the highest active version of a procedure.
const VersionLatest = "latest"

// ErrNotFound is returned when no matching procedure exists.
var ErrNotFound = errors.New("procedure not found")

// ValidationError carries the ordered list of violations found at
// registration time.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("procedure definition is invalid: %s", strings.Join(e.Reasons, "; "))
}

// HandlerResolver reports whether an action handler identifier is
// registered. When configured, registration rejects definitions that
// reference unknown handlers, so the runtime never resolves a handler by
// untrusted name at execution time.
type HandlerResolver interface {
	Has(id string) bool
}

// Registry is the procedure loader/cache.
type Registry struct {
	store    procstore.ProcedureStore
	resolver HandlerResolver
	bus      *events.Bus
	now      func() time.Time

	mu    sync.RWMutex
	cache map[cacheKey]*procedure.Procedure
}

type cacheKey struct {
	name    string
	version string
}

// Option configures a Registry.
type Option func(*Registry)

// WithHandlerResolver enables handler cross-checking at registration time.
func WithHandlerResolver(resolver HandlerResolver) Option {
	return func(r *Registry) {
		r.resolver = resolver
	}
}

// WithEventBus publishes procedure load/registration events for
// observability.
func WithEventBus(bus *events.Bus) Option {
	return func(r *Registry) {
		r.bus = bus
	}
}

// WithTimeFunc sets a custom time function for deterministic tests.
func WithTimeFunc(fn func() time.Time) Option {
	return func(r *Registry) {
		r.now = fn
	}
}

// New creates a Registry backed by the given procedure store.
func New(store procstore.ProcedureStore, opts ...Option) *Registry {
	r := &Registry{
		store: store,
		now:   time.Now,
		cache: make(map[cacheKey]*procedure.Procedure),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterInput carries the attributes of a procedure registration.
type RegisterInput struct {
	Name       string
	Version    string
	Definition *procedure.Definition
	MaxRetries int
	TimeoutMs  int64
}

// Register validates the definition and persists it as a new active
// procedure version. Any cached entries for the name are invalidated so
// "latest" lookups observe the new version.
func (r *Registry) Register(ctx context.Context, in RegisterInput) (*procedure.Procedure, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", procstore.ErrInvalidRecord)
	}
	if err := validateVersion(in.Version); err != nil {
		return nil, fmt.Errorf("procedure %q: %w", in.Name, err)
	}

	result := procedure.Validate(in.Definition)
	r.checkHandlers(in.Definition, result)
	if result.HasErrors() {
		return nil, &ValidationError{Reasons: result.Errors}
	}

	hash, err := procedure.ComputeHash(in.Definition)
	if err != nil {
		return nil, err
	}

	nowTs := r.now()
	rec := &procedure.Procedure{
		ID:         uuid.NewString(),
		Name:       in.Name,
		Version:    in.Version,
		Definition: in.Definition,
		MaxRetries: in.MaxRetries,
		TimeoutMs:  in.TimeoutMs,
		Hash:       hash,
		Active:     true,
		CreatedAt:  nowTs,
		UpdatedAt:  nowTs,
	}

	if err := r.store.SaveProcedure(ctx, rec); err != nil {
		return nil, err
	}

	r.invalidateName(in.Name)
	r.publish(events.EventProcedureRegistered, rec.Name, rec.Version, &events.ProcedureRegisteredData{
		Hash: rec.Hash,
	})
	return rec, nil
}

// Load resolves a (name, version) pair to a procedure record. Version
// "latest" (or empty) resolves to the highest active version by semantic
// version order. A cache hit returns the cached record with no storage
// read; validation is not repeated, it happened at registration.
func (r *Registry) Load(ctx context.Context, name, version string) (*procedure.Procedure, error) {
	if name == "" {
		return nil, ErrNotFound
	}

	if version == "" || version == VersionLatest {
		latest, err := r.resolveLatest(ctx, name)
		if err != nil {
			return nil, err
		}
		version = latest
	}

	key := cacheKey{name: name, version: version}
	r.mu.RLock()
	cached, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		r.publish(events.EventProcedureLoaded, name, version, &events.ProcedureLoadedData{CacheHit: true})
		return cached, nil
	}

	rec, err := r.store.GetProcedure(ctx, name, version)
	if errors.Is(err, procstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !rec.Active {
		// Soft-deleted versions are invisible to loads.
		return nil, ErrNotFound
	}

	r.mu.Lock()
	r.cache[key] = rec
	r.mu.Unlock()

	r.publish(events.EventProcedureLoaded, name, version, &events.ProcedureLoadedData{CacheHit: false})
	return rec, nil
}

// LoadByHash retrieves a procedure by its content fingerprint, independent
// of name and version. Hash lookups serve integrity audits and bypass the
// cache.
func (r *Registry) LoadByHash(ctx context.Context, hash string) (*procedure.Procedure, error) {
	rec, err := r.store.GetProcedureByHash(ctx, hash)
	if errors.Is(err, procstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Deactivate soft-deletes a procedure version and invalidates its cache
// entry. Running executions are unaffected; new loads no longer see it.
func (r *Registry) Deactivate(ctx context.Context, name, version string) (*procedure.Procedure, error) {
	rec, err := r.store.SetActive(ctx, name, version, false)
	if errors.Is(err, procstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	delete(r.cache, cacheKey{name: name, version: version})
	r.mu.Unlock()

	return rec, nil
}

// CacheSize returns the number of cached procedure records.
func (r *Registry) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// resolveLatest picks the highest active semantic version for a name.
func (r *Registry) resolveLatest(ctx context.Context, name string) (string, error) {
	records, err := r.store.ListVersions(ctx, name)
	if err != nil {
		return "", err
	}

	latest := latestActive(records)
	if latest == nil {
		return "", ErrNotFound
	}
	return latest.Version, nil
}

// checkHandlers appends a violation for every action handler the resolver
// doesn't know about.
func (r *Registry) checkHandlers(def *procedure.Definition, result *procedure.ValidationResult) {
	if r.resolver == nil || def == nil {
		return
	}
	for _, name := range sortedStateNames(def) {
		state := def.States[name]
		if state == nil || state.Action == nil || state.Action.Handler == "" {
			continue
		}
		if !r.resolver.Has(state.Action.Handler) {
			result.Errors = append(result.Errors, fmt.Sprintf(
				"states[%q].action handler %q is not registered", name, state.Action.Handler))
		}
	}
}

// invalidateName drops every cached version of a name.
func (r *Registry) invalidateName(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.cache {
		if key.name == name {
			delete(r.cache, key)
		}
	}
}

func (r *Registry) publish(eventType events.EventType, name, version string, data events.EventData) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(&events.Event{
		Type:      eventType,
		Timestamp: r.now(),
		Procedure: name,
		Version:   version,
		Data:      data,
	})
}
