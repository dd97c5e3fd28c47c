package procstore

import (
	"context"
	"sort"
	"sync"

	"github.com/mimo-os/runtime/procedure"
)

// MemoryStore provides an in-memory implementation of the Store interface.
// It is thread-safe and suitable for development, testing, and
// single-instance deployments. For distributed systems, use RedisStore.
type MemoryStore struct {
	mu         sync.RWMutex
	procedures map[string]map[string]*procedure.Procedure // name -> version -> record
	hashIndex  map[string]*procedure.Procedure            // content hash -> record
	executions map[string]*Execution
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		procedures: make(map[string]map[string]*procedure.Procedure),
		hashIndex:  make(map[string]*procedure.Procedure),
		executions: make(map[string]*Execution),
	}
}

// SaveProcedure persists a new procedure version.
func (s *MemoryStore) SaveProcedure(ctx context.Context, p *procedure.Procedure) error {
	if p == nil || p.Definition == nil {
		return ErrInvalidRecord
	}
	if p.Name == "" || p.Version == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	versions, ok := s.procedures[p.Name]
	if !ok {
		versions = make(map[string]*procedure.Procedure)
		s.procedures[p.Name] = versions
	}
	if _, exists := versions[p.Version]; exists {
		return ErrVersionExists
	}

	rec := copyProcedure(p)
	versions[p.Version] = rec
	if rec.Hash != "" {
		s.hashIndex[rec.Hash] = rec
	}
	return nil
}

// GetProcedure retrieves a procedure by name and version.
func (s *MemoryStore) GetProcedure(ctx context.Context, name, version string) (*procedure.Procedure, error) {
	if name == "" || version == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.procedures[name][version]
	if !ok {
		return nil, ErrNotFound
	}
	return copyProcedure(rec), nil
}

// GetProcedureByHash retrieves a procedure by content fingerprint.
func (s *MemoryStore) GetProcedureByHash(ctx context.Context, hash string) (*procedure.Procedure, error) {
	if hash == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.hashIndex[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return copyProcedure(rec), nil
}

// ListVersions returns every stored version of the named procedure.
func (s *MemoryStore) ListVersions(ctx context.Context, name string) ([]*procedure.Procedure, error) {
	if name == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.procedures[name]
	out := make([]*procedure.Procedure, 0, len(versions))
	for _, rec := range versions {
		out = append(out, copyProcedure(rec))
	}
	return out, nil
}

// SetActive flips the soft-delete flag on a procedure version.
func (s *MemoryStore) SetActive(ctx context.Context, name, version string, active bool) (*procedure.Procedure, error) {
	if name == "" || version == "" {
		return nil, ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.procedures[name][version]
	if !ok {
		return nil, ErrNotFound
	}
	rec.Active = active
	return copyProcedure(rec), nil
}

// CreateExecution persists a new execution record.
func (s *MemoryStore) CreateExecution(ctx context.Context, e *Execution) error {
	if e == nil {
		return ErrInvalidRecord
	}
	if e.ID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.executions[e.ID] = e.Clone()
	return nil
}

// UpdateExecution replaces the stored record.
func (s *MemoryStore) UpdateExecution(ctx context.Context, e *Execution) error {
	if e == nil {
		return ErrInvalidRecord
	}
	if e.ID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.executions[e.ID]; !ok {
		return ErrNotFound
	}
	s.executions[e.ID] = e.Clone()
	return nil
}

// GetExecution retrieves an execution record by ID.
// Returns a deep copy to prevent external mutations.
func (s *MemoryStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.executions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// ListExecutions returns execution records matching opts, newest first.
func (s *MemoryStore) ListExecutions(ctx context.Context, opts ListOptions) ([]*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*Execution, 0, len(s.executions))
	for _, rec := range s.executions {
		if opts.ProcedureName != "" && rec.ProcedureName != opts.ProcedureName {
			continue
		}
		if opts.Status != "" && rec.Status != opts.Status {
			continue
		}
		matched = append(matched, rec.Clone())
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// copyProcedure returns a shallow copy of the record. The Definition is
// shared: it is immutable once registered.
func copyProcedure(p *procedure.Procedure) *procedure.Procedure {
	c := *p
	return &c
}
