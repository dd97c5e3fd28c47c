// Package procstore provides durable storage for procedure records and
// execution records.
package procstore

import (
	"context"
	"errors"
	"time"

	"github.com/mimo-os/runtime/procedure"
)

// Status is the lifecycle status of an execution.
type Status string

// Execution status values.
const (
	StatusPending     Status = "pending"
	StatusRunning     Status = "running"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusInterrupted Status = "interrupted"
)

// Terminal returns true for statuses an execution can never leave.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusInterrupted
}

// HistoryEntry records a single state entry during an execution.
type HistoryEntry struct {
	From     string `json:"from,omitempty"`
	To       string `json:"to"`
	Event    string `json:"event"`
	OffsetMs int64  `json:"offset_ms"`
}

// Execution is one running (or finished) instance of a procedure.
// It has exactly one writer, the runtime instance that owns it; external
// readers only ever read.
type Execution struct {
	ID               string         `json:"id"`
	ProcedureName    string         `json:"procedure_name"`
	ProcedureVersion string         `json:"procedure_version"`
	Status           Status         `json:"status"`
	CurrentState     string         `json:"current_state"`
	Context          map[string]any `json:"context,omitempty"`
	History          []HistoryEntry `json:"history,omitempty"`
	Error            string         `json:"error,omitempty"`
	StartedAt        time.Time      `json:"started_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	DurationMs       int64          `json:"duration_ms,omitempty"`
}

// Clone returns a deep copy of the execution record.
func (e *Execution) Clone() *Execution {
	c := *e
	if e.Context != nil {
		c.Context = make(map[string]any, len(e.Context))
		for k, v := range e.Context {
			c.Context[k] = v
		}
	}
	if e.History != nil {
		c.History = make([]HistoryEntry, len(e.History))
		copy(c.History, e.History)
	}
	if e.CompletedAt != nil {
		at := *e.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

// ListOptions filters and bounds execution listings.
type ListOptions struct {
	// ProcedureName filters executions by procedure name. Empty matches all.
	ProcedureName string

	// Status filters executions by status. Empty matches all.
	Status Status

	// Limit is the maximum number of records to return. If 0, a default
	// limit of 100 is applied.
	Limit int
}

// DefaultListLimit is applied when ListOptions.Limit is zero.
const DefaultListLimit = 100

// ProcedureStore persists registered procedures.
//
// Procedure records are immutable apart from the Active flag; versions are
// unique per name.
type ProcedureStore interface {
	// SaveProcedure persists a new procedure version.
	// Returns ErrVersionExists if (name, version) is already registered.
	SaveProcedure(ctx context.Context, p *procedure.Procedure) error

	// GetProcedure retrieves a procedure by exact name and version.
	GetProcedure(ctx context.Context, name, version string) (*procedure.Procedure, error)

	// GetProcedureByHash retrieves a procedure by its content fingerprint,
	// independent of name and version.
	GetProcedureByHash(ctx context.Context, hash string) (*procedure.Procedure, error)

	// ListVersions returns every stored version of the named procedure,
	// active or not, in no particular order.
	ListVersions(ctx context.Context, name string) ([]*procedure.Procedure, error)

	// SetActive flips the soft-delete flag on a procedure version and
	// returns the updated record.
	SetActive(ctx context.Context, name, version string, active bool) (*procedure.Procedure, error)
}

// ExecutionStore persists execution records. The runtime creates a record
// when an execution starts and updates it on every transition and at
// completion.
type ExecutionStore interface {
	// CreateExecution persists a new execution record.
	CreateExecution(ctx context.Context, e *Execution) error

	// UpdateExecution replaces the stored record for e.ID.
	UpdateExecution(ctx context.Context, e *Execution) error

	// GetExecution retrieves an execution record by ID.
	GetExecution(ctx context.Context, id string) (*Execution, error)

	// ListExecutions returns execution records matching opts, newest first.
	ListExecutions(ctx context.Context, opts ListOptions) ([]*Execution, error)
}

// Store combines procedure and execution storage.
type Store interface {
	ProcedureStore
	ExecutionStore
}

// ErrNotFound is returned when a record doesn't exist in the store.
var ErrNotFound = errors.New("record not found")

// ErrInvalidID is returned when an empty or malformed ID is provided.
var ErrInvalidID = errors.New("invalid record ID")

// ErrInvalidRecord is returned when a nil or incomplete record is provided.
var ErrInvalidRecord = errors.New("invalid record")

// ErrVersionExists is returned when registering a (name, version) pair that
// is already stored.
var ErrVersionExists = errors.New("procedure version already exists")
