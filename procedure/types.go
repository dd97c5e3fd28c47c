// Package procedure defines the versioned workflow definitions executed by
// the runtime: the definition schema, its structural validator, and the
// content fingerprint used for integrity lookups.
//
// A procedure is an event-driven state machine. Each state may carry an
// action dispatched to a pre-registered handler and defines transitions via
// named events. A state with no transitions is terminal; reaching it ends an
// execution successfully.
package procedure

import "time"

// Definition is the top-level procedure state machine.
type Definition struct {
	InitialState  string               `json:"initial_state" yaml:"initial_state"`
	States        map[string]*StateDef `json:"states" yaml:"states"`
	ContextSchema map[string]any       `json:"context_schema,omitempty" yaml:"context_schema,omitempty"`
}

// StateDef defines a single state in the procedure state machine.
//
// Action is optional: a state without one is either terminal (no
// transitions) or waits for an externally delivered event. Transitions are
// ordered; the first entry matching an event wins.
type StateDef struct {
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Action      *ActionDef   `json:"action,omitempty" yaml:"action,omitempty"`
	Transitions []Transition `json:"transitions,omitempty" yaml:"transitions,omitempty"`
}

// ActionDef names the handler invoked on state entry.
type ActionDef struct {
	Handler   string         `json:"handler" yaml:"handler"`
	Args      map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
	TimeoutMs int64          `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
}

// Transition maps an event to a target state.
type Transition struct {
	Event  string `json:"event" yaml:"event"`
	Target string `json:"target" yaml:"target"`
}

// EventSuccess is the implicit event fired when an action succeeds.
const EventSuccess = "success"

// EventError is the reserved event used to route around retry logic when an
// action fails.
const EventError = "error"

// IsTerminal returns true if the state has no outgoing transitions.
func (s *StateDef) IsTerminal() bool {
	return len(s.Transitions) == 0
}

// TransitionFor returns the first transition matching the given event, or
// nil when the event is not defined for this state.
func (s *StateDef) TransitionFor(event string) *Transition {
	for i := range s.Transitions {
		if s.Transitions[i].Event == event {
			return &s.Transitions[i]
		}
	}
	return nil
}

// State returns the named state definition, or nil if absent.
func (d *Definition) State(name string) *StateDef {
	if d == nil || d.States == nil {
		return nil
	}
	return d.States[name]
}

// Procedure is the persisted, versioned record wrapping a Definition.
type Procedure struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Version    string      `json:"version"`
	Definition *Definition `json:"definition"`
	MaxRetries int         `json:"max_retries"`
	TimeoutMs  int64       `json:"timeout_ms"`
	Hash       string      `json:"hash"`
	Active     bool        `json:"active"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}
