package procedure

import (
	"fmt"
	"sort"
)

// ValidationResult holds the violations found by Validate, in the order the
// checks ran.
type ValidationResult struct {
	Errors []string
}

// HasErrors returns true if there are validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Validate checks the structural well-formedness of a procedure definition.
// It is pure and deterministic, and accumulates every applicable violation
// rather than stopping at the first:
//
//  1. Required top-level fields (initial_state, states) are present.
//  2. initial_state is a key of states.
//  3. Every action names a handler.
//  4. Every transition carries both an event and a target.
//  5. Every transition target exists in states.
//  6. Every state is reachable from initial_state (no orphan states).
//
// The definition is valid iff the result carries zero errors.
func Validate(def *Definition) *ValidationResult {
	r := &ValidationResult{}
	if def == nil {
		r.Errors = append(r.Errors, "definition is required")
		return r
	}

	validateRequired(def, r)
	if len(def.States) == 0 {
		return r
	}
	validateInitialState(def, r)
	validateActions(def, r)
	validateTransitions(def, r)
	validateTargets(def, r)
	validateReachability(def, r)

	return r
}

// validateRequired checks the top-level shape.
func validateRequired(def *Definition, r *ValidationResult) {
	if def.InitialState == "" {
		r.Errors = append(r.Errors, "initial_state is required")
	}
	if len(def.States) == 0 {
		r.Errors = append(r.Errors, "states must be a non-empty mapping")
	}
}

// validateInitialState checks that initial_state references a defined state.
func validateInitialState(def *Definition, r *ValidationResult) {
	if def.InitialState == "" {
		return
	}
	if _, ok := def.States[def.InitialState]; !ok {
		r.Errors = append(r.Errors, fmt.Sprintf(
			"initial_state %q does not reference a key in states", def.InitialState))
	}
}

// validateActions checks that every declared action names a handler.
// A state without an action is legal (terminal or waiting).
func validateActions(def *Definition, r *ValidationResult) {
	for _, name := range sortedStateNames(def) {
		state := def.States[name]
		if state == nil {
			r.Errors = append(r.Errors, fmt.Sprintf("states[%q] must be a mapping", name))
			continue
		}
		if state.Action != nil && state.Action.Handler == "" {
			r.Errors = append(r.Errors, fmt.Sprintf(
				"states[%q].action must name a handler", name))
		}
	}
}

// validateTransitions checks that every transition entry carries both an
// event and a target.
func validateTransitions(def *Definition, r *ValidationResult) {
	for _, name := range sortedStateNames(def) {
		state := def.States[name]
		if state == nil {
			continue
		}
		for i, tr := range state.Transitions {
			if tr.Event == "" {
				r.Errors = append(r.Errors, fmt.Sprintf(
					"states[%q].transitions[%d] is missing an event", name, i))
			}
			if tr.Target == "" {
				r.Errors = append(r.Errors, fmt.Sprintf(
					"states[%q].transitions[%d] is missing a target", name, i))
			}
		}
	}
}

// validateTargets cross-references every transition target against states.
func validateTargets(def *Definition, r *ValidationResult) {
	for _, name := range sortedStateNames(def) {
		state := def.States[name]
		if state == nil {
			continue
		}
		for _, tr := range state.Transitions {
			if tr.Target == "" {
				continue
			}
			if _, ok := def.States[tr.Target]; !ok {
				r.Errors = append(r.Errors, fmt.Sprintf(
					"states[%q] transition on %q targets %q which does not exist in states",
					name, tr.Event, tr.Target))
			}
		}
	}
}

// validateReachability walks the transition graph from initial_state and
// reports any state the walk never visits.
func validateReachability(def *Definition, r *ValidationResult) {
	if _, ok := def.States[def.InitialState]; !ok {
		return
	}

	visited := make(map[string]bool, len(def.States))
	queue := []string{def.InitialState}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if visited[name] {
			continue
		}
		visited[name] = true
		state := def.States[name]
		if state == nil {
			continue
		}
		for _, tr := range state.Transitions {
			if _, ok := def.States[tr.Target]; ok && !visited[tr.Target] {
				queue = append(queue, tr.Target)
			}
		}
	}

	for _, name := range sortedStateNames(def) {
		if !visited[name] {
			r.Errors = append(r.Errors, fmt.Sprintf(
				"states[%q] is unreachable from initial_state %q (orphan state)",
				name, def.InitialState))
		}
	}
}

// sortedStateNames returns state names in lexical order so violation lists
// are stable across runs.
func sortedStateNames(def *Definition) []string {
	names := make([]string, 0, len(def.States))
	for name := range def.States {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
