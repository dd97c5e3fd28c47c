package procedure

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ContextValidator checks an execution's initial context against a
// procedure's context_schema. Compiled schemas are cached by their JSON
// serialization since the same procedure is typically started many times.
//
// Schema violations are reported as strings, not errors: by default the
// runtime logs them and starts the execution anyway. Strict enforcement is
// an engine option.
type ContextValidator struct {
	mu    sync.Mutex
	cache map[string]*gojsonschema.Schema
}

// NewContextValidator creates a new context validator.
func NewContextValidator() *ContextValidator {
	return &ContextValidator{
		cache: make(map[string]*gojsonschema.Schema),
	}
}

// Validate checks the context against the schema and returns the list of
// violations. A nil or empty schema accepts any context. The returned error
// indicates the schema itself could not be compiled, never a context
// violation.
func (cv *ContextValidator) Validate(schema map[string]any, context map[string]any) ([]string, error) {
	if len(schema) == 0 {
		return nil, nil
	}

	compiled, err := cv.getSchema(schema)
	if err != nil {
		return nil, err
	}

	if context == nil {
		context = map[string]any{}
	}
	result, err := compiled.Validate(gojsonschema.NewGoLoader(context))
	if err != nil {
		return nil, fmt.Errorf("context validation error: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	violations := make([]string, len(result.Errors()))
	for i, desc := range result.Errors() {
		violations[i] = desc.String()
	}
	return violations, nil
}

// getSchema returns a compiled schema from cache, compiling on first use.
func (cv *ContextValidator) getSchema(schema map[string]any) (*gojsonschema.Schema, error) {
	key, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize context schema: %w", err)
	}

	cv.mu.Lock()
	defer cv.mu.Unlock()

	if compiled, ok := cv.cache[string(key)]; ok {
		return compiled, nil
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(key))
	if err != nil {
		return nil, fmt.Errorf("invalid context schema: %w", err)
	}
	cv.cache[string(key)] = compiled
	return compiled, nil
}
