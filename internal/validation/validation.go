// Package validation wraps github.com/kaptinlin/jsonschema as the
// "delegated" JSON Schema validator spec.md §1 and §4.3 assume exists.
package validation

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

// Validator compiles and caches tool input schemas, then validates
// call_tool arguments against them.
type Validator struct {
	compiler *jsonschema.Compiler

	mu    sync.Mutex
	cache map[string]*jsonschema.Schema
}

func New() *Validator {
	return &Validator{
		compiler: jsonschema.NewCompiler(),
		cache:    make(map[string]*jsonschema.Schema),
	}
}

// Validate compiles schema (or reuses a cached compilation) and validates
// arguments against it. An empty schema is treated as "no constraints".
func (v *Validator) Validate(schema json.RawMessage, arguments json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}

	compiled, err := v.compiled(schema)
	if err != nil {
		return fmt.Errorf("validation: compile schema: %w", err)
	}

	var value any
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &value); err != nil {
			return fmt.Errorf("validation: parse arguments: %w", err)
		}
	}

	result := compiled.Validate(value)
	if result.Valid {
		return nil
	}
	return fmt.Errorf("arguments do not match schema: %v", result.Errors)
}

func (v *Validator) compiled(schema json.RawMessage) (*jsonschema.Schema, error) {
	key := string(schema)

	v.mu.Lock()
	if s, ok := v.cache[key]; ok {
		v.mu.Unlock()
		return s, nil
	}
	v.mu.Unlock()

	compiled, err := v.compiler.Compile(schema)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.cache[key] = compiled
	v.mu.Unlock()
	return compiled, nil
}
