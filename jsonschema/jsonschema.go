// Package jsonschema re-exports the pieces of google/jsonschema-go this
// module needs to validate wire-supplied tool input schemas, and adds a
// ParseAndResolve helper for the one thing those wire schemas require that
// the upstream package doesn't do in one step: unmarshal a raw JSON Schema
// document (as received from tools/list) and resolve it for validation.
package jsonschema

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/modelcontext/runtime/internal/json"
)

func Ptr[T any](x T) *T {
	return jsonschema.Ptr(x)
}

type Resolved = jsonschema.Resolved

type ResolveOptions = jsonschema.ResolveOptions

type Schema = jsonschema.Schema

// ParseAndResolve unmarshals raw as a JSON Schema document and resolves it
// into a form that can validate argument values. A nil or empty raw yields
// (nil, nil): a tool with no declared input schema has nothing to validate
// against.
func ParseAndResolve(raw []byte) (*Resolved, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var schema Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("jsonschema: parse: %w", err)
	}
	resolved, err := schema.Resolve(&ResolveOptions{ValidateDefaults: true})
	if err != nil {
		return nil, fmt.Errorf("jsonschema: resolve: %w", err)
	}
	return resolved, nil
}
