// Package schema validates submitted configuration payloads against an
// operator-supplied JSON schema. When no schema is configured every
// well-formed JSON document is accepted.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator wraps a compiled JSON schema. A nil Validator accepts everything.
type Validator struct {
	compiled *jsonschema.Schema
}

// LoadValidator compiles a schema file. An empty path yields a nil validator.
func LoadValidator(path string) (*Validator, error) {
	if path == "" {
		return nil, nil
	}
	// #nosec G304 -- schema path is operator-provided.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload schema: %w", err)
	}
	return NewValidator(path, data)
}

// NewValidator compiles an in-memory schema document.
func NewValidator(id string, schema []byte) (*Validator, error) {
	if len(schema) == 0 {
		return nil, fmt.Errorf("schema is empty")
	}
	resourceID := schemaID(id)
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceID, bytes.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(resourceID)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{compiled: compiled}, nil
}

// Validate checks a raw JSON payload against the schema.
func (v *Validator) Validate(payload json.RawMessage) error {
	if v == nil || v.compiled == nil {
		return nil
	}
	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := v.compiled.Validate(value); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

func schemaID(id string) string {
	if id == "" {
		id = "schema"
	}
	return "inmemory://" + id
}
