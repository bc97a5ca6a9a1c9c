package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaCache compiles each tool's InputSchema once and reuses it across
// calls, matching internal/gateway/ws_schema.go's sync.Once-guarded compile
// pattern (jsonschema.CompileString + cached *jsonschema.Schema), adapted
// from a fixed set of well-known schemas to an arbitrary growing set keyed
// by tool name.
type schemaCache struct {
	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

var validators = schemaCache{schemas: make(map[string]*jsonschema.Schema)}

func (c *schemaCache) compiled(toolName string, schema json.RawMessage) (*jsonschema.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.schemas[toolName]; ok {
		return s, nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(toolName, bytes.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("tools: compile schema for %q: %w", toolName, err)
	}
	compiled, err := compiler.Compile(toolName)
	if err != nil {
		return nil, fmt.Errorf("tools: compile schema for %q: %w", toolName, err)
	}
	c.schemas[toolName] = compiled
	return compiled, nil
}

// ValidateInput checks input against the tool's InputSchema before
// execution (spec §5.1). A tool with no declared schema accepts any
// well-formed JSON object.
func ValidateInput(t Tool, input json.RawMessage) error {
	if len(t.InputSchema) == 0 {
		return nil
	}
	schema, err := validators.compiled(t.Name, t.InputSchema)
	if err != nil {
		return err
	}

	var doc any
	if len(input) == 0 {
		doc = map[string]any{}
	} else if err := json.Unmarshal(input, &doc); err != nil {
		return fmt.Errorf("tool %q: input is not valid JSON: %w", t.Name, err)
	}

	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("tool %q: input does not match schema: %w", t.Name, err)
	}
	return nil
}
