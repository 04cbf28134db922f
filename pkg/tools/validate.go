package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidateAndCoerce validates args against the JSON Schema stored in tool's
// Parameters field. It returns the (possibly coerced) arguments or a
// descriptive error.
//
// Coercion rules (matching what LLMs commonly get wrong):
//   - A JSON string containing a valid number is coerced to float64/int64 when
//     the schema expects "number" or "integer".
//   - A JSON number is coerced to string when the schema expects "string".
//   - A string "true"/"false" is coerced to bool when the schema expects "boolean".
//
// If the schema cannot be compiled, args are returned unchanged (fail open).
func ValidateAndCoerce(t Tool, args map[string]any) (map[string]any, error) {
	schemaBytes := t.Definition().Parameters
	if len(schemaBytes) == 0 {
		return args, nil
	}

	if args == nil {
		args = map[string]any{}
	}

	schema, err := schemas.get(t.Definition().Name, schemaBytes)
	if err != nil {
		// A broken schema is a programming error in the tool; fail open.
		return args, nil
	}

	// First attempt: validate as-is.
	if err := validateMap(schema, args); err == nil {
		return args, nil
	}

	// Second attempt: coerce obvious type mismatches and retry.
	coerced := coerceArgs(args, schemaBytes)
	if err := validateMap(schema, coerced); err != nil {
		return nil, formatValidationError(args, err)
	}
	return coerced, nil
}

// schemaCache keeps compiled schemas per tool so each call does not
// recompile. Keyed by name and schema text.
type schemaCache struct {
	mu sync.Mutex
	m  map[string]*jsonschema.Schema
}

var schemas = &schemaCache{m: map[string]*jsonschema.Schema{}}

func (c *schemaCache) get(name string, schemaBytes []byte) (*jsonschema.Schema, error) {
	key := name + "\x00" + string(schemaBytes)
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.m[key]; ok {
		return s, nil
	}
	s, err := compileSchema(schemaBytes)
	if err != nil {
		return nil, err
	}
	c.m[key] = s
	return s, nil
}

// compileSchema compiles schema bytes with a fresh compiler so resource URLs
// never collide.
func compileSchema(schemaBytes []byte) (*jsonschema.Schema, error) {
	// jsonschema/v6 requires an already-unmarshaled value for AddResource.
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	const url = "mem://tool/schema"
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(url)
}

// validateMap marshals the map to JSON and validates it against the schema.
func validateMap(schema *jsonschema.Schema, args map[string]any) error {
	b, err := json.Marshal(args)
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return err
	}
	return schema.Validate(inst)
}

// coerceArgs attempts simple type coercions on top-level properties.
func coerceArgs(args map[string]any, schemaBytes []byte) map[string]any {
	var schemaDef struct {
		Properties map[string]struct {
			Type string `json:"type"`
		} `json:"properties"`
	}
	_ = json.Unmarshal(schemaBytes, &schemaDef)

	out := make(map[string]any, len(args))
	for k, v := range args {
		prop, ok := schemaDef.Properties[k]
		if !ok {
			out[k] = v
			continue
		}
		out[k] = coerceValue(v, prop.Type)
	}
	return out
}

func coerceValue(v any, targetType string) any {
	switch targetType {
	case "number", "integer":
		// String → number (LLMs sometimes quote numeric values)
		if s, ok := v.(string); ok {
			var n float64
			if err := json.Unmarshal([]byte(s), &n); err == nil {
				if targetType == "integer" {
					return int64(n)
				}
				return n
			}
		}
	case "string":
		// Number → string
		switch n := v.(type) {
		case float64:
			return fmt.Sprintf("%g", n)
		case int64:
			return fmt.Sprintf("%d", n)
		case json.Number:
			return n.String()
		}
	case "boolean":
		// String → bool
		if s, ok := v.(string); ok {
			switch strings.ToLower(s) {
			case "true":
				return true
			case "false":
				return false
			}
		}
	}
	return v
}

func formatValidationError(args map[string]any, err error) error {
	argsJSON, _ := json.Marshal(args)
	return fmt.Errorf("invalid arguments %s: %v", argsJSON, err)
}
