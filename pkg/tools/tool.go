// Package tools defines the Tool interface, the registry the tool-calling
// adapter executes through, and JSON Schema validation of tool arguments.
package tools

import (
	"context"
	"encoding/json"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai"
)

// Result is the uniform tool outcome. Content is what the model sees.
type Result struct {
	Status  bool   `json:"status"`
	Content string `json:"content,omitempty"`
}

// Tool is one independently callable collaborator. Implementations hold no
// state shared with other tools.
type Tool interface {
	// Definition returns the schema handed to the LLM.
	Definition() ai.ToolDefinition
	// Execute runs the tool with validated arguments.
	Execute(ctx context.Context, params map[string]any) (Result, error)
}

func OK(content string) Result { return Result{Status: true, Content: content} }

// Failed turns err into the textual result the model receives.
func Failed(err error) Result {
	return Result{Status: false, Content: "error: " + err.Error()}
}

// ---------------------------------------------------------------------------
// SimpleSchema builds JSON Schema objects inline.
// ---------------------------------------------------------------------------

type SimpleSchema struct {
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []any    `json:"enum,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
}

// MustSchema returns the JSON Schema for s.
func MustSchema(s SimpleSchema) json.RawMessage {
	props := s.Properties
	if props == nil {
		props = map[string]Property{}
	}
	doc := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(s.Required) > 0 {
		doc["required"] = s.Required
	}
	b, err := json.Marshal(doc)
	if err != nil {
		panic("tools.MustSchema: " + err.Error())
	}
	return b
}

// String returns params[key] as a string, or "".
func String(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

// Number returns params[key] as a float64.
func Number(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}
