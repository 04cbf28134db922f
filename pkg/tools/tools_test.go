package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai"
)

// stubTool echoes its arguments or fails on demand.
type stubTool struct {
	name   string
	schema SimpleSchema
	fn     func(params map[string]any) (Result, error)
}

func (s stubTool) Definition() ai.ToolDefinition {
	return ai.ToolDefinition{Name: s.name, Description: "stub " + s.name, Parameters: MustSchema(s.schema)}
}

func (s stubTool) Execute(_ context.Context, params map[string]any) (Result, error) {
	if s.fn != nil {
		return s.fn(params)
	}
	return OK("ok"), nil
}

var addSchema = SimpleSchema{
	Properties: map[string]Property{
		"a": {Type: "number"},
		"b": {Type: "integer"},
	},
	Required: []string{"a", "b"},
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(stubTool{name: "alpha"})
	if reg.Get("alpha") == nil {
		t.Fatal("alpha not found")
	}
	if reg.Get("missing") != nil {
		t.Error("expected nil for missing tool")
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d", reg.Len())
	}
}

func TestRegistry_Register_PanicsOnDuplicate(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(stubTool{name: "dup"})
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	reg.Register(stubTool{name: "dup"})
}

func TestRegistry_DefinitionsSorted(t *testing.T) {
	reg := NewRegistry(nil)
	for _, n := range []string{"weather", "calculator", "clock"} {
		reg.Register(stubTool{name: n})
	}
	defs := reg.Definitions()
	var names []string
	for _, d := range defs {
		names = append(names, d.Name)
	}
	if strings.Join(names, ",") != "calculator,clock,weather" {
		t.Errorf("names = %v", names)
	}
}

func TestExecute_Success(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(stubTool{name: "add", schema: addSchema, fn: func(p map[string]any) (Result, error) {
		a, _ := Number(p, "a")
		b, _ := Number(p, "b")
		if a+b != 7 {
			return Result{}, errors.New("wrong sum")
		}
		return OK("7"), nil
	}})

	res := reg.Execute(context.Background(), "add", map[string]any{"a": 3.0, "b": 4.0})
	if !res.Status || res.Content != "7" {
		t.Errorf("res = %+v", res)
	}
}

func TestExecute_CoercesStrings(t *testing.T) {
	reg := NewRegistry(nil)
	var got map[string]any
	reg.Register(stubTool{name: "add", schema: addSchema, fn: func(p map[string]any) (Result, error) {
		got = p
		return OK(""), nil
	}})

	res := reg.Execute(context.Background(), "add", map[string]any{"a": "2.5", "b": "4"})
	if !res.Status {
		t.Fatalf("res = %+v", res)
	}
	if got["a"] != 2.5 {
		t.Errorf("a = %#v", got["a"])
	}
	if got["b"] != int64(4) {
		t.Errorf("b = %#v", got["b"])
	}
}

func TestExecute_FailuresBecomeText(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(stubTool{name: "add", schema: addSchema})
	reg.Register(stubTool{name: "broken", fn: func(map[string]any) (Result, error) {
		return Result{}, errors.New("upstream down")
	}})
	reg.Register(stubTool{name: "panicky", fn: func(map[string]any) (Result, error) {
		panic("nil map")
	}})

	cases := []struct {
		name string
		tool string
		args map[string]any
		want string
	}{
		{"unknown tool", "nope", nil, `unknown tool "nope"`},
		{"missing required", "add", map[string]any{"a": 1.0}, "invalid arguments"},
		{"uncoercible", "add", map[string]any{"a": "x", "b": 1.0}, "invalid arguments"},
		{"tool error", "broken", nil, "upstream down"},
		{"tool panic", "panicky", nil, "panic: nil map"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := reg.Execute(context.Background(), tc.tool, tc.args)
			if res.Status {
				t.Fatal("expected Status false")
			}
			if !strings.HasPrefix(res.Content, "error: ") || !strings.Contains(res.Content, tc.want) {
				t.Errorf("Content = %q, want error containing %q", res.Content, tc.want)
			}
		})
	}
}

func TestValidateAndCoerce_NumberToStringAndBool(t *testing.T) {
	tool := stubTool{name: "mixed", schema: SimpleSchema{
		Properties: map[string]Property{
			"label": {Type: "string"},
			"flag":  {Type: "boolean"},
		},
	}}
	out, err := ValidateAndCoerce(tool, map[string]any{"label": 42.0, "flag": "TRUE"})
	if err != nil {
		t.Fatal(err)
	}
	if out["label"] != "42" || out["flag"] != true {
		t.Errorf("out = %#v", out)
	}
}

func TestValidateAndCoerce_RejectsExtraProperties(t *testing.T) {
	tool := stubTool{name: "strict", schema: addSchema}
	if _, err := ValidateAndCoerce(tool, map[string]any{"a": 1.0, "b": 2.0, "c": 3.0}); err == nil {
		t.Error("expected error for unknown property")
	}
}

func TestFailed(t *testing.T) {
	res := Failed(errors.New("division by zero"))
	if res.Status || res.Content != "error: division by zero" {
		t.Errorf("res = %+v", res)
	}
}
