package builtin

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/tools"
)

// ErrDivisionByZero is returned for divide and modulo by zero.
var ErrDivisionByZero = errors.New("division by zero")

type calculatorTool struct{}

// NewCalculatorTool returns the calculator tool.
func NewCalculatorTool() tools.Tool { return calculatorTool{} }

func (calculatorTool) Definition() ai.ToolDefinition {
	return ai.ToolDefinition{
		Name:        NameCalculator,
		Description: "Apply a binary arithmetic operation to two numbers. Use this instead of doing arithmetic yourself.",
		Parameters: tools.MustSchema(tools.SimpleSchema{
			Properties: map[string]tools.Property{
				"a":         {Type: "number", Description: "Left operand"},
				"b":         {Type: "number", Description: "Right operand"},
				"operation": {Type: "string", Enum: []any{"add", "subtract", "multiply", "divide", "power", "modulo"}},
			},
			Required: []string{"a", "b", "operation"},
		}),
	}
}

func (calculatorTool) Execute(_ context.Context, params map[string]any) (tools.Result, error) {
	a, okA := tools.Number(params, "a")
	b, okB := tools.Number(params, "b")
	if !okA || !okB {
		return tools.Result{}, errors.New("a and b must be numbers")
	}
	v, err := Calculate(a, b, tools.String(params, "operation"))
	if err != nil {
		return tools.Result{}, err
	}
	return tools.OK(strconv.FormatFloat(v, 'g', -1, 64)), nil
}

// Calculate applies op to a and b.
func Calculate(a, b float64, op string) (float64, error) {
	var v float64
	switch op {
	case "add":
		v = a + b
	case "subtract":
		v = a - b
	case "multiply":
		v = a * b
	case "divide":
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		v = a / b
	case "modulo":
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		v = math.Mod(a, b)
	case "power":
		v = math.Pow(a, b)
	default:
		return 0, fmt.Errorf("unknown operation %q", op)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s result is not a finite number", op)
	}
	return v, nil
}
