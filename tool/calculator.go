package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/wikiagent/calculator"
)

// CalculatorToolName is the registered name of the calculator tool.
const CalculatorToolName = "calculator"

// CalculatorArgs are the calculator tool arguments.
type CalculatorArgs struct {
	Expression string `json:"expression" description:"Arithmetic expression, e.g. 'pi * 5**2' or 'sqrt(16) + 2'. Supports + - * / ** %, parentheses, pi, e, sqrt, abs, round, pow."`
}

// Calculation is the calculator tool result.
type Calculation struct {
	Expression string  `json:"expression"`
	Value      float64 `json:"value"`
	Formatted  string  `json:"formatted"`
}

func (c Calculation) String() string { return c.Expression + " = " + c.Formatted }

// NewCalculatorTool returns the allow-listed arithmetic tool.
func NewCalculatorTool() *FunctionTool {
	return NewTypedTool(CalculatorToolName,
		"Evaluate a mathematical expression safely. Use this for any arithmetic instead of computing in your head.",
		func(_ context.Context, args CalculatorArgs) (any, error) {
			expr := strings.TrimSpace(args.Expression)
			v, err := calculator.Evaluate(expr)
			if err != nil {
				if errors.Is(err, calculator.ErrInvalidExpression) || errors.Is(err, calculator.ErrUnsupportedOperation) {
					return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
				}
				return nil, err
			}
			return Calculation{Expression: expr, Value: v, Formatted: calculator.Format(v)}, nil
		}).WithStateless()
}
