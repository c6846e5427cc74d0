package calculator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type node interface {
	eval() (float64, error)
}

type numberNode float64

func (n numberNode) eval() (float64, error) { return float64(n), nil }

type unaryNode struct {
	op      string
	operand node
}

func (n unaryNode) eval() (float64, error) {
	v, err := n.operand.eval()
	if err != nil {
		return 0, err
	}
	if n.op == "-" {
		return -v, nil
	}
	return v, nil
}

type binaryNode struct {
	op          string
	left, right node
}

func (n binaryNode) eval() (float64, error) {
	l, err := n.left.eval()
	if err != nil {
		return 0, err
	}

	r, err := n.right.eval()
	if err != nil {
		return 0, err
	}

	var v float64

	switch n.op {
	case "+":
		v = l + r
	case "-":
		v = l - r
	case "*":
		v = l * r
	case "/":
		if r == 0 {
			return 0, ErrDivisionByZero
		}
		v = l / r
	case "%":
		if r == 0 {
			return 0, fmt.Errorf("%w: modulo by zero", ErrDivisionByZero)
		}
		v = floorMod(l, r)
	case "**":
		return power(l, r)
	default:
		return 0, fmt.Errorf("%w: operator %q", ErrUnsupportedOperation, n.op)
	}

	return finite(v)
}

type callNode struct {
	fn   string
	args []node
}

func (n callNode) eval() (float64, error) {
	args := make([]float64, len(n.args))
	for i, a := range n.args {
		v, err := a.eval()
		if err != nil {
			return 0, err
		}
		args[i] = v
	}

	switch n.fn {
	case "sqrt":
		if args[0] < 0 {
			return 0, fmt.Errorf("%w: sqrt of negative number", ErrMathDomain)
		}
		return math.Sqrt(args[0]), nil
	case "abs":
		return math.Abs(args[0]), nil
	case "round":
		digits := 0.0
		if len(args) == 2 {
			digits = args[1]
			if digits != math.Trunc(digits) {
				return 0, fmt.Errorf("%w: round() digits must be an integer", ErrInvalidExpression)
			}
		}
		return roundHalfEven(args[0], int(digits))
	case "pow":
		return power(args[0], args[1])
	default:
		return 0, fmt.Errorf("%w: function %q", ErrUnsupportedOperation, n.fn)
	}
}

func power(base, exp float64) (float64, error) {
	if base == 0 && exp < 0 {
		return 0, fmt.Errorf("%w: zero raised to a negative power", ErrDivisionByZero)
	}
	if base < 0 && exp != math.Trunc(exp) {
		return 0, fmt.Errorf("%w: fractional power of a negative number", ErrMathDomain)
	}
	return finite(math.Pow(base, exp))
}

// floorMod returns the remainder with the sign of the divisor.
func floorMod(a, b float64) float64 {
	m := math.Mod(a, b)
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}

// roundHalfEven rounds to the given number of decimal digits, resolving ties
// to the nearest even digit.
func roundHalfEven(v float64, digits int) (float64, error) {
	if digits == 0 {
		return math.RoundToEven(v), nil
	}
	scale := math.Pow(10, float64(digits))
	if math.IsInf(v*scale, 0) {
		return v, nil
	}
	return finite(math.RoundToEven(v*scale) / scale)
}

func finite(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: result is not a finite number", ErrMathDomain)
	}
	return v, nil
}

// Evaluate parses expression and computes its value.
func Evaluate(expression string) (float64, error) {
	tree, err := parse(strings.TrimSpace(expression))
	if err != nil {
		return 0, err
	}
	return tree.eval()
}

// Format renders v the way the calculator tool reports results: whole numbers
// without a fraction, everything else with six significant digits.
func Format(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}
