package calculator

import "errors"

var (
	// ErrInvalidExpression reports malformed input (syntax errors, wrong arity).
	ErrInvalidExpression = errors.New("invalid expression")

	// ErrUnsupportedOperation reports an identifier, operator or construct
	// outside the allow-list.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrDivisionByZero reports a zero divisor for / or % or a zero base raised
	// to a negative power.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrMathDomain reports results that are not finite real numbers.
	ErrMathDomain = errors.New("math domain error")
)
