// Package calculator evaluates arithmetic expressions from a closed grammar.
//
// Expressions are tokenized and parsed into a small tree that only knows
// numeric literals, the operators + - * / ** %, the constants pi and e and the
// functions sqrt, abs, round and pow. Anything else is rejected while parsing,
// before a single value is computed, so no input can reach names or behavior
// outside that allow-list.
//
//	v, err := calculator.Evaluate("pi * 5**2")
//	// v ≈ 78.5398
package calculator
