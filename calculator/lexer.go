package calculator

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// Characters that start an operator or construct of a general purpose
// expression language. They are reported as unsupported rather than invalid.
const foreignOperators = "^&|<>=!~@.[]{}'\"`;:\\"

func tokenize(src string) ([]token, error) {
	var tokens []token

	for i := 0; i < len(src); {
		c := src[i]

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			start := i
			i = scanNumber(src, i)
			tokens = append(tokens, token{kind: tokNumber, text: src[start:i], pos: start})
		case c == '_' || unicode.IsLetter(rune(c)):
			start := i
			for i < len(src) && (src[i] == '_' || isDigit(src[i]) || unicode.IsLetter(rune(src[i]))) {
				i++
			}
			tokens = append(tokens, token{kind: tokIdent, text: src[start:i], pos: start})
		case c == '*':
			if i+1 < len(src) && src[i+1] == '*' {
				tokens = append(tokens, token{kind: tokOp, text: "**", pos: i})
				i += 2
				continue
			}
			tokens = append(tokens, token{kind: tokOp, text: "*", pos: i})
			i++
		case c == '/':
			if i+1 < len(src) && src[i+1] == '/' {
				return nil, fmt.Errorf("%w: operator %q at position %d", ErrUnsupportedOperation, "//", i)
			}
			tokens = append(tokens, token{kind: tokOp, text: "/", pos: i})
			i++
		case c == '+' || c == '-' || c == '%':
			tokens = append(tokens, token{kind: tokOp, text: string(c), pos: i})
			i++
		case c == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == ',':
			tokens = append(tokens, token{kind: tokComma, text: ",", pos: i})
			i++
		case strings.IndexByte(foreignOperators, c) >= 0:
			return nil, fmt.Errorf("%w: %q at position %d", ErrUnsupportedOperation, string(c), i)
		default:
			return nil, fmt.Errorf("%w: unexpected character %q at position %d", ErrInvalidExpression, string(c), i)
		}
	}

	return append(tokens, token{kind: tokEOF, pos: len(src)}), nil
}

// scanNumber consumes digits, an optional fraction and an optional exponent.
func scanNumber(src string, i int) int {
	for i < len(src) && isDigit(src[i]) {
		i++
	}
	if i < len(src) && src[i] == '.' {
		i++
		for i < len(src) && isDigit(src[i]) {
			i++
		}
	}
	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		j := i + 1
		if j < len(src) && (src[j] == '+' || src[j] == '-') {
			j++
		}
		if j < len(src) && isDigit(src[j]) {
			i = j
			for i < len(src) && isDigit(src[i]) {
				i++
			}
		}
	}
	return i
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
