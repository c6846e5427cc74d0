package calculator

import (
	"fmt"
	"strconv"
)

const (
	maxExpressionLength = 1024
	maxDepth            = 64
)

var constants = map[string]float64{
	"pi": 3.141592653589793,
	"e":  2.718281828459045,
}

// Allowed functions and their accepted argument counts.
var functions = map[string]struct{ min, max int }{
	"sqrt":  {1, 1},
	"abs":   {1, 1},
	"round": {1, 2},
	"pow":   {2, 2},
}

// Grammar, lowest precedence first:
//
//	expr    = term { ("+" | "-") term }
//	term    = unary { ("*" | "/" | "%") unary }
//	unary   = ("+" | "-") unary | power
//	power   = primary [ "**" unary ]
//	primary = number | constant | function "(" args ")" | "(" expr ")"
type parser struct {
	tokens []token
	pos    int
	depth  int
}

func parse(src string) (node, error) {
	if len(src) > maxExpressionLength {
		return nil, fmt.Errorf("%w: expression longer than %d characters", ErrInvalidExpression, maxExpressionLength)
	}

	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	if p.peek().kind == tokEOF {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidExpression)
	}

	n, err := p.expr()
	if err != nil {
		return nil, err
	}

	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.unexpected(tok)
	}

	return n, nil
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isOp(ops ...string) bool {
	tok := p.peek()
	if tok.kind != tokOp {
		return false
	}
	for _, op := range ops {
		if tok.text == op {
			return true
		}
	}
	return false
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > maxDepth {
		return fmt.Errorf("%w: expression nested deeper than %d levels", ErrInvalidExpression, maxDepth)
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) expr() (node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	left, err := p.term()
	if err != nil {
		return nil, err
	}

	for p.isOp("+", "-") {
		op := p.next().text
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}

	return left, nil
}

func (p *parser) term() (node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}

	for p.isOp("*", "/", "%") {
		op := p.next().text
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}

	return left, nil
}

func (p *parser) unary() (node, error) {
	if p.isOp("+", "-") {
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()

		op := p.next().text
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: op, operand: operand}, nil
	}

	return p.power()
}

func (p *parser) power() (node, error) {
	base, err := p.primary()
	if err != nil {
		return nil, err
	}

	if p.isOp("**") {
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()

		p.next()
		exp, err := p.unary()
		if err != nil {
			return nil, err
		}
		return binaryNode{op: "**", left: base, right: exp}, nil
	}

	return base, nil
}

func (p *parser) primary() (node, error) {
	tok := p.next()

	switch tok.kind {
	case tokNumber:
		v, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad number %q at position %d", ErrInvalidExpression, tok.text, tok.pos)
		}
		return numberNode(v), nil

	case tokIdent:
		if p.peek().kind == tokLParen {
			return p.call(tok)
		}
		if v, ok := constants[tok.text]; ok {
			return numberNode(v), nil
		}
		if _, ok := functions[tok.text]; ok {
			return nil, fmt.Errorf("%w: function %q must be called", ErrInvalidExpression, tok.text)
		}
		return nil, fmt.Errorf("%w: name %q is not allowed", ErrUnsupportedOperation, tok.text)

	case tokLParen:
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, p.unexpected(closing)
		}
		return inner, nil

	default:
		return nil, p.unexpected(tok)
	}
}

func (p *parser) call(name token) (node, error) {
	arity, ok := functions[name.text]
	if !ok {
		return nil, fmt.Errorf("%w: function %q is not allowed", ErrUnsupportedOperation, name.text)
	}

	p.next() // (

	var args []node
	if p.peek().kind != tokRParen {
		for {
			arg, err := p.expr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}

	if closing := p.next(); closing.kind != tokRParen {
		return nil, p.unexpected(closing)
	}

	if len(args) < arity.min || len(args) > arity.max {
		return nil, fmt.Errorf("%w: %s() takes %d to %d arguments, got %d", ErrInvalidExpression, name.text, arity.min, arity.max, len(args))
	}

	return callNode{fn: name.text, args: args}, nil
}

func (p *parser) unexpected(tok token) error {
	if tok.kind == tokEOF {
		return fmt.Errorf("%w: unexpected end of expression", ErrInvalidExpression)
	}
	return fmt.Errorf("%w: unexpected %q at position %d", ErrInvalidExpression, tok.text, tok.pos)
}
