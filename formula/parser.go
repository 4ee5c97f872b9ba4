package formula

import (
	"fmt"
	"strconv"
)

type tokKind int

const (
	tokEOF tokKind = iota
	tokNumber
	tokIdent
	tokOp     // + - * /
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokKind
	pos  int
	text string
	num  float64
}

type lexer struct {
	src string
	off int
}

func newLexer(src string) *lexer {
	return &lexer{src: src}
}

func (l *lexer) next() (token, error) {
	for l.off < len(l.src) && isSpace(l.src[l.off]) {
		l.off++
	}

	if l.off >= len(l.src) {
		return token{kind: tokEOF, pos: l.off}, nil
	}

	start := l.off
	c := l.src[l.off]

	switch {
	case c == '+' || c == '-' || c == '*' || c == '/':
		l.off++
		return token{kind: tokOp, pos: start, text: string(c)}, nil
	case c == '(':
		l.off++
		return token{kind: tokLParen, pos: start, text: "("}, nil
	case c == ')':
		l.off++
		return token{kind: tokRParen, pos: start, text: ")"}, nil
	case c == ',':
		l.off++
		return token{kind: tokComma, pos: start, text: ","}, nil
	case isDigit(c) || c == '.':
		return l.lexNumber(start)
	case isIdentStart(c):
		return l.lexIdent(start)
	}

	return token{}, &Error{Pos: start, Msg: fmt.Sprintf("unexpected character %q", c)}
}

func (l *lexer) lexNumber(start int) (token, error) {
	sawDot := false
	for l.off < len(l.src) {
		c := l.src[l.off]
		if c == '.' {
			// A dot may separate a number from an identifier only inside
			// the literal itself; two dots means the literal is malformed.
			if sawDot {
				return token{}, &Error{Pos: start, Msg: "malformed number literal"}
			}
			sawDot = true
			l.off++
			continue
		}
		if !isDigit(c) {
			break
		}
		l.off++
	}

	text := l.src[start:l.off]
	num, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, &Error{Pos: start, Msg: fmt.Sprintf("malformed number literal %q", text)}
	}

	return token{kind: tokNumber, pos: start, text: text, num: num}, nil
}

func (l *lexer) lexIdent(start int) (token, error) {
	// Identifiers are dotted field paths: segment ('.' segment)*
	for {
		for l.off < len(l.src) && isIdentPart(l.src[l.off]) {
			l.off++
		}
		if l.off < len(l.src) && l.src[l.off] == '.' {
			if l.off+1 >= len(l.src) || !isIdentStart(l.src[l.off+1]) {
				return token{}, &Error{Pos: start, Msg: fmt.Sprintf("malformed field path %q", l.src[start:l.off+1])}
			}
			l.off++ // consume the dot and continue with the next segment
			continue
		}
		break
	}

	return token{kind: tokIdent, pos: start, text: l.src[start:l.off]}, nil
}

func isSpace(c byte) bool  { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

// functions is the fixed call allowlist: name -> (min arity, max arity)
var functions = map[string][2]int{
	"min":   {2, maxArity},
	"max":   {2, maxArity},
	"round": {1, 1},
	"abs":   {1, 1},
}

const maxArity = 16

type parser struct {
	lex *lexer
	tok token
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

// parseExpr handles the additive level: term (('+'|'-') term)*
func (p *parser) parseExpr() (*node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	for p.tok.kind == tokOp && (p.tok.text == "+" || p.tok.text == "-") {
		op := p.tok.text[0]
		pos := p.tok.pos
		if err := p.advance(); err != nil {
			return nil, err
		}

		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}

		left = &node{kind: nodeBinary, pos: pos, op: op, args: []*node{left, right}}
	}

	return left, nil
}

// parseTerm handles the multiplicative level: unary (('*'|'/') unary)*
func (p *parser) parseTerm() (*node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for p.tok.kind == tokOp && (p.tok.text == "*" || p.tok.text == "/") {
		op := p.tok.text[0]
		pos := p.tok.pos
		if err := p.advance(); err != nil {
			return nil, err
		}

		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		left = &node{kind: nodeBinary, pos: pos, op: op, args: []*node{left, right}}
	}

	return left, nil
}

func (p *parser) parseUnary() (*node, error) {
	if p.tok.kind == tokOp && p.tok.text == "-" {
		pos := p.tok.pos
		if err := p.advance(); err != nil {
			return nil, err
		}

		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		return &node{kind: nodeNeg, pos: pos, args: []*node{operand}}, nil
	}

	return p.parsePrimary()
}

func (p *parser) parsePrimary() (*node, error) {
	switch p.tok.kind {
	case tokNumber:
		n := &node{kind: nodeNumber, pos: p.tok.pos, num: p.tok.num}
		return n, p.advance()

	case tokIdent:
		name := p.tok.text
		pos := p.tok.pos
		if err := p.advance(); err != nil {
			return nil, err
		}

		if p.tok.kind == tokLParen {
			return p.parseCall(name, pos)
		}

		if _, isFn := functions[name]; isFn {
			return nil, &Error{Pos: pos, Msg: fmt.Sprintf("%s is a function and must be called", name)}
		}

		return &node{kind: nodeField, pos: pos, field: name}, nil

	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}

		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}

		if p.tok.kind != tokRParen {
			return nil, &Error{Pos: p.tok.pos, Msg: "expected closing parenthesis"}
		}

		return inner, p.advance()

	case tokEOF:
		return nil, &Error{Pos: p.tok.pos, Msg: "unexpected end of expression"}
	}

	return nil, &Error{Pos: p.tok.pos, Msg: fmt.Sprintf("unexpected %q", p.tok.text)}
}

func (p *parser) parseCall(name string, pos int) (*node, error) {
	arity, ok := functions[name]
	if !ok {
		return nil, &Error{Pos: pos, Msg: fmt.Sprintf("unknown function %q (allowed: min, max, round, abs)", name)}
	}

	// consume '('
	if err := p.advance(); err != nil {
		return nil, err
	}

	var args []*node
	if p.tok.kind != tokRParen {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)

			if p.tok.kind != tokComma {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}

	if p.tok.kind != tokRParen {
		return nil, &Error{Pos: p.tok.pos, Msg: "expected closing parenthesis in function call"}
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	if len(args) < arity[0] {
		return nil, &Error{Pos: pos, Msg: fmt.Sprintf("%s expects at least %d argument(s), got %d", name, arity[0], len(args))}
	}
	if len(args) > arity[1] {
		return nil, &Error{Pos: pos, Msg: fmt.Sprintf("%s expects at most %d argument(s), got %d", name, arity[1], len(args))}
	}

	return &node{kind: nodeCall, pos: pos, fn: name, args: args}, nil
}
