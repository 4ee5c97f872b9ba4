// Package formula implements the arithmetic mini-language used by
// formula-type valuation actions and formula condition leaves.
//
// Expressions are compiled once, at rule-save time, into a fixed AST that is
// interpreted by a closed evaluator: there is no dynamic dispatch beyond the
// node kinds defined here and the four allowlisted functions. A broken
// expression is rejected at compile time with a byte offset, so evaluation
// can never fail hard; runtime anomalies (division by zero, unresolved
// fields) degrade to zero with a diagnostic.
package formula

import (
	"fmt"
	"sort"
)

// Error is a compile-time formula error with the byte offset of the offending token
type Error struct {
	Pos int
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("formula: %s at position %d", e.Msg, e.Pos)
}

// Resolver supplies numeric values for field-path identifiers at run time
type Resolver interface {
	ResolveNumber(path string) (float64, bool)
}

// ResolverFunc adapts a function to the Resolver interface
type ResolverFunc func(path string) (float64, bool)

func (f ResolverFunc) ResolveNumber(path string) (float64, bool) {
	return f(path)
}

type nodeKind int

const (
	nodeNumber nodeKind = iota
	nodeField
	nodeNeg
	nodeBinary
	nodeCall
)

// node is one vertex of the compiled AST. The evaluator dispatches on kind
// over this finite set and nothing else.
type node struct {
	kind  nodeKind
	pos   int
	num   float64 // nodeNumber
	field string  // nodeField
	op    byte    // nodeBinary: one of + - * /
	fn    string  // nodeCall
	args  []*node // nodeNeg operand, nodeBinary operands, nodeCall arguments
}

// Program is a compiled formula ready for repeated evaluation
type Program struct {
	expr string
	root *node
}

// Compile parses and validates an expression.
// Syntax errors, unknown functions, and bad arities are reported with a
// precise position; a Program that compiles can always be run.
func Compile(expr string) (*Program, error) {
	p := &parser{lex: newLexer(expr)}
	if err := p.advance(); err != nil {
		return nil, err
	}

	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	if p.tok.kind != tokEOF {
		return nil, &Error{Pos: p.tok.pos, Msg: fmt.Sprintf("unexpected %q", p.tok.text)}
	}

	return &Program{expr: expr, root: root}, nil
}

// Expression returns the source text the program was compiled from
func (p *Program) Expression() string {
	return p.expr
}

// Fields returns the distinct field paths the program references, sorted
func (p *Program) Fields() []string {
	set := make(map[string]bool)
	collectFields(p.root, set)

	fields := make([]string, 0, len(set))
	for f := range set {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// CheckFields verifies every referenced identifier against the known set.
// Used at rule-save time so an unknown field can never reach evaluation.
func (p *Program) CheckFields(known func(path string) bool) error {
	return checkFields(p.root, known)
}

func collectFields(n *node, set map[string]bool) {
	if n == nil {
		return
	}
	if n.kind == nodeField {
		set[n.field] = true
	}
	for _, arg := range n.args {
		collectFields(arg, set)
	}
}

func checkFields(n *node, known func(string) bool) error {
	if n == nil {
		return nil
	}
	if n.kind == nodeField && !known(n.field) {
		return &Error{Pos: n.pos, Msg: fmt.Sprintf("unknown field %q", n.field)}
	}
	for _, arg := range n.args {
		if err := checkFields(arg, known); err != nil {
			return err
		}
	}
	return nil
}
