package formula

import (
	"fmt"
	"math"
)

// maxSteps bounds evaluation work per run. Compiled ASTs are bounded by the
// source length, so the limit only ever trips on pathological inputs.
const maxSteps = 10000

// Run evaluates the program against the resolver.
//
// Run never fails: division by zero yields 0, an unresolved field reads as 0,
// and exhausting the step limit aborts to 0 — each case is reported in the
// returned diagnostics so callers can surface it.
func (p *Program) Run(res Resolver) (float64, []string) {
	ev := &evaluator{res: res, steps: maxSteps}
	val := ev.eval(p.root)
	if ev.exhausted {
		return 0, append(ev.diags, "formula evaluation step limit exceeded")
	}
	return val, ev.diags
}

type evaluator struct {
	res       Resolver
	steps     int
	exhausted bool
	diags     []string
}

func (ev *evaluator) eval(n *node) float64 {
	if ev.steps <= 0 {
		ev.exhausted = true
		return 0
	}
	ev.steps--

	switch n.kind {
	case nodeNumber:
		return n.num

	case nodeField:
		val, ok := ev.res.ResolveNumber(n.field)
		if !ok {
			ev.diags = append(ev.diags, fmt.Sprintf("field %q did not resolve to a number, using 0", n.field))
			return 0
		}
		return val

	case nodeNeg:
		return -ev.eval(n.args[0])

	case nodeBinary:
		left := ev.eval(n.args[0])
		right := ev.eval(n.args[1])

		switch n.op {
		case '+':
			return left + right
		case '-':
			return left - right
		case '*':
			return left * right
		case '/':
			if right == 0 {
				ev.diags = append(ev.diags, "division by zero, using 0")
				return 0
			}
			return left / right
		}

	case nodeCall:
		return ev.call(n)
	}

	return 0
}

func (ev *evaluator) call(n *node) float64 {
	switch n.fn {
	case "min":
		result := ev.eval(n.args[0])
		for _, arg := range n.args[1:] {
			result = math.Min(result, ev.eval(arg))
		}
		return result

	case "max":
		result := ev.eval(n.args[0])
		for _, arg := range n.args[1:] {
			result = math.Max(result, ev.eval(arg))
		}
		return result

	case "round":
		return math.Round(ev.eval(n.args[0]))

	case "abs":
		return math.Abs(ev.eval(n.args[0]))
	}

	return 0
}
