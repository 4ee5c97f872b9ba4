package rules

import (
	"fmt"
	"strings"

	"github.com/miethe/dealbrain/formula"
)

// programLookup resolves a formula expression to its compiled program.
// The engine backs this with its program cache; expressions are validated at
// save time, so a lookup failure is itself an anomaly worth a diagnostic.
type programLookup func(expr string) (*formula.Program, error)

// evalNode recursively evaluates a condition tree against a listing context.
//
// The evaluator never fails: coercion problems, malformed literals, and
// missing fields all degrade to a false match with a diagnostic, so one
// malformed listing can never abort a ruleset pass. All children of a group
// are evaluated (no short-circuit) so the trace is complete for previews.
func evalNode(n *ConditionNode, ctx Context, progs programLookup, tr *Trace) bool {
	if n == nil {
		return true
	}

	if n.IsGroup() {
		// An empty group is vacuously true: it expresses "no additional
		// constraint" and must match everything.
		if len(n.Children) == 0 {
			return true
		}

		switch n.Logical {
		case LogicalAnd:
			all := true
			for _, child := range n.Children {
				if !evalNode(child, ctx, progs, tr) {
					all = false
				}
			}
			return all
		case LogicalOr:
			any := false
			for _, child := range n.Children {
				if evalNode(child, ctx, progs, tr) {
					any = true
				}
			}
			return any
		}

		tr.Diagnostics = append(tr.Diagnostics, fmt.Sprintf("unknown logical operator %q, evaluating false", n.Logical))
		return false
	}

	return evalLeaf(n, ctx, progs, tr)
}

func evalLeaf(n *ConditionNode, ctx Context, progs programLookup, tr *Trace) bool {
	path := n.FieldPath
	var actual any
	var present bool

	if n.Expression != "" {
		path = n.Expression
		prog, err := progs(n.Expression)
		if err != nil {
			tr.Diagnostics = append(tr.Diagnostics, fmt.Sprintf("formula leaf %q failed to compile: %v", n.Expression, err))
			tr.Leaves = append(tr.Leaves, LeafTrace{Path: path, Operator: n.Operator, Expected: n.Value, Matched: false})
			return false
		}
		val, diags := prog.Run(ctx)
		tr.Diagnostics = append(tr.Diagnostics, diags...)
		actual, present = val, true
	} else {
		actual, present = ctx.Resolve(n.FieldPath)
	}

	if !present {
		tr.Diagnostics = append(tr.Diagnostics, fmt.Sprintf("field %q missing from context, condition evaluates false", n.FieldPath))
		tr.Leaves = append(tr.Leaves, LeafTrace{Path: path, Operator: n.Operator, Expected: n.Value, Actual: nil, Matched: false})
		return false
	}

	matched, diag := compare(n.Operator, actual, n.Value)
	if diag != "" {
		tr.Diagnostics = append(tr.Diagnostics, fmt.Sprintf("%s %s: %s", path, n.Operator, diag))
	}

	tr.Leaves = append(tr.Leaves, LeafTrace{Path: path, Operator: n.Operator, Expected: n.Value, Actual: actual, Matched: matched})
	return matched
}

// compare applies one operator. The second return value is a non-empty
// diagnostic when the comparison failed closed (type mismatch, malformed
// literal) rather than legitimately evaluating false.
func compare(op Operator, actual, expected any) (bool, string) {
	switch op {
	case OpEquals:
		return valuesEqual(actual, expected)

	case OpNotEquals:
		eq, diag := valuesEqual(actual, expected)
		if diag != "" {
			return false, diag
		}
		return !eq, ""

	case OpGreaterThan, OpLessThan, OpGTE, OpLTE:
		cmp, ok := orderedCompare(actual, expected)
		if !ok {
			return false, fmt.Sprintf("cannot order %T against %T", actual, expected)
		}
		switch op {
		case OpGreaterThan:
			return cmp > 0, ""
		case OpLessThan:
			return cmp < 0, ""
		case OpGTE:
			return cmp >= 0, ""
		default:
			return cmp <= 0, ""
		}

	case OpContains, OpStartsWith, OpEndsWith:
		a, aok := actual.(string)
		e, eok := expected.(string)
		if !aok || !eok {
			return false, fmt.Sprintf("string operator applied to %T and %T", actual, expected)
		}
		switch op {
		case OpContains:
			return strings.Contains(a, e), ""
		case OpStartsWith:
			return strings.HasPrefix(a, e), ""
		default:
			return strings.HasSuffix(a, e), ""
		}

	case OpIn, OpNotIn:
		list, ok := expected.([]any)
		if !ok {
			return false, fmt.Sprintf("%s requires a list literal, got %T", op, expected)
		}
		found := false
		for _, item := range list {
			if eq, _ := valuesEqual(actual, item); eq {
				found = true
				break
			}
		}
		if op == OpIn {
			return found, ""
		}
		return !found, ""

	case OpBetween:
		bounds, ok := expected.([]any)
		if !ok || len(bounds) != 2 {
			return false, fmt.Sprintf("between requires a 2-element literal, got %v", expected)
		}
		lowCmp, lowOK := orderedCompare(actual, bounds[0])
		highCmp, highOK := orderedCompare(actual, bounds[1])
		if !lowOK || !highOK {
			return false, fmt.Sprintf("cannot order %T against between bounds", actual)
		}
		return lowCmp >= 0 && highCmp <= 0, ""
	}

	return false, fmt.Sprintf("unknown operator %q", op)
}

// valuesEqual compares two values of possibly differing dynamic types.
// Numbers compare numerically, booleans as booleans, strings as strings;
// anything else is a type mismatch reported as a diagnostic.
func valuesEqual(a, b any) (bool, string) {
	if an, aok := toNumber(a); aok {
		if bn, bok := toNumber(b); bok {
			return an == bn, ""
		}
		return false, fmt.Sprintf("number compared against %T", b)
	}

	if ab, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			return ab == bb, ""
		}
		return false, fmt.Sprintf("boolean compared against %T", b)
	}

	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return as == bs, ""
		}
		return false, fmt.Sprintf("string compared against %T", b)
	}

	return false, fmt.Sprintf("unsupported comparison between %T and %T", a, b)
}

// orderedCompare returns -1/0/+1 for values that admit an ordering.
// Numbers order numerically; strings (including ISO 8601 dates, which order
// correctly as text) order lexically.
func orderedCompare(a, b any) (int, bool) {
	if an, aok := toNumber(a); aok {
		bn, bok := toNumber(b)
		if !bok {
			return 0, false
		}
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		}
		return 0, true
	}

	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}

	return 0, false
}
