package rules

import (
	"fmt"

	"github.com/miethe/dealbrain/formula"
)

// applyAction computes a single action's price delta.
//
// Identical (action, context, running price) inputs always produce the
// identical delta: there is no clock, randomness, or hidden state here.
// Percentage actions compute against the running (already-adjusted) price at
// the point they execute, which is what makes ordered rules compound.
func applyAction(a Action, prog *formula.Program, ctx Context, running float64) (float64, []string) {
	var delta float64
	var diags []string

	switch a.Type {
	case ActionFixedValue:
		delta = a.Amount

	case ActionPerUnit:
		qty, ok := ctx.ResolveNumber(a.QuantityField)
		if !ok {
			diags = append(diags, fmt.Sprintf("quantity field %q missing, action contributes 0", a.QuantityField))
			break
		}
		delta = a.ValuePerUnit * qty

	case ActionPercentage:
		delta = a.Percent / 100 * running

	case ActionBenchmarkBased:
		mark, ok := ctx.ResolveNumber(a.BenchmarkField)
		if !ok {
			diags = append(diags, fmt.Sprintf("benchmark field %q missing, action contributes 0", a.BenchmarkField))
			break
		}
		delta = a.ValuePerMark * mark

	case ActionFormula:
		if prog == nil {
			diags = append(diags, fmt.Sprintf("formula %q not compiled, action contributes 0", a.Expression))
			break
		}
		value, formulaDiags := prog.Run(ctx)
		diags = append(diags, formulaDiags...)
		delta = value

	default:
		diags = append(diags, fmt.Sprintf("unknown action type %q, action contributes 0", a.Type))
	}

	mult := multiplierFor(a, ctx, &diags)
	return delta * mult, diags
}

// multiplierFor looks up the action's condition multiplier for the listing's
// condition label. A label absent from the map means 1.0; a label outside
// the closed enumeration also means 1.0, but is reported.
func multiplierFor(a Action, ctx Context, diags *[]string) float64 {
	if len(a.ConditionMultipliers) == 0 {
		return 1.0
	}

	label := ctx.Condition()
	if m, ok := a.ConditionMultipliers[label]; ok {
		return m
	}

	if label != "" && !label.IsValid() {
		*diags = append(*diags, fmt.Sprintf("listing condition %q is not a known label, multiplier defaults to 1.0", label))
	}

	return 1.0
}
