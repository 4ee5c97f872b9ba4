package rules

import (
	"context"
	"fmt"
)

// SampleResult is the outcome of previewing a draft rule against one sample
type SampleResult struct {
	Index         int     `json:"index"`
	Matched       bool    `json:"matched"`
	Delta         float64 `json:"delta"`
	AdjustedPrice float64 `json:"adjusted_price"`
	Trace         Trace   `json:"trace"`

	// Reasons explains a non-match from its failing leaves
	Reasons []string `json:"reasons,omitempty"`
}

// PreviewResult summarizes a draft rule against a set of sample listings
type PreviewResult struct {
	Total             int            `json:"total"`
	Matched           int            `json:"matched"`
	MatchRate         float64        `json:"match_rate"`
	AvgDelta          float64        `json:"avg_delta"`
	MatchedSamples    []SampleResult `json:"matched_samples"`
	NonMatchedSamples []SampleResult `json:"non_matched_samples"`
}

// Preview evaluates a draft rule definition against sample listings with
// trace mode enabled. It is request-scoped and stateless: nothing is
// persisted, and a cancelled context abandons the run between samples so a
// newer preview can supersede an in-flight one.
func (e *Engine) Preview(ctx context.Context, def RuleDefinition, samples []Context) (*PreviewResult, error) {
	if err := ValidateDefinition(def, e.registry); err != nil {
		return nil, err
	}

	result := &PreviewResult{Total: len(samples)}
	var deltaSum float64

	for i, sample := range samples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		trace := &Trace{}
		matched := evalNode(def.Conditions, sample, e.lookup, trace)

		sr := SampleResult{Index: i, Matched: matched, Trace: *trace}

		if matched {
			base, _ := sample.BasePrice()
			running := base
			for _, action := range def.Actions {
				delta, diags := applyAction(action, e.actionProgram(action), sample, running)
				sr.Trace.Diagnostics = append(sr.Trace.Diagnostics, diags...)
				sr.Delta += delta
				running += delta
				if running < 0 {
					running = 0
				}
			}
			sr.AdjustedPrice = running

			deltaSum += sr.Delta
			result.Matched++
			result.MatchedSamples = append(result.MatchedSamples, sr)
			continue
		}

		for _, leaf := range trace.FailingLeaves() {
			sr.Reasons = append(sr.Reasons, fmt.Sprintf("%s %s %v: actual %v", leaf.Path, leaf.Operator, leaf.Expected, leaf.Actual))
		}
		result.NonMatchedSamples = append(result.NonMatchedSamples, sr)
	}

	if result.Total > 0 {
		result.MatchRate = float64(result.Matched) / float64(result.Total)
	}
	if result.Matched > 0 {
		result.AvgDelta = deltaSum / float64(result.Matched)
	}

	return result, nil
}
