package rules

import (
	"context"
	"math"
	"strings"
	"testing"
)

func previewSamples() []Context {
	return []Context{
		{
			"listing": map[string]any{"price": 500.0, "condition": "used"},
			"ram_gb":  16.0,
		},
		{
			"listing": map[string]any{"price": 300.0, "condition": "used"},
			"ram_gb":  8.0,
		},
		{
			"listing": map[string]any{"price": 900.0, "condition": "new"},
			"ram_gb":  32.0,
		},
		{
			"listing": map[string]any{"price": 150.0, "condition": "for_parts"},
			"ram_gb":  4.0,
		},
	}
}

func TestPreviewStats(t *testing.T) {
	engine := newTestEngine(t, seedStore(t))

	def := RuleDefinition{
		Name:       "Draft Discount",
		Priority:   10,
		Active:     true,
		Conditions: leaf("ram_gb", OpGTE, 16.0),
		Actions:    []Action{{Type: ActionFixedValue, Amount: -50}},
	}

	result, err := engine.Preview(context.Background(), def, previewSamples())
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}

	if result.Total != 4 {
		t.Errorf("Total = %d, want 4", result.Total)
	}
	if result.Matched != 2 {
		t.Errorf("Matched = %d, want 2", result.Matched)
	}
	if math.Abs(result.MatchRate-0.5) > 1e-9 {
		t.Errorf("MatchRate = %v, want 0.5", result.MatchRate)
	}
	if math.Abs(result.AvgDelta-(-50)) > 1e-9 {
		t.Errorf("AvgDelta = %v, want -50", result.AvgDelta)
	}
	if len(result.MatchedSamples) != 2 || len(result.NonMatchedSamples) != 2 {
		t.Fatalf("sample split = %d/%d, want 2/2",
			len(result.MatchedSamples), len(result.NonMatchedSamples))
	}

	first := result.MatchedSamples[0]
	if first.Index != 0 || first.AdjustedPrice != 450 {
		t.Errorf("matched sample = %+v, want index 0 adjusted to 450", first)
	}
}

func TestPreviewExplainsNonMatches(t *testing.T) {
	engine := newTestEngine(t, seedStore(t))

	def := RuleDefinition{
		Name:     "High Spec Used",
		Priority: 10,
		Active:   true,
		Conditions: group(LogicalAnd,
			leaf("ram_gb", OpGTE, 16.0),
			leaf("listing.condition", OpEquals, "used"),
		),
		Actions: []Action{{Type: ActionFixedValue, Amount: -50}},
	}

	result, err := engine.Preview(context.Background(), def, previewSamples())
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}

	if result.Matched != 1 {
		t.Fatalf("Matched = %d, want 1", result.Matched)
	}

	// Sample 2 (32GB, new) fails only the condition leaf.
	var newListing *SampleResult
	for i := range result.NonMatchedSamples {
		if result.NonMatchedSamples[i].Index == 2 {
			newListing = &result.NonMatchedSamples[i]
		}
	}
	if newListing == nil {
		t.Fatal("sample 2 missing from non-matched samples")
	}
	if len(newListing.Reasons) != 1 || !strings.Contains(newListing.Reasons[0], "listing.condition") {
		t.Errorf("Reasons = %v, want single listing.condition entry", newListing.Reasons)
	}
	if !strings.Contains(newListing.Reasons[0], "actual new") {
		t.Errorf("Reasons = %v, want the actual value surfaced", newListing.Reasons)
	}
}

func TestPreviewRejectsInvalidDefinition(t *testing.T) {
	engine := newTestEngine(t, seedStore(t))

	def := RuleDefinition{Name: "Broken", Actions: []Action{{Type: "nope"}}}
	if _, err := engine.Preview(context.Background(), def, previewSamples()); err == nil {
		t.Fatal("Preview succeeded with invalid definition, want error")
	}
}

func TestPreviewHonorsCancellation(t *testing.T) {
	engine := newTestEngine(t, seedStore(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	def := RuleDefinition{
		Name:     "Cancelled",
		Priority: 10,
		Active:   true,
		Actions:  []Action{{Type: ActionFixedValue, Amount: -1}},
	}
	_, err := engine.Preview(ctx, def, previewSamples())
	if err != context.Canceled {
		t.Fatalf("Preview error = %v, want context.Canceled", err)
	}
}

func TestPreviewPersistsNothing(t *testing.T) {
	store := seedStore(t)
	engine := newTestEngine(t, store)

	def := RuleDefinition{
		Name:     "Ephemeral",
		Priority: 10,
		Active:   true,
		Actions:  []Action{{Type: ActionFixedValue, Amount: -10}},
	}
	if _, err := engine.Preview(context.Background(), def, previewSamples()); err != nil {
		t.Fatalf("Preview failed: %v", err)
	}

	rules, err := store.ListRules(context.Background())
	if err != nil {
		t.Fatalf("ListRules failed: %v", err)
	}
	if len(rules) != 0 {
		t.Errorf("store has %d rules after preview, want 0", len(rules))
	}
}
