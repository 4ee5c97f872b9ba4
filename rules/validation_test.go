package rules

import (
	"errors"
	"strings"
	"testing"

	"github.com/miethe/dealbrain/registry"
)

func validDefinition() RuleDefinition {
	return RuleDefinition{
		Name:     "Used Market Discount",
		Priority: 10,
		Active:   true,
		Conditions: group(LogicalAnd,
			leaf("listing.condition", OpEquals, "used"),
			leaf("ram_gb", OpGTE, 8.0),
		),
		Actions: []Action{{Type: ActionPercentage, Percent: -5}},
	}
}

func TestValidateDefinitionAccepts(t *testing.T) {
	reg := registry.Default()

	tests := []struct {
		name   string
		mutate func(*RuleDefinition)
	}{
		{name: "baseline", mutate: func(*RuleDefinition) {}},
		{name: "nil conditions", mutate: func(d *RuleDefinition) { d.Conditions = nil }},
		{name: "empty group", mutate: func(d *RuleDefinition) { d.Conditions = group(LogicalOr) }},
		{
			name: "three levels of nesting",
			mutate: func(d *RuleDefinition) {
				d.Conditions = group(LogicalAnd,
					group(LogicalOr,
						group(LogicalAnd, leaf("ram_gb", OpGTE, 8.0)),
					),
				)
			},
		},
		{
			name: "formula condition leaf",
			mutate: func(d *RuleDefinition) {
				d.Conditions = &ConditionNode{
					Expression: "ram_gb * 2 + storage_gb * 0.1",
					Operator:   OpGreaterThan,
					Value:      50.0,
				}
			},
		},
		{
			name: "all action types",
			mutate: func(d *RuleDefinition) {
				d.Actions = []Action{
					{Type: ActionFixedValue, Amount: -20},
					{Type: ActionPerUnit, ValuePerUnit: 2, QuantityField: "ram_gb"},
					{Type: ActionPercentage, Percent: -100},
					{Type: ActionBenchmarkBased, ValuePerMark: 0.01, BenchmarkField: "cpu.cpu_mark_multi"},
					{Type: ActionFormula, Expression: "min(storage_gb, 1000) * 0.05"},
				}
			},
		},
		{
			name: "valid condition multipliers",
			mutate: func(d *RuleDefinition) {
				d.Actions[0].ConditionMultipliers = map[ListingCondition]float64{
					ConditionNew: 1, ConditionRefurbished: 0.75, ConditionUsed: 0.6, ConditionForParts: 0,
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDefinition()
			tt.mutate(&def)
			if err := ValidateDefinition(def, reg); err != nil {
				t.Errorf("ValidateDefinition failed: %v", err)
			}
		})
	}
}

func TestValidateDefinitionRejects(t *testing.T) {
	reg := registry.Default()

	tests := []struct {
		name    string
		mutate  func(*RuleDefinition)
		wantMsg string
	}{
		{
			name:    "empty name",
			mutate:  func(d *RuleDefinition) { d.Name = "   " },
			wantMsg: "name cannot be empty",
		},
		{
			name:    "no actions",
			mutate:  func(d *RuleDefinition) { d.Actions = nil },
			wantMsg: "at least one action",
		},
		{
			name: "unknown field path",
			mutate: func(d *RuleDefinition) {
				d.Conditions = leaf("listing.nonexistent", OpEquals, "x")
			},
			wantMsg: `unknown field path "listing.nonexistent"`,
		},
		{
			name: "operator invalid for type",
			mutate: func(d *RuleDefinition) {
				d.Conditions = leaf("listing.title", OpGreaterThan, "A")
			},
			wantMsg: `operator "greater_than" is not valid for string fields`,
		},
		{
			name: "contains on number",
			mutate: func(d *RuleDefinition) {
				d.Conditions = leaf("ram_gb", OpContains, "1")
			},
			wantMsg: `operator "contains" is not valid for number fields`,
		},
		{
			name: "between on enum",
			mutate: func(d *RuleDefinition) {
				d.Conditions = leaf("listing.condition", OpBetween, []any{"new", "used"})
			},
			wantMsg: `operator "between" is not valid for enum fields`,
		},
		{
			name: "enum value outside options",
			mutate: func(d *RuleDefinition) {
				d.Conditions = leaf("listing.condition", OpEquals, "mint")
			},
			wantMsg: `"mint" is not an option`,
		},
		{
			name: "in without list",
			mutate: func(d *RuleDefinition) {
				d.Conditions = leaf("ram_gb", OpIn, 16.0)
			},
			wantMsg: "requires a list literal",
		},
		{
			name: "in with empty list",
			mutate: func(d *RuleDefinition) {
				d.Conditions = leaf("ram_gb", OpIn, []any{})
			},
			wantMsg: "non-empty list",
		},
		{
			name: "between with three bounds",
			mutate: func(d *RuleDefinition) {
				d.Conditions = leaf("ram_gb", OpBetween, []any{1.0, 2.0, 3.0})
			},
			wantMsg: "2-element",
		},
		{
			name: "nesting beyond three levels",
			mutate: func(d *RuleDefinition) {
				d.Conditions = group(LogicalAnd,
					group(LogicalOr,
						group(LogicalAnd,
							group(LogicalOr, leaf("ram_gb", OpGTE, 8.0)),
						),
					),
				)
			},
			wantMsg: "nest deeper than 3 levels",
		},
		{
			name: "unknown logical operator",
			mutate: func(d *RuleDefinition) {
				d.Conditions = &ConditionNode{Logical: "XOR", Children: []*ConditionNode{leaf("ram_gb", OpGTE, 8.0)}}
			},
			wantMsg: "must be AND or OR",
		},
		{
			name: "leaf with neither path nor expression",
			mutate: func(d *RuleDefinition) {
				d.Conditions = &ConditionNode{Operator: OpEquals, Value: 1.0}
			},
			wantMsg: "must set field_path or expression",
		},
		{
			name: "leaf with both path and expression",
			mutate: func(d *RuleDefinition) {
				d.Conditions = &ConditionNode{
					FieldPath:  "ram_gb",
					Expression: "ram_gb * 2",
					Operator:   OpGreaterThan,
					Value:      10.0,
				}
			},
			wantMsg: "cannot set both",
		},
		{
			name: "formula condition with syntax error",
			mutate: func(d *RuleDefinition) {
				d.Conditions = &ConditionNode{Expression: "ram_gb +", Operator: OpGreaterThan, Value: 0.0}
			},
			wantMsg: "unexpected end of expression",
		},
		{
			name: "formula referencing non-numeric field",
			mutate: func(d *RuleDefinition) {
				d.Actions = []Action{{Type: ActionFormula, Expression: "listing.title * 2"}}
			},
			wantMsg: `unknown field "listing.title"`,
		},
		{
			name: "formula referencing unregistered field",
			mutate: func(d *RuleDefinition) {
				d.Actions = []Action{{Type: ActionFormula, Expression: "psu_watts * 0.1"}}
			},
			wantMsg: `unknown field "psu_watts"`,
		},
		{
			name: "per unit without quantity field",
			mutate: func(d *RuleDefinition) {
				d.Actions = []Action{{Type: ActionPerUnit, ValuePerUnit: 2}}
			},
			wantMsg: "field path is required",
		},
		{
			name: "per unit over non-numeric field",
			mutate: func(d *RuleDefinition) {
				d.Actions = []Action{{Type: ActionPerUnit, ValuePerUnit: 2, QuantityField: "listing.title"}}
			},
			wantMsg: "is not numeric",
		},
		{
			name: "benchmark over unknown field",
			mutate: func(d *RuleDefinition) {
				d.Actions = []Action{{Type: ActionBenchmarkBased, ValuePerMark: 0.1, BenchmarkField: "cpu.bogomips"}}
			},
			wantMsg: `unknown field path "cpu.bogomips"`,
		},
		{
			name: "percentage below -100",
			mutate: func(d *RuleDefinition) {
				d.Actions = []Action{{Type: ActionPercentage, Percent: -150}}
			},
			wantMsg: "more than 100%",
		},
		{
			name: "formula action without expression",
			mutate: func(d *RuleDefinition) {
				d.Actions = []Action{{Type: ActionFormula}}
			},
			wantMsg: "requires an expression",
		},
		{
			name: "unknown action type",
			mutate: func(d *RuleDefinition) {
				d.Actions = []Action{{Type: "multiply_by_pi"}}
			},
			wantMsg: `unknown action type "multiply_by_pi"`,
		},
		{
			name: "unknown multiplier label",
			mutate: func(d *RuleDefinition) {
				d.Actions[0].ConditionMultipliers = map[ListingCondition]float64{"mint": 1.2}
			},
			wantMsg: `"mint" is not a known listing condition`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDefinition()
			tt.mutate(&def)
			err := ValidateDefinition(def, reg)
			if err == nil {
				t.Fatal("ValidateDefinition succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestValidateDefinitionCollectsAllErrors(t *testing.T) {
	def := RuleDefinition{
		Name:       "",
		Conditions: leaf("nope", OpEquals, 1.0),
		Actions:    nil,
	}

	err := ValidateDefinition(def, registry.Default())
	if err == nil {
		t.Fatal("ValidateDefinition succeeded, want errors")
	}

	var errs ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("error is %T, want ValidationErrors", err)
	}
	if len(errs) != 3 {
		t.Errorf("collected %d errors, want 3 (name, field path, actions): %v", len(errs), errs)
	}
}
