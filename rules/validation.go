package rules

import (
	"fmt"
	"math"
	"strings"

	"github.com/miethe/dealbrain/formula"
	"github.com/miethe/dealbrain/registry"
)

// maxConditionDepth bounds condition-group nesting. Three levels keeps trees
// representable in the authoring UI and bounds evaluation cost.
const maxConditionDepth = 3

// ValidationError is one field-level problem found at rule-save time
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates every problem found in one definition
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return "invalid rule definition: " + strings.Join(msgs, "; ")
}

// operatorsByType is the operator compatibility matrix, checked at save time.
// The evaluator itself never rejects a rule for type reasons; anything that
// slips past authoring only ever degrades to a false match.
var operatorsByType = map[registry.FieldType]map[Operator]bool{
	registry.TypeString: {
		OpEquals: true, OpNotEquals: true, OpContains: true,
		OpStartsWith: true, OpEndsWith: true, OpIn: true, OpNotIn: true,
	},
	registry.TypeNumber: {
		OpEquals: true, OpNotEquals: true, OpGreaterThan: true, OpLessThan: true,
		OpGTE: true, OpLTE: true, OpIn: true, OpNotIn: true, OpBetween: true,
	},
	registry.TypeBoolean: {
		OpEquals: true, OpNotEquals: true,
	},
	registry.TypeEnum: {
		OpEquals: true, OpNotEquals: true, OpIn: true, OpNotIn: true,
	},
	registry.TypeDate: {
		OpEquals: true, OpNotEquals: true, OpGreaterThan: true, OpLessThan: true,
		OpGTE: true, OpLTE: true, OpBetween: true,
	},
}

// ValidateDefinition checks a rule definition against the field registry.
// Returns ValidationErrors listing every problem, nil if the definition is
// valid. This is the gate that keeps validation errors out of evaluation.
func ValidateDefinition(def RuleDefinition, reg registry.Registry) error {
	var errs ValidationErrors

	if strings.TrimSpace(def.Name) == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "name cannot be empty"})
	}

	errs = append(errs, validateConditions(def.Conditions, reg, "conditions", 1)...)

	if len(def.Actions) == 0 {
		errs = append(errs, ValidationError{Field: "actions", Message: "rule must define at least one action"})
	}
	for i, action := range def.Actions {
		errs = append(errs, validateAction(action, reg, fmt.Sprintf("actions[%d]", i))...)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateConditions(n *ConditionNode, reg registry.Registry, field string, depth int) ValidationErrors {
	var errs ValidationErrors
	if n == nil {
		return nil
	}

	if n.IsGroup() {
		if n.Logical != LogicalAnd && n.Logical != LogicalOr {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("logical operator must be AND or OR, got %q", n.Logical)})
		}
		if depth > maxConditionDepth {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("condition groups nest deeper than %d levels", maxConditionDepth)})
			return errs
		}
		for i, child := range n.Children {
			errs = append(errs, validateConditions(child, reg, fmt.Sprintf("%s.children[%d]", field, i), depth+1)...)
		}
		return errs
	}

	return append(errs, validateLeaf(n, reg, field)...)
}

func validateLeaf(n *ConditionNode, reg registry.Registry, field string) ValidationErrors {
	var errs ValidationErrors

	var fieldType registry.FieldType
	switch {
	case n.Expression != "":
		if n.FieldPath != "" {
			errs = append(errs, ValidationError{Field: field, Message: "leaf cannot set both field_path and expression"})
		}
		if err := validateExpression(n.Expression, reg); err != nil {
			errs = append(errs, ValidationError{Field: field + ".expression", Message: err.Error()})
		}
		// A formula leaf always produces a number
		fieldType = registry.TypeNumber

	case n.FieldPath != "":
		if !reg.Has(n.FieldPath) {
			errs = append(errs, ValidationError{Field: field + ".field_path", Message: fmt.Sprintf("unknown field path %q", n.FieldPath)})
			return errs
		}
		fieldType = reg.TypeOf(n.FieldPath)

	default:
		errs = append(errs, ValidationError{Field: field, Message: "leaf must set field_path or expression"})
		return errs
	}

	allowed, known := operatorsByType[fieldType]
	if !known || !allowed[n.Operator] {
		errs = append(errs, ValidationError{
			Field:   field + ".operator",
			Message: fmt.Sprintf("operator %q is not valid for %s fields", n.Operator, fieldType),
		})
	}

	errs = append(errs, validateLiteral(n, fieldType, reg, field)...)
	return errs
}

func validateLiteral(n *ConditionNode, fieldType registry.FieldType, reg registry.Registry, field string) ValidationErrors {
	var errs ValidationErrors

	switch n.Operator {
	case OpIn, OpNotIn:
		list, ok := n.Value.([]any)
		if !ok {
			errs = append(errs, ValidationError{Field: field + ".value", Message: fmt.Sprintf("%s requires a list literal", n.Operator)})
			return errs
		}
		if len(list) == 0 {
			errs = append(errs, ValidationError{Field: field + ".value", Message: fmt.Sprintf("%s requires a non-empty list literal", n.Operator)})
		}
		if fieldType == registry.TypeEnum {
			for _, item := range list {
				errs = append(errs, validateEnumValue(item, n.FieldPath, reg, field)...)
			}
		}

	case OpBetween:
		bounds, ok := n.Value.([]any)
		if !ok || len(bounds) != 2 {
			errs = append(errs, ValidationError{Field: field + ".value", Message: "between requires a 2-element literal"})
		}

	case OpEquals, OpNotEquals:
		if fieldType == registry.TypeEnum {
			errs = append(errs, validateEnumValue(n.Value, n.FieldPath, reg, field)...)
		}
	}

	return errs
}

func validateEnumValue(value any, path string, reg registry.Registry, field string) ValidationErrors {
	s, ok := value.(string)
	if !ok {
		return ValidationErrors{{Field: field + ".value", Message: fmt.Sprintf("enum field %q requires string literals", path)}}
	}

	for _, opt := range reg.Options(path) {
		if opt == s {
			return nil
		}
	}

	return ValidationErrors{{Field: field + ".value", Message: fmt.Sprintf("%q is not an option of enum field %q", s, path)}}
}

func validateAction(a Action, reg registry.Registry, field string) ValidationErrors {
	var errs ValidationErrors

	switch a.Type {
	case ActionFixedValue:
		// Amount of 0 is legal, if pointless

	case ActionPerUnit:
		errs = append(errs, requireNumericField(a.QuantityField, reg, field+".quantity_field")...)

	case ActionPercentage:
		if a.Percent < -100 {
			errs = append(errs, ValidationError{Field: field + ".percent", Message: "percentage cannot reduce price by more than 100%"})
		}

	case ActionBenchmarkBased:
		errs = append(errs, requireNumericField(a.BenchmarkField, reg, field+".benchmark_field")...)

	case ActionFormula:
		if a.Expression == "" {
			errs = append(errs, ValidationError{Field: field + ".expression", Message: "formula action requires an expression"})
		} else if err := validateExpression(a.Expression, reg); err != nil {
			errs = append(errs, ValidationError{Field: field + ".expression", Message: err.Error()})
		}

	default:
		errs = append(errs, ValidationError{Field: field + ".type", Message: fmt.Sprintf("unknown action type %q", a.Type)})
	}

	for label, mult := range a.ConditionMultipliers {
		if !label.IsValid() {
			errs = append(errs, ValidationError{
				Field:   field + ".condition_multipliers",
				Message: fmt.Sprintf("%q is not a known listing condition", label),
			})
		}
		if math.IsNaN(mult) || math.IsInf(mult, 0) {
			errs = append(errs, ValidationError{
				Field:   field + ".condition_multipliers",
				Message: fmt.Sprintf("multiplier for %q must be a finite number", label),
			})
		}
	}

	return errs
}

func requireNumericField(path string, reg registry.Registry, field string) ValidationErrors {
	if path == "" {
		return ValidationErrors{{Field: field, Message: "field path is required"}}
	}
	if !reg.Has(path) {
		return ValidationErrors{{Field: field, Message: fmt.Sprintf("unknown field path %q", path)}}
	}
	if reg.TypeOf(path) != registry.TypeNumber {
		return ValidationErrors{{Field: field, Message: fmt.Sprintf("field %q is not numeric", path)}}
	}
	return nil
}

// validateExpression compiles a formula and checks every identifier against
// the registry's numeric fields, so a broken formula can never reach runtime.
func validateExpression(expr string, reg registry.Registry) error {
	prog, err := formula.Compile(expr)
	if err != nil {
		return err
	}

	return prog.CheckFields(func(path string) bool {
		return reg.Has(path) && reg.TypeOf(path) == registry.TypeNumber
	})
}
