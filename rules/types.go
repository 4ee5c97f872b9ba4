package rules

import "time"

// Operator is a leaf-condition comparison operator
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpGTE         Operator = "gte"
	OpLTE         Operator = "lte"
	OpContains    Operator = "contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpBetween     Operator = "between"
)

// LogicalOp combines the children of a condition group
type LogicalOp string

const (
	LogicalAnd LogicalOp = "AND"
	LogicalOr  LogicalOp = "OR"
)

// ConditionNode is a tagged variant: a group when Logical is set, otherwise
// a leaf comparison. A leaf compares either a resolved field path or, when
// Expression is set, the result of a compiled formula against Value.
type ConditionNode struct {
	FieldPath  string    `json:"field_path,omitempty"`
	Operator   Operator  `json:"operator,omitempty"`
	Value      any       `json:"value,omitempty"`
	Expression string    `json:"expression,omitempty"`

	Logical  LogicalOp        `json:"logical_operator,omitempty"`
	Children []*ConditionNode `json:"children,omitempty"`
}

// IsGroup reports whether the node is an AND/OR group
func (n *ConditionNode) IsGroup() bool {
	return n.Logical != ""
}

// ListingCondition is the closed enumeration of listing condition labels.
// Action multiplier maps are keyed by these and validated at save time, so a
// typo can never become a silent no-op.
type ListingCondition string

const (
	ConditionNew         ListingCondition = "new"
	ConditionRefurbished ListingCondition = "refurbished"
	ConditionUsed        ListingCondition = "used"
	ConditionForParts    ListingCondition = "for_parts"
)

// ListingConditions returns all valid condition labels
func ListingConditions() []ListingCondition {
	return []ListingCondition{ConditionNew, ConditionRefurbished, ConditionUsed, ConditionForParts}
}

// IsValid reports whether the label is a member of the closed enumeration
func (c ListingCondition) IsValid() bool {
	switch c {
	case ConditionNew, ConditionRefurbished, ConditionUsed, ConditionForParts:
		return true
	}
	return false
}

// ActionType identifies how an action computes its price delta
type ActionType string

const (
	ActionFixedValue     ActionType = "fixed_value"
	ActionPerUnit        ActionType = "per_unit"
	ActionPercentage     ActionType = "percentage"
	ActionBenchmarkBased ActionType = "benchmark_based"
	ActionFormula        ActionType = "formula"
)

// Action is a single price adjustment. Only the parameter fields relevant to
// its Type are populated; the rest stay zero.
type Action struct {
	Type ActionType `json:"type"`

	// fixed_value: flat USD delta
	Amount float64 `json:"amount,omitempty"`

	// per_unit: delta = ValuePerUnit * resolve(QuantityField)
	ValuePerUnit  float64 `json:"value_per_unit,omitempty"`
	QuantityField string  `json:"quantity_field,omitempty"`

	// percentage: delta = Percent/100 * running price (-5 means a 5% cut)
	Percent float64 `json:"percent,omitempty"`

	// benchmark_based: delta = ValuePerMark * resolve(BenchmarkField)
	ValuePerMark   float64 `json:"value_per_mark,omitempty"`
	BenchmarkField string  `json:"benchmark_field,omitempty"`

	// formula: delta = compiled Expression evaluated against the context
	Expression string `json:"expression,omitempty"`

	// ConditionMultipliers scales the computed delta by the listing's
	// condition label; a label not present in the map means 1.0.
	ConditionMultipliers map[ListingCondition]float64 `json:"condition_multipliers,omitempty"`
}

// RuleDefinition is the versioned content of a rule: everything captured in
// a snapshot and compared by Diff.
type RuleDefinition struct {
	Name       string         `json:"name"`
	Priority   int            `json:"priority"`
	Active     bool           `json:"active"`
	Conditions *ConditionNode `json:"conditions"`
	Actions    []Action       `json:"actions"`
}

// Rule is the current (Active) state of a rule plus its identity
type Rule struct {
	ID      string `json:"id"`
	GroupID string `json:"group_id"`
	RuleDefinition

	// Version is the monotonically increasing version of the Active state.
	// Mutations carry the version they were read at; stale writes are rejected.
	Version int `json:"version"`

	// Deleted marks a soft-deleted rule; its version history is retained
	Deleted bool `json:"deleted"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RuleGroup is a named partition of rules within a ruleset
type RuleGroup struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Priority int     `json:"priority"`
	Active   bool    `json:"active"`
	Rules    []*Rule `json:"rules,omitempty"`
}

// Ruleset is an ordered collection of rule groups; exactly one ruleset is
// active for evaluation at a time.
type Ruleset struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Version int          `json:"version"`
	Active  bool         `json:"active"`
	Groups  []*RuleGroup `json:"groups,omitempty"`
}

// ChangeType classifies a rule mutation
type ChangeType string

const (
	ChangeCreate   ChangeType = "create"
	ChangeUpdate   ChangeType = "update"
	ChangeRollback ChangeType = "rollback"
	ChangeDelete   ChangeType = "delete"
)

// RuleVersion is an immutable snapshot of a rule's definition at one version.
// Snapshots are append-only: never updated, never deleted.
type RuleVersion struct {
	RuleID     string         `json:"rule_id"`
	Version    int            `json:"version"`
	Definition RuleDefinition `json:"definition"`
	Change     ChangeType     `json:"change"`

	// RolledBackFrom references the source version of a rollback, 0 otherwise
	RolledBackFrom int `json:"rolled_back_from,omitempty"`

	ChangedBy     string    `json:"changed_by"`
	ChangeSummary string    `json:"change_summary,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// AuditResult is the recorded outcome of a mutating operation
type AuditResult string

const (
	AuditSuccess AuditResult = "success"
	AuditFailure AuditResult = "failure"
)

// AuditRecord captures one mutating operation, success or failure
type AuditRecord struct {
	ID        string         `json:"id"`
	Operation ChangeType     `json:"operation"`
	RuleID    string         `json:"rule_id"`
	Actor     string         `json:"actor"`
	Payload   map[string]any `json:"payload,omitempty"`
	Result    AuditResult    `json:"result"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// LedgerEntry records one matched rule during an evaluation pass
type LedgerEntry struct {
	RuleID     string  `json:"rule_id"`
	RuleName   string  `json:"rule_name"`
	GroupName  string  `json:"group_name"`
	Matched    bool    `json:"matched"`
	Delta      float64 `json:"delta_applied"`
	PriceAfter float64 `json:"cumulative_price_after"`
}

// Evaluation is the output of one ruleset pass over one listing
type Evaluation struct {
	BasePrice     float64       `json:"base_price"`
	AdjustedPrice float64       `json:"adjusted_price"`
	Ledger        []LedgerEntry `json:"ledger"`
	Diagnostics   []string      `json:"diagnostics,omitempty"`

	// Clamped is set if the price floor triggered at any point in the pass
	Clamped bool `json:"clamped"`
}

// LeafTrace explains one leaf comparison for authoring previews
type LeafTrace struct {
	Path     string   `json:"path"`
	Operator Operator `json:"operator"`
	Expected any      `json:"expected"`
	Actual   any      `json:"actual"`
	Matched  bool     `json:"matched"`
}

// Trace accumulates per-leaf results and diagnostics for one condition tree
type Trace struct {
	Leaves      []LeafTrace `json:"leaves,omitempty"`
	Diagnostics []string    `json:"diagnostics,omitempty"`
}

// FailingLeaves returns the leaves that did not match, in evaluation order
func (t *Trace) FailingLeaves() []LeafTrace {
	var failing []LeafTrace
	for _, leaf := range t.Leaves {
		if !leaf.Matched {
			failing = append(failing, leaf)
		}
	}
	return failing
}
