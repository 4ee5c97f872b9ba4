package rules

import (
	"encoding/json"
	"fmt"
)

// ChangeKind categorizes one entry of a structural diff
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
)

// FieldChange records one changed scalar field (name, priority, active)
type FieldChange struct {
	Field string `json:"field"`
	Old   any    `json:"old"`
	New   any    `json:"new"`
}

// ConditionChange records one condition-leaf difference. Leaves are matched
// across versions by (field path, operator) identity.
type ConditionChange struct {
	Kind     ChangeKind     `json:"kind"`
	Path     string         `json:"path"`
	Operator Operator       `json:"operator"`
	Old      *ConditionNode `json:"old,omitempty"`
	New      *ConditionNode `json:"new,omitempty"`
}

// ActionChange records one action difference. Actions are matched across
// versions by (type, parameters) identity, so a parameter change reads as a
// removal plus an addition, while a multiplier-only change reads as modified.
type ActionChange struct {
	Kind ChangeKind `json:"kind"`
	Type ActionType `json:"action_type"`
	Old  *Action    `json:"old,omitempty"`
	New  *Action    `json:"new,omitempty"`
}

// StructuredDiff is the full structural comparison of two rule versions
type StructuredDiff struct {
	RuleID   string `json:"rule_id"`
	VersionA int    `json:"version_a"`
	VersionB int    `json:"version_b"`

	Fields     []FieldChange     `json:"fields,omitempty"`
	Conditions []ConditionChange `json:"conditions,omitempty"`
	Actions    []ActionChange    `json:"actions,omitempty"`
}

// Empty reports whether the two versions are structurally identical
func (d *StructuredDiff) Empty() bool {
	return len(d.Fields) == 0 && len(d.Conditions) == 0 && len(d.Actions) == 0
}

// DiffDefinitions structurally compares two rule definitions
func DiffDefinitions(a, b RuleDefinition) *StructuredDiff {
	d := &StructuredDiff{}

	if a.Name != b.Name {
		d.Fields = append(d.Fields, FieldChange{Field: "name", Old: a.Name, New: b.Name})
	}
	if a.Priority != b.Priority {
		d.Fields = append(d.Fields, FieldChange{Field: "priority", Old: a.Priority, New: b.Priority})
	}
	if a.Active != b.Active {
		d.Fields = append(d.Fields, FieldChange{Field: "active", Old: a.Active, New: b.Active})
	}

	d.Conditions = diffConditions(a.Conditions, b.Conditions)
	d.Actions = diffActions(a.Actions, b.Actions)
	return d
}

// leafKey identifies a condition leaf across versions
type leafKey struct {
	path string
	op   Operator
}

func collectLeaves(n *ConditionNode, out map[leafKey]*ConditionNode) {
	if n == nil {
		return
	}
	if n.IsGroup() {
		for _, child := range n.Children {
			collectLeaves(child, out)
		}
		return
	}

	path := n.FieldPath
	if n.Expression != "" {
		path = n.Expression
	}
	out[leafKey{path: path, op: n.Operator}] = n
}

func diffConditions(a, b *ConditionNode) []ConditionChange {
	aLeaves := make(map[leafKey]*ConditionNode)
	bLeaves := make(map[leafKey]*ConditionNode)
	collectLeaves(a, aLeaves)
	collectLeaves(b, bLeaves)

	var changes []ConditionChange

	// Walk version A's leaves in tree order so output is deterministic
	var aOrder []leafKey
	walkKeys(a, &aOrder)
	for _, key := range aOrder {
		oldLeaf := aLeaves[key]
		newLeaf, stillThere := bLeaves[key]
		if !stillThere {
			changes = append(changes, ConditionChange{Kind: ChangeRemoved, Path: key.path, Operator: key.op, Old: oldLeaf})
			continue
		}
		if !jsonEqual(oldLeaf.Value, newLeaf.Value) {
			changes = append(changes, ConditionChange{Kind: ChangeModified, Path: key.path, Operator: key.op, Old: oldLeaf, New: newLeaf})
		}
	}

	var bOrder []leafKey
	walkKeys(b, &bOrder)
	for _, key := range bOrder {
		if _, existed := aLeaves[key]; !existed {
			changes = append(changes, ConditionChange{Kind: ChangeAdded, Path: key.path, Operator: key.op, New: bLeaves[key]})
		}
	}

	return changes
}

func walkKeys(n *ConditionNode, out *[]leafKey) {
	if n == nil {
		return
	}
	if n.IsGroup() {
		for _, child := range n.Children {
			walkKeys(child, out)
		}
		return
	}

	path := n.FieldPath
	if n.Expression != "" {
		path = n.Expression
	}
	*out = append(*out, leafKey{path: path, op: n.Operator})
}

// actionKey identifies an action across versions: its type plus the
// canonical form of its core parameters (multipliers excluded, so multiplier
// tweaks surface as modifications rather than replacements).
func actionKey(a Action) string {
	core := a
	core.ConditionMultipliers = nil
	raw, err := json.Marshal(core)
	if err != nil {
		return fmt.Sprintf("%s:%v", a.Type, a)
	}
	return string(raw)
}

func diffActions(a, b []Action) []ActionChange {
	aByKey := make(map[string]*Action, len(a))
	for i := range a {
		aByKey[actionKey(a[i])] = &a[i]
	}
	bByKey := make(map[string]*Action, len(b))
	for i := range b {
		bByKey[actionKey(b[i])] = &b[i]
	}

	var changes []ActionChange

	for i := range a {
		key := actionKey(a[i])
		counterpart, stillThere := bByKey[key]
		if !stillThere {
			changes = append(changes, ActionChange{Kind: ChangeRemoved, Type: a[i].Type, Old: &a[i]})
			continue
		}
		if !jsonEqual(a[i].ConditionMultipliers, counterpart.ConditionMultipliers) {
			changes = append(changes, ActionChange{Kind: ChangeModified, Type: a[i].Type, Old: &a[i], New: counterpart})
		}
	}

	for i := range b {
		if _, existed := aByKey[actionKey(b[i])]; !existed {
			changes = append(changes, ActionChange{Kind: ChangeAdded, Type: b[i].Type, New: &b[i]})
		}
	}

	return changes
}

// jsonEqual compares two values through their canonical JSON form, which
// absorbs the int/float64 asymmetry of decoded literals.
func jsonEqual(a, b any) bool {
	aRaw, aErr := json.Marshal(a)
	bRaw, bErr := json.Marshal(b)
	if aErr != nil || bErr != nil {
		return false
	}
	return string(aRaw) == string(bRaw)
}
