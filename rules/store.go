package rules

import (
	"context"
	"errors"
)

// Sentinel errors shared by all Store implementations
var (
	// ErrRuleNotFound: the rule ID does not exist (or the rule is soft-deleted)
	ErrRuleNotFound = errors.New("rule not found")

	// ErrRuleExists: a create collided with an existing rule ID
	ErrRuleExists = errors.New("rule already exists")

	// ErrGroupNotFound: the referenced rule group does not exist
	ErrGroupNotFound = errors.New("rule group not found")

	// ErrRulesetNotFound: no active ruleset is configured
	ErrRulesetNotFound = errors.New("no active ruleset")

	// ErrVersionNotFound: the requested historical version does not exist
	ErrVersionNotFound = errors.New("rule version not found")

	// ErrVersionConflict: the write carried a stale version; the caller must
	// re-fetch and retry. Conflicting writes are never silently applied.
	ErrVersionConflict = errors.New("rule version conflict")
)

// Store persists rules, their append-only version history, and the audit log.
// The valuation core treats persistence as a collaborator behind this
// contract; implementations decide the actual storage engine.
type Store interface {
	// GetRule returns the current state of a rule, including soft-deleted ones
	GetRule(ctx context.Context, id string) (*Rule, error)

	// ListRules returns all rules, soft-deleted included
	ListRules(ctx context.Context) ([]*Rule, error)

	// ActiveRuleset materializes the active ruleset snapshot: groups in
	// priority order, each carrying its non-deleted rules.
	ActiveRuleset(ctx context.Context) (*Ruleset, error)

	// SaveRule atomically persists a rule mutation: the new rule state, the
	// version snapshot (nil for soft deletes, which add no version), and the
	// success audit record. expectedVersion is the version the caller read
	// the rule at; 0 means create. A stale expectedVersion fails the whole
	// write with ErrVersionConflict and persists nothing.
	SaveRule(ctx context.Context, rule *Rule, expectedVersion int, version *RuleVersion, audit *AuditRecord) error

	// GetVersion returns one immutable snapshot; ErrVersionNotFound if absent
	GetVersion(ctx context.Context, ruleID string, version int) (*RuleVersion, error)

	// ListVersions returns a rule's full history in ascending version order
	ListVersions(ctx context.Context, ruleID string) ([]*RuleVersion, error)

	// AppendAudit writes a standalone audit record. Used for failed
	// mutations, whose audit entry must survive the rolled-back transaction.
	AppendAudit(ctx context.Context, rec *AuditRecord) error

	// ListAudit returns the audit trail for a rule in chronological order
	ListAudit(ctx context.Context, ruleID string) ([]*AuditRecord, error)
}
