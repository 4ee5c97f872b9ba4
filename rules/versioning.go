package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/miethe/dealbrain/internal/logger"
	"github.com/miethe/dealbrain/registry"
)

// Invalidator receives a signal after every successful mutation.
// The engine implements it to drop its cached ruleset snapshot.
type Invalidator interface {
	Invalidate()
}

// VersionService owns the rule mutation lifecycle: every create, update,
// rollback, and soft delete goes through here, producing an append-only
// version snapshot and exactly one audit record per operation — including
// failed operations, which are audited with result=failure.
//
// The history is event-sourced: the "current" rule state is a projection of
// the latest snapshot, and no snapshot is ever rewritten.
type VersionService struct {
	store       Store
	registry    registry.Registry
	invalidator Invalidator
	now         func() time.Time
	newID       func() string
}

// NewVersionService creates a version service over the given store
func NewVersionService(store Store, reg registry.Registry) *VersionService {
	return &VersionService{
		store:    store,
		registry: reg,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// NotifyOnMutation registers an invalidator to signal after each successful
// mutation, typically the evaluation engine's snapshot cache.
func (s *VersionService) NotifyOnMutation(inv Invalidator) {
	s.invalidator = inv
}

// Create validates and persists a new rule at version 1
func (s *VersionService) Create(ctx context.Context, groupID string, def RuleDefinition, actor string) (*Rule, error) {
	if err := ValidateDefinition(def, s.registry); err != nil {
		s.auditFailure(ctx, ChangeCreate, "", actor, err)
		return nil, err
	}

	now := s.now()
	rule := &Rule{
		ID:             s.newID(),
		GroupID:        groupID,
		RuleDefinition: def,
		Version:        1,
	}

	version := &RuleVersion{
		RuleID:        rule.ID,
		Version:       1,
		Definition:    def,
		Change:        ChangeCreate,
		ChangedBy:     actor,
		ChangeSummary: "rule created",
		CreatedAt:     now,
	}

	audit := s.auditRecord(ChangeCreate, rule.ID, actor, map[string]any{
		"name":     def.Name,
		"group_id": groupID,
		"version":  1,
	})

	if err := s.store.SaveRule(ctx, rule, 0, version, audit); err != nil {
		s.auditFailure(ctx, ChangeCreate, rule.ID, actor, err)
		return nil, err
	}

	s.mutated()
	logger.Info("rule created", "rule_id", rule.ID, "name", def.Name, "actor", actor)
	return rule, nil
}

// Update validates and persists a new Active state at readVersion+1.
// readVersion is the version the caller fetched the rule at; a stale value
// is rejected with ErrVersionConflict and the caller must re-fetch and retry.
// The previous Active state remains in history at its own version number.
func (s *VersionService) Update(ctx context.Context, ruleID string, readVersion int, def RuleDefinition, actor, summary string) (*Rule, error) {
	if err := ValidateDefinition(def, s.registry); err != nil {
		s.auditFailure(ctx, ChangeUpdate, ruleID, actor, err)
		return nil, err
	}

	current, err := s.store.GetRule(ctx, ruleID)
	if err != nil {
		s.auditFailure(ctx, ChangeUpdate, ruleID, actor, err)
		return nil, err
	}
	if current.Deleted {
		err := fmt.Errorf("rule %s is deleted: %w", ruleID, ErrRuleNotFound)
		s.auditFailure(ctx, ChangeUpdate, ruleID, actor, err)
		return nil, err
	}

	now := s.now()
	newVersion := readVersion + 1
	rule := &Rule{
		ID:             ruleID,
		GroupID:        current.GroupID,
		RuleDefinition: def,
		Version:        newVersion,
	}

	version := &RuleVersion{
		RuleID:        ruleID,
		Version:       newVersion,
		Definition:    def,
		Change:        ChangeUpdate,
		ChangedBy:     actor,
		ChangeSummary: summary,
		CreatedAt:     now,
	}

	audit := s.auditRecord(ChangeUpdate, ruleID, actor, map[string]any{
		"version_before": readVersion,
		"version_after":  newVersion,
		"summary":        summary,
	})

	if err := s.store.SaveRule(ctx, rule, readVersion, version, audit); err != nil {
		s.auditFailure(ctx, ChangeUpdate, ruleID, actor, err)
		return nil, err
	}

	s.mutated()
	logger.Info("rule updated", "rule_id", ruleID, "version", newVersion, "actor", actor)
	return rule, nil
}

// Rollback reinstates a historical snapshot as the new Active state.
// History is append-only: the restored definition lands at current+1, never
// at the target version itself.
func (s *VersionService) Rollback(ctx context.Context, ruleID string, targetVersion int, actor, reason string) (*Rule, error) {
	current, err := s.store.GetRule(ctx, ruleID)
	if err != nil {
		s.auditFailure(ctx, ChangeRollback, ruleID, actor, err)
		return nil, err
	}

	target, err := s.store.GetVersion(ctx, ruleID, targetVersion)
	if err != nil {
		s.auditFailure(ctx, ChangeRollback, ruleID, actor, err)
		return nil, err
	}

	now := s.now()
	newVersion := current.Version + 1
	rule := &Rule{
		ID:             ruleID,
		GroupID:        current.GroupID,
		RuleDefinition: target.Definition,
		Version:        newVersion,
	}

	version := &RuleVersion{
		RuleID:         ruleID,
		Version:        newVersion,
		Definition:     target.Definition,
		Change:         ChangeRollback,
		RolledBackFrom: targetVersion,
		ChangedBy:      actor,
		ChangeSummary:  reason,
		CreatedAt:      now,
	}

	audit := s.auditRecord(ChangeRollback, ruleID, actor, map[string]any{
		"target_version": targetVersion,
		"new_version":    newVersion,
		"reason":         reason,
	})

	if err := s.store.SaveRule(ctx, rule, current.Version, version, audit); err != nil {
		s.auditFailure(ctx, ChangeRollback, ruleID, actor, err)
		return nil, err
	}

	s.mutated()
	logger.Info("rule rolled back", "rule_id", ruleID, "target_version", targetVersion, "new_version", newVersion, "actor", actor)
	return rule, nil
}

// Delete soft-deletes a rule. The Active state is flagged inactive and
// deleted; every historical snapshot is retained.
func (s *VersionService) Delete(ctx context.Context, ruleID, actor string) error {
	current, err := s.store.GetRule(ctx, ruleID)
	if err != nil {
		s.auditFailure(ctx, ChangeDelete, ruleID, actor, err)
		return err
	}
	if current.Deleted {
		err := fmt.Errorf("rule %s already deleted: %w", ruleID, ErrRuleNotFound)
		s.auditFailure(ctx, ChangeDelete, ruleID, actor, err)
		return err
	}

	rule := *current
	rule.Deleted = true
	rule.Active = false

	audit := s.auditRecord(ChangeDelete, ruleID, actor, map[string]any{
		"version": current.Version,
	})

	if err := s.store.SaveRule(ctx, &rule, current.Version, nil, audit); err != nil {
		s.auditFailure(ctx, ChangeDelete, ruleID, actor, err)
		return err
	}

	s.mutated()
	logger.Info("rule deleted", "rule_id", ruleID, "actor", actor)
	return nil
}

// History returns a rule's full version history in ascending order
func (s *VersionService) History(ctx context.Context, ruleID string) ([]*RuleVersion, error) {
	return s.store.ListVersions(ctx, ruleID)
}

// AuditTrail returns the audit records for a rule in chronological order
func (s *VersionService) AuditTrail(ctx context.Context, ruleID string) ([]*AuditRecord, error) {
	return s.store.ListAudit(ctx, ruleID)
}

// Diff structurally compares two versions of a rule
func (s *VersionService) Diff(ctx context.Context, ruleID string, versionA, versionB int) (*StructuredDiff, error) {
	a, err := s.store.GetVersion(ctx, ruleID, versionA)
	if err != nil {
		return nil, err
	}

	b, err := s.store.GetVersion(ctx, ruleID, versionB)
	if err != nil {
		return nil, err
	}

	diff := DiffDefinitions(a.Definition, b.Definition)
	diff.RuleID = ruleID
	diff.VersionA = versionA
	diff.VersionB = versionB
	return diff, nil
}

func (s *VersionService) auditRecord(op ChangeType, ruleID, actor string, payload map[string]any) *AuditRecord {
	return &AuditRecord{
		ID:        s.newID(),
		Operation: op,
		RuleID:    ruleID,
		Actor:     actor,
		Payload:   payload,
		Result:    AuditSuccess,
		CreatedAt: s.now(),
	}
}

// auditFailure records a failed mutation outside the failed transaction, so
// the attempt is visible in the trail even though nothing else persisted.
func (s *VersionService) auditFailure(ctx context.Context, op ChangeType, ruleID, actor string, cause error) {
	rec := &AuditRecord{
		ID:        s.newID(),
		Operation: op,
		RuleID:    ruleID,
		Actor:     actor,
		Result:    AuditFailure,
		Error:     cause.Error(),
		CreatedAt: s.now(),
	}

	if err := s.store.AppendAudit(ctx, rec); err != nil {
		logger.Error("failed to record audit entry", "operation", op, "rule_id", ruleID, "error", err)
	}
}

func (s *VersionService) mutated() {
	if s.invalidator != nil {
		s.invalidator.Invalidate()
	}
}
