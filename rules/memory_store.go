package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store using in-memory maps.
// Thread-safe with RWMutex; each SaveRule holds the write lock for the whole
// mutation, which makes the rule+version+audit write all-or-nothing.
type MemoryStore struct {
	mu       sync.RWMutex
	ruleset  *Ruleset
	groups   map[string]*RuleGroup
	rules    map[string]*Rule
	versions map[string][]*RuleVersion
	audits   []*AuditRecord
}

// NewMemoryStore creates a memory store with an empty active ruleset
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ruleset: &Ruleset{
			ID:      "default",
			Name:    "Default Valuation Ruleset",
			Version: 1,
			Active:  true,
		},
		groups:   make(map[string]*RuleGroup),
		rules:    make(map[string]*Rule),
		versions: make(map[string][]*RuleVersion),
	}
}

// AddGroup registers a rule group on the active ruleset
func (s *MemoryStore) AddGroup(g *RuleGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[g.ID]; exists {
		return fmt.Errorf("group with ID %s already exists", g.ID)
	}

	copied := *g
	copied.Rules = nil
	s.groups[g.ID] = &copied
	return nil
}

// GetRule retrieves a rule by ID
func (s *MemoryStore) GetRule(_ context.Context, id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[id]
	if !exists {
		return nil, fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}

	copied := *rule
	return &copied, nil
}

// ListRules returns all rules, soft-deleted included
func (s *MemoryStore) ListRules(_ context.Context) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		copied := *rule
		list = append(list, &copied)
	}

	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

// ActiveRuleset materializes the active ruleset snapshot
func (s *MemoryStore) ActiveRuleset(_ context.Context) (*Ruleset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ruleset == nil || !s.ruleset.Active {
		return nil, ErrRulesetNotFound
	}

	snapshot := *s.ruleset
	snapshot.Groups = nil

	for _, g := range s.groups {
		group := *g
		group.Rules = nil
		for _, rule := range s.rules {
			if rule.GroupID == g.ID && !rule.Deleted {
				copied := *rule
				group.Rules = append(group.Rules, &copied)
			}
		}
		sort.Slice(group.Rules, func(i, j int) bool {
			if group.Rules[i].Priority != group.Rules[j].Priority {
				return group.Rules[i].Priority < group.Rules[j].Priority
			}
			return group.Rules[i].ID < group.Rules[j].ID
		})
		snapshot.Groups = append(snapshot.Groups, &group)
	}

	sort.Slice(snapshot.Groups, func(i, j int) bool {
		if snapshot.Groups[i].Priority != snapshot.Groups[j].Priority {
			return snapshot.Groups[i].Priority < snapshot.Groups[j].Priority
		}
		return snapshot.Groups[i].ID < snapshot.Groups[j].ID
	})

	return &snapshot, nil
}

// SaveRule atomically applies a rule mutation with its snapshot and audit record
func (s *MemoryStore) SaveRule(_ context.Context, rule *Rule, expectedVersion int, version *RuleVersion, audit *AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[rule.GroupID]; !exists {
		return fmt.Errorf("group %s: %w", rule.GroupID, ErrGroupNotFound)
	}

	existing, exists := s.rules[rule.ID]
	if expectedVersion == 0 {
		if exists {
			return fmt.Errorf("rule %s: %w", rule.ID, ErrRuleExists)
		}
	} else {
		if !exists {
			return fmt.Errorf("rule %s: %w", rule.ID, ErrRuleNotFound)
		}
		if existing.Version != expectedVersion {
			return fmt.Errorf("rule %s read at version %d, current is %d: %w",
				rule.ID, expectedVersion, existing.Version, ErrVersionConflict)
		}
	}

	now := time.Now()
	copied := *rule
	if exists {
		copied.CreatedAt = existing.CreatedAt
	} else {
		copied.CreatedAt = now
	}
	copied.UpdatedAt = now

	if version != nil {
		for _, v := range s.versions[rule.ID] {
			if v.Version == version.Version {
				return fmt.Errorf("rule %s version %d already recorded: %w", rule.ID, version.Version, ErrVersionConflict)
			}
		}
		ver := *version
		s.versions[rule.ID] = append(s.versions[rule.ID], &ver)
	}

	s.rules[rule.ID] = &copied

	if audit != nil {
		rec := *audit
		s.audits = append(s.audits, &rec)
	}

	return nil
}

// GetVersion returns one immutable snapshot
func (s *MemoryStore) GetVersion(_ context.Context, ruleID string, version int) (*RuleVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.versions[ruleID] {
		if v.Version == version {
			copied := *v
			return &copied, nil
		}
	}

	return nil, fmt.Errorf("rule %s version %d: %w", ruleID, version, ErrVersionNotFound)
}

// ListVersions returns a rule's history in ascending version order
func (s *MemoryStore) ListVersions(_ context.Context, ruleID string) ([]*RuleVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := make([]*RuleVersion, 0, len(s.versions[ruleID]))
	for _, v := range s.versions[ruleID] {
		copied := *v
		history = append(history, &copied)
	}

	sort.Slice(history, func(i, j int) bool { return history[i].Version < history[j].Version })
	return history, nil
}

// AppendAudit writes a standalone audit record
func (s *MemoryStore) AppendAudit(_ context.Context, rec *AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *rec
	s.audits = append(s.audits, &copied)
	return nil
}

// ListAudit returns the audit trail for a rule in chronological order
func (s *MemoryStore) ListAudit(_ context.Context, ruleID string) ([]*AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var trail []*AuditRecord
	for _, rec := range s.audits {
		if rec.RuleID == ruleID {
			copied := *rec
			trail = append(trail, &copied)
		}
	}

	return trail, nil
}
