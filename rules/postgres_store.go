package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store backed by PostgreSQL.
// Rule definitions and snapshots are stored as jsonb; each SaveRule runs in
// a single transaction so a mutation, its version snapshot, and its success
// audit record commit or roll back together.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed Store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetRule retrieves a rule by ID, soft-deleted included
func (s *PostgresStore) GetRule(ctx context.Context, id string) (*Rule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, group_id, name, priority, active, conditions, actions,
		       version, deleted, created_at, updated_at
		FROM rules
		WHERE id = $1
	`, id)

	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	return rule, nil
}

// ListRules returns all rules ordered by creation time
func (s *PostgresStore) ListRules(ctx context.Context) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, name, priority, active, conditions, actions,
		       version, deleted, created_at, updated_at
		FROM rules
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var list []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		list = append(list, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return list, nil
}

// ActiveRuleset materializes the active ruleset snapshot
func (s *PostgresStore) ActiveRuleset(ctx context.Context) (*Ruleset, error) {
	rs := &Ruleset{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, version, active
		FROM rulesets
		WHERE active = true
		ORDER BY updated_at DESC
		LIMIT 1
	`).Scan(&rs.ID, &rs.Name, &rs.Version, &rs.Active)
	if err == sql.ErrNoRows {
		return nil, ErrRulesetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active ruleset: %w", err)
	}

	groupRows, err := s.db.QueryContext(ctx, `
		SELECT id, name, priority, active
		FROM rule_groups
		WHERE ruleset_id = $1
		ORDER BY priority ASC, id ASC
	`, rs.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule groups: %w", err)
	}
	defer groupRows.Close()

	groupsByID := make(map[string]*RuleGroup)
	for groupRows.Next() {
		g := &RuleGroup{}
		if err := groupRows.Scan(&g.ID, &g.Name, &g.Priority, &g.Active); err != nil {
			return nil, fmt.Errorf("failed to scan rule group: %w", err)
		}
		rs.Groups = append(rs.Groups, g)
		groupsByID[g.ID] = g
	}
	if err := groupRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule groups: %w", err)
	}

	ruleRows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.group_id, r.name, r.priority, r.active, r.conditions,
		       r.actions, r.version, r.deleted, r.created_at, r.updated_at
		FROM rules r
		JOIN rule_groups g ON g.id = r.group_id
		WHERE g.ruleset_id = $1 AND r.deleted = false
		ORDER BY r.priority ASC, r.id ASC
	`, rs.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ruleset rules: %w", err)
	}
	defer ruleRows.Close()

	for ruleRows.Next() {
		rule, err := scanRule(ruleRows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		if g, ok := groupsByID[rule.GroupID]; ok {
			g.Rules = append(g.Rules, rule)
		}
	}
	if err := ruleRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ruleset rules: %w", err)
	}

	return rs, nil
}

// SaveRule atomically persists a rule mutation, its snapshot, and its audit record
func (s *PostgresStore) SaveRule(ctx context.Context, rule *Rule, expectedVersion int, version *RuleVersion, audit *AuditRecord) error {
	conditions, actions, err := marshalDefinition(rule.RuleDefinition)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var groupExists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM rule_groups WHERE id = $1)`, rule.GroupID,
	).Scan(&groupExists); err != nil {
		return fmt.Errorf("failed to check group existence: %w", err)
	}
	if !groupExists {
		return fmt.Errorf("group %s: %w", rule.GroupID, ErrGroupNotFound)
	}

	now := time.Now()

	if expectedVersion == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM rules WHERE id = $1)`, rule.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check rule existence: %w", err)
		}
		if exists {
			return fmt.Errorf("rule %s: %w", rule.ID, ErrRuleExists)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO rules (id, group_id, name, priority, active, conditions,
			                   actions, version, deleted, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		`, rule.ID, rule.GroupID, rule.Name, rule.Priority, rule.Active,
			conditions, actions, rule.Version, rule.Deleted, now)
		if err != nil {
			return fmt.Errorf("failed to insert rule: %w", err)
		}
	} else {
		result, err := tx.ExecContext(ctx, `
			UPDATE rules
			SET name = $1, priority = $2, active = $3, conditions = $4,
			    actions = $5, version = $6, deleted = $7, updated_at = $8
			WHERE id = $9 AND version = $10
		`, rule.Name, rule.Priority, rule.Active, conditions, actions,
			rule.Version, rule.Deleted, now, rule.ID, expectedVersion)
		if err != nil {
			return fmt.Errorf("failed to update rule: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			var current int
			err := tx.QueryRowContext(ctx, `SELECT version FROM rules WHERE id = $1`, rule.ID).Scan(&current)
			if err == sql.ErrNoRows {
				return fmt.Errorf("rule %s: %w", rule.ID, ErrRuleNotFound)
			}
			if err != nil {
				return fmt.Errorf("failed to check rule version: %w", err)
			}
			return fmt.Errorf("rule %s read at version %d, current is %d: %w",
				rule.ID, expectedVersion, current, ErrVersionConflict)
		}
	}

	if version != nil {
		definition, err := json.Marshal(version.Definition)
		if err != nil {
			return fmt.Errorf("failed to marshal version snapshot: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO rule_versions (rule_id, version, definition, change_type,
			                           rolled_back_from, changed_by, change_summary, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, version.RuleID, version.Version, definition, version.Change,
			nullableInt(version.RolledBackFrom), version.ChangedBy,
			version.ChangeSummary, version.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert version snapshot: %w", err)
		}
	}

	if audit != nil {
		if err := insertAudit(ctx, tx, audit); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rule mutation: %w", err)
	}

	return nil
}

// GetVersion returns one immutable snapshot
func (s *PostgresStore) GetVersion(ctx context.Context, ruleID string, version int) (*RuleVersion, error) {
	v := &RuleVersion{}
	var definition []byte
	var rolledBackFrom sql.NullInt64

	err := s.db.QueryRowContext(ctx, `
		SELECT rule_id, version, definition, change_type, rolled_back_from,
		       changed_by, change_summary, created_at
		FROM rule_versions
		WHERE rule_id = $1 AND version = $2
	`, ruleID, version).Scan(&v.RuleID, &v.Version, &definition, &v.Change,
		&rolledBackFrom, &v.ChangedBy, &v.ChangeSummary, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rule %s version %d: %w", ruleID, version, ErrVersionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version snapshot: %w", err)
	}

	if err := json.Unmarshal(definition, &v.Definition); err != nil {
		return nil, fmt.Errorf("invalid version snapshot for rule %s: %w", ruleID, err)
	}
	v.RolledBackFrom = int(rolledBackFrom.Int64)

	return v, nil
}

// ListVersions returns a rule's history in ascending version order
func (s *PostgresStore) ListVersions(ctx context.Context, ruleID string) ([]*RuleVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id, version, definition, change_type, rolled_back_from,
		       changed_by, change_summary, created_at
		FROM rule_versions
		WHERE rule_id = $1
		ORDER BY version ASC
	`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list version snapshots: %w", err)
	}
	defer rows.Close()

	var history []*RuleVersion
	for rows.Next() {
		v := &RuleVersion{}
		var definition []byte
		var rolledBackFrom sql.NullInt64

		if err := rows.Scan(&v.RuleID, &v.Version, &definition, &v.Change,
			&rolledBackFrom, &v.ChangedBy, &v.ChangeSummary, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version snapshot: %w", err)
		}
		if err := json.Unmarshal(definition, &v.Definition); err != nil {
			return nil, fmt.Errorf("invalid version snapshot for rule %s: %w", ruleID, err)
		}
		v.RolledBackFrom = int(rolledBackFrom.Int64)
		history = append(history, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating version snapshots: %w", err)
	}

	return history, nil
}

// AppendAudit writes a standalone audit record outside any transaction
func (s *PostgresStore) AppendAudit(ctx context.Context, rec *AuditRecord) error {
	return insertAudit(ctx, s.db, rec)
}

// ListAudit returns the audit trail for a rule in chronological order
func (s *PostgresStore) ListAudit(ctx context.Context, ruleID string) ([]*AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation, rule_id, actor, payload, result, error, created_at
		FROM audit_log
		WHERE rule_id = $1
		ORDER BY created_at ASC, id ASC
	`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var trail []*AuditRecord
	for rows.Next() {
		rec := &AuditRecord{}
		var payload []byte
		var auditErr sql.NullString

		if err := rows.Scan(&rec.ID, &rec.Operation, &rec.RuleID, &rec.Actor,
			&payload, &rec.Result, &auditErr, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &rec.Payload); err != nil {
				return nil, fmt.Errorf("invalid audit payload for record %s: %w", rec.ID, err)
			}
		}
		rec.Error = auditErr.String
		trail = append(trail, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit records: %w", err)
	}

	return trail, nil
}

// execer covers both *sql.DB and *sql.Tx for audit inserts
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAudit(ctx context.Context, db execer, rec *AuditRecord) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal audit payload: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO audit_log (id, operation, rule_id, actor, payload, result, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.Operation, rec.RuleID, rec.Actor, payload, rec.Result,
		nullableString(rec.Error), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*Rule, error) {
	rule := &Rule{}
	var conditions, actions []byte

	err := row.Scan(&rule.ID, &rule.GroupID, &rule.Name, &rule.Priority,
		&rule.Active, &conditions, &actions, &rule.Version, &rule.Deleted,
		&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
			return nil, fmt.Errorf("invalid conditions for rule %s: %w", rule.ID, err)
		}
	}
	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &rule.Actions); err != nil {
			return nil, fmt.Errorf("invalid actions for rule %s: %w", rule.ID, err)
		}
	}

	return rule, nil
}

func marshalDefinition(def RuleDefinition) (conditions, actions []byte, err error) {
	conditions, err = json.Marshal(def.Conditions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal conditions: %w", err)
	}
	actions, err = json.Marshal(def.Actions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal actions: %w", err)
	}
	return conditions, actions, nil
}

func nullableInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0}
}

func nullableString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
