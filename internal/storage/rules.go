package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/finchbooks/finch/internal/common"
	"github.com/finchbooks/finch/internal/model"
)

// GetActiveRules returns the tenant's active rules and the current rule
// set version. A tenant with no rules yet gets an empty set at version 0.
func (s *SQLiteStorage) GetActiveRules(ctx context.Context, tenantID string) ([]model.Rule, int, error) {
	if err := validateContext(ctx); err != nil {
		return nil, 0, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, 0, err
	}

	version, err := s.ruleSetVersion(ctx, tenantID)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id, version, tenant_id, pattern, is_regex, account, precision, support, active, promoted_at, promoted_by
		FROM rules
		WHERE tenant_id = ? AND active = 1
		ORDER BY rule_id, version`, tenantID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query active rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.Rule
	for rows.Next() {
		var r model.Rule
		var promotedBy sql.NullString
		if err := rows.Scan(&r.ID, &r.Version, &r.TenantID, &r.Pattern, &r.IsRegex,
			&r.Account, &r.Precision, &r.Support, &r.Active, &r.PromotedAt, &promotedBy); err != nil {
			return nil, 0, fmt.Errorf("failed to scan rule: %w", err)
		}
		r.PromotedBy = model.RuleSource(promotedBy.String)
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate rules: %w", err)
	}
	return rules, version, nil
}

// AppendRules appends rule versions and returns the new rule set
// version. A rule with ID 0 is brand new and gets the next free id; a
// rule carrying an existing id supersedes its earlier versions, which
// are deactivated but never deleted.
func (s *SQLiteStorage) AppendRules(ctx context.Context, tenantID string, rules []model.Rule) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return 0, err
	}
	for i := range rules {
		if rules[i].IsRegex {
			if err := common.ValidatePattern(rules[i].Pattern); err != nil {
				return 0, fmt.Errorf("rule pattern %q rejected: %w", rules[i].Pattern, err)
			}
		}
	}

	var version int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for i := range rules {
			r := &rules[i]
			if r.ID == 0 {
				var next int64
				err := tx.QueryRowContext(ctx,
					"SELECT COALESCE(MAX(rule_id), 0) + 1 FROM rules WHERE tenant_id = ?", tenantID).Scan(&next)
				if err != nil {
					return fmt.Errorf("failed to allocate rule id: %w", err)
				}
				r.ID = next
			}
			if r.Version == 0 {
				r.Version = 1
			}

			_, err := tx.ExecContext(ctx, `
				INSERT INTO rules (rule_id, version, tenant_id, pattern, is_regex, account, precision, support, active, promoted_at, promoted_by)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				r.ID, r.Version, tenantID, r.Pattern, r.IsRegex, r.Account,
				r.Precision, r.Support, r.Active, r.PromotedAt, string(r.PromotedBy))
			if err != nil {
				return fmt.Errorf("failed to insert rule %d v%d: %w", r.ID, r.Version, err)
			}

			_, err = tx.ExecContext(ctx,
				"UPDATE rules SET active = 0 WHERE tenant_id = ? AND rule_id = ? AND version < ?",
				tenantID, r.ID, r.Version)
			if err != nil {
				return fmt.Errorf("failed to deactivate earlier versions of rule %d: %w", r.ID, err)
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO rule_set_versions (tenant_id, version) VALUES (?, 1)
			ON CONFLICT (tenant_id) DO UPDATE SET version = version + 1`, tenantID)
		if err != nil {
			return fmt.Errorf("failed to bump rule set version: %w", err)
		}
		return tx.QueryRowContext(ctx,
			"SELECT version FROM rule_set_versions WHERE tenant_id = ?", tenantID).Scan(&version)
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (s *SQLiteStorage) ruleSetVersion(ctx context.Context, tenantID string) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx,
		"SELECT version FROM rule_set_versions WHERE tenant_id = ?", tenantID).Scan(&version)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get rule set version: %w", err)
	}
	return version, nil
}
