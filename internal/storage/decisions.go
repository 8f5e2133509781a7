package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/finchbooks/finch/internal/common"
	"github.com/finchbooks/finch/internal/model"
	"github.com/finchbooks/finch/internal/service"
)

// SaveDecision upserts the decision for a transaction. A transaction
// holds at most one decision; re-deciding under new rule or model
// versions replaces the old row wholesale.
func (s *SQLiteStorage) SaveDecision(ctx context.Context, decision *model.Decision) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateDecision(decision); err != nil {
		return err
	}

	candidates, err := json.Marshal(decision.Candidates)
	if err != nil {
		return fmt.Errorf("failed to marshal candidates: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO decisions (id, transaction_id, tenant_id, account, confidence, reason, status, auto_post, candidates, rule_set_version, model_version, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (transaction_id) DO UPDATE SET
			id = excluded.id,
			account = excluded.account,
			confidence = excluded.confidence,
			reason = excluded.reason,
			status = excluded.status,
			auto_post = excluded.auto_post,
			candidates = excluded.candidates,
			rule_set_version = excluded.rule_set_version,
			model_version = excluded.model_version,
			decided_at = excluded.decided_at`,
		decision.ID, decision.TransactionID, decision.TenantID, decision.Account,
		decision.Confidence, string(decision.Reason), string(decision.Status),
		decision.AutoPost, string(candidates), decision.RuleSetVersion,
		decision.ModelVersion, decision.DecidedAt)
	if err != nil {
		return fmt.Errorf("failed to save decision: %w", err)
	}
	return nil
}

// GetDecision returns the decision for a transaction, or ErrNotFound.
func (s *SQLiteStorage) GetDecision(ctx context.Context, transactionID string) (*model.Decision, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, transaction_id, tenant_id, account, confidence, reason, status, auto_post, candidates, rule_set_version, model_version, decided_at
		FROM decisions WHERE transaction_id = ?`, transactionID)

	decision, err := scanDecision(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return decision, nil
}

// GetDecisions returns the tenant's decisions matching the filter,
// oldest first.
func (s *SQLiteStorage) GetDecisions(ctx context.Context, tenantID string, filter service.DecisionFilter) ([]model.Decision, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}

	query := `
		SELECT id, transaction_id, tenant_id, account, confidence, reason, status, auto_post, candidates, rule_set_version, model_version, decided_at
		FROM decisions WHERE tenant_id = ?`
	args := []any{tenantID}

	if !filter.Start.IsZero() {
		query += " AND decided_at >= ?"
		args = append(args, filter.Start)
	}
	if !filter.End.IsZero() {
		query += " AND decided_at < ?"
		args = append(args, filter.End)
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		query += fmt.Sprintf(" AND status IN (%s)", strings.Join(placeholders, ", "))
	}
	query += " ORDER BY decided_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var decisions []model.Decision
	for rows.Next() {
		decision, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, *decision)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate decisions: %w", err)
	}
	return decisions, nil
}

// UpdateDecisionStatus records the review outcome. Only the status
// changes; the decision itself is immutable.
func (s *SQLiteStorage) UpdateDecisionStatus(ctx context.Context, decisionID string, status model.ReviewStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(decisionID, "decisionID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE decisions SET status = ? WHERE id = ?", string(status), decisionID)
	if err != nil {
		return fmt.Errorf("failed to update decision status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return common.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecision(row rowScanner) (*model.Decision, error) {
	var d model.Decision
	var reason, status string
	var candidates sql.NullString
	err := row.Scan(&d.ID, &d.TransactionID, &d.TenantID, &d.Account,
		&d.Confidence, &reason, &status, &d.AutoPost, &candidates,
		&d.RuleSetVersion, &d.ModelVersion, &d.DecidedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan decision: %w", err)
	}
	d.Reason = model.ReasonCode(reason)
	d.Status = model.ReviewStatus(status)
	if candidates.Valid && candidates.String != "" {
		if err := json.Unmarshal([]byte(candidates.String), &d.Candidates); err != nil {
			return nil, fmt.Errorf("failed to unmarshal candidates for decision %s: %w", d.ID, err)
		}
	}
	return &d, nil
}
