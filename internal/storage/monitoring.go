package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/finchbooks/finch/internal/model"
)

// SaveDriftSnapshot appends one drift measurement.
func (s *SQLiteStorage) SaveDriftSnapshot(ctx context.Context, snapshot *model.DriftSnapshot) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if snapshot == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}
	if err := validateString(snapshot.TenantID, "snapshot.TenantID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drift_snapshots (tenant_id, metric, value, threshold, triggered, reference_start, reference_end, window_start, window_end, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snapshot.TenantID, snapshot.Metric, snapshot.Value, snapshot.Threshold,
		snapshot.Triggered, snapshot.ReferenceStart, snapshot.ReferenceEnd,
		snapshot.WindowStart, snapshot.WindowEnd, snapshot.ComputedAt)
	if err != nil {
		return fmt.Errorf("failed to save drift snapshot: %w", err)
	}
	return nil
}

// GetDriftSnapshots returns the tenant's most recent snapshots, newest
// first, up to limit.
func (s *SQLiteStorage) GetDriftSnapshots(ctx context.Context, tenantID string, limit int) ([]model.DriftSnapshot, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, metric, value, threshold, triggered, reference_start, reference_end, window_start, window_end, computed_at
		FROM drift_snapshots
		WHERE tenant_id = ?
		ORDER BY computed_at DESC, id DESC
		LIMIT ?`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query drift snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshots []model.DriftSnapshot
	for rows.Next() {
		var snap model.DriftSnapshot
		if err := rows.Scan(&snap.TenantID, &snap.Metric, &snap.Value, &snap.Threshold,
			&snap.Triggered, &snap.ReferenceStart, &snap.ReferenceEnd,
			&snap.WindowStart, &snap.WindowEnd, &snap.ComputedAt); err != nil {
			return nil, fmt.Errorf("failed to scan drift snapshot: %w", err)
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate drift snapshots: %w", err)
	}
	return snapshots, nil
}

// SavePromotionCandidates appends the audit trail of one mining run.
func (s *SQLiteStorage) SavePromotionCandidates(ctx context.Context, candidates []model.PromotionCandidate) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO promotion_candidates (tenant_id, counterparty, account, support, precision, accepted, mined_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, c := range candidates {
			_, err := stmt.ExecContext(ctx, c.TenantID, c.Counterparty, c.Account,
				c.Support, c.Precision, c.Accepted, c.MinedAt)
			if err != nil {
				return fmt.Errorf("failed to insert promotion candidate %q: %w", c.Counterparty, err)
			}
		}
		return nil
	})
}
