package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/finchbooks/finch/internal/feature"
	"github.com/finchbooks/finch/internal/model"
)

// SaveTransactions inserts a batch of transactions. Re-imports of the
// same transaction are idempotent: an existing id or content hash is
// left untouched.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, txns []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	for i := range txns {
		if err := validateTransaction(&txns[i]); err != nil {
			return err
		}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO transactions (id, hash, tenant_id, date, description, counterparty, counterparty_norm, amount, currency)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for i := range txns {
			txn := &txns[i]
			_, err := stmt.ExecContext(ctx,
				txn.ID, txn.GenerateHash(), txn.TenantID, txn.Date,
				txn.Description, txn.Counterparty,
				feature.NormalizeCounterparty(txn.Counterparty),
				txn.Amount, txn.Currency)
			if err != nil {
				return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
			}
		}
		return nil
	})
}

// GetTransactionsToClassify returns the tenant's transactions without a
// decision, oldest first.
func (s *SQLiteStorage) GetTransactionsToClassify(ctx context.Context, tenantID string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.tenant_id, t.date, t.description, t.counterparty, t.amount, t.currency
		FROM transactions t
		LEFT JOIN decisions d ON d.transaction_id = t.id
		WHERE t.tenant_id = ? AND d.id IS NULL
		ORDER BY t.date, t.id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unclassified transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanTransactions(rows)
}

// GetTransactionsByPeriod returns the tenant's transactions in
// [start, end), oldest first.
func (s *SQLiteStorage) GetTransactionsByPeriod(ctx context.Context, tenantID string, start, end time.Time) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end date %v is before start date %v", end, start)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, date, description, counterparty, amount, currency
		FROM transactions
		WHERE tenant_id = ? AND date >= ? AND date < ?
		ORDER BY date, id`, tenantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions by period: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]model.Transaction, error) {
	var txns []model.Transaction
	for rows.Next() {
		var txn model.Transaction
		var counterparty, currency sql.NullString
		if err := rows.Scan(&txn.ID, &txn.TenantID, &txn.Date, &txn.Description,
			&counterparty, &txn.Amount, &currency); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txn.Counterparty = counterparty.String
		txn.Currency = currency.String
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txns, nil
}
