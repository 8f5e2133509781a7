package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/finchbooks/finch/internal/common"
	"github.com/finchbooks/finch/internal/model"
	"github.com/finchbooks/finch/internal/service"
)

// GetTenant returns a tenant by id, or ErrNotFound.
func (s *SQLiteStorage) GetTenant(ctx context.Context, id string) (*model.Tenant, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	var t model.Tenant
	var name sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, auto_post_enabled, auto_activate_rules, llm_calls_per_minute, llm_daily_budget_usd
		FROM tenants WHERE id = ?`, id).Scan(
		&t.ID, &name, &t.AutoPostEnabled, &t.AutoActivateRules,
		&t.LLMCallsPerMinute, &t.LLMDailyBudgetUSD)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tenant %s: %w", id, err)
	}
	t.Name = name.String
	return &t, nil
}

// SaveTenant upserts a tenant.
func (s *SQLiteStorage) SaveTenant(ctx context.Context, tenant *model.Tenant) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if tenant == nil {
		return fmt.Errorf("tenant cannot be nil")
	}
	if err := validateString(tenant.ID, "tenant.ID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, auto_post_enabled, auto_activate_rules, llm_calls_per_minute, llm_daily_budget_usd)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			auto_post_enabled = excluded.auto_post_enabled,
			auto_activate_rules = excluded.auto_activate_rules,
			llm_calls_per_minute = excluded.llm_calls_per_minute,
			llm_daily_budget_usd = excluded.llm_daily_budget_usd`,
		tenant.ID, tenant.Name, tenant.AutoPostEnabled, tenant.AutoActivateRules,
		tenant.LLMCallsPerMinute, tenant.LLMDailyBudgetUSD)
	if err != nil {
		return fmt.Errorf("failed to save tenant %s: %w", tenant.ID, err)
	}
	return nil
}

// ListTenants returns every tenant, ordered by id.
func (s *SQLiteStorage) ListTenants(ctx context.Context) ([]model.Tenant, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, auto_post_enabled, auto_activate_rules, llm_calls_per_minute, llm_daily_budget_usd
		FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tenants []model.Tenant
	for rows.Next() {
		var t model.Tenant
		var name sql.NullString
		if err := rows.Scan(&t.ID, &name, &t.AutoPostEnabled, &t.AutoActivateRules,
			&t.LLMCallsPerMinute, &t.LLMDailyBudgetUSD); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		t.Name = name.String
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tenants: %w", err)
	}
	return tenants, nil
}

// GetCounterpartyHistory aggregates the reviewed outcomes for one
// normalized counterparty. Only posted decisions count; pending and
// rejected ones carry no signal about the right account.
func (s *SQLiteStorage) GetCounterpartyHistory(ctx context.Context, tenantID, counterparty string) (*service.CounterpartyHistory, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	if err := validateString(counterparty, "counterparty"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.account, t.amount
		FROM decisions d
		JOIN transactions t ON t.id = d.transaction_id
		WHERE t.tenant_id = ? AND t.counterparty_norm = ? AND d.status IN (?, ?)`,
		tenantID, counterparty,
		string(model.ReviewAutoPosted), string(model.ReviewApproved))
	if err != nil {
		return nil, fmt.Errorf("failed to query counterparty history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hist := &service.CounterpartyHistory{Accounts: make(map[string]int)}
	for rows.Next() {
		var account string
		var amount float64
		if err := rows.Scan(&account, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		hist.Accounts[account]++
		hist.Amounts = append(hist.Amounts, amount)
		hist.Observations++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return hist, nil
}
