package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the
// application expects. If the database cannot be migrated to this
// version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					hash TEXT UNIQUE NOT NULL,
					tenant_id TEXT NOT NULL,
					date DATETIME NOT NULL,
					description TEXT NOT NULL,
					counterparty TEXT,
					counterparty_norm TEXT,
					amount REAL NOT NULL,
					currency TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_tenant_date ON transactions(tenant_id, date)`,
				`CREATE INDEX idx_transactions_counterparty ON transactions(tenant_id, counterparty_norm)`,

				`CREATE TABLE IF NOT EXISTS decisions (
					id TEXT PRIMARY KEY,
					transaction_id TEXT UNIQUE NOT NULL,
					tenant_id TEXT NOT NULL,
					account TEXT NOT NULL,
					confidence REAL NOT NULL,
					reason TEXT NOT NULL,
					status TEXT NOT NULL,
					auto_post BOOLEAN NOT NULL DEFAULT 0,
					candidates TEXT,
					rule_set_version INTEGER NOT NULL,
					model_version TEXT NOT NULL,
					decided_at DATETIME NOT NULL,
					FOREIGN KEY (transaction_id) REFERENCES transactions(id)
				)`,
				`CREATE INDEX idx_decisions_tenant_status ON decisions(tenant_id, status)`,
				`CREATE INDEX idx_decisions_decided_at ON decisions(decided_at)`,

				`CREATE TABLE IF NOT EXISTS rules (
					rule_id INTEGER NOT NULL,
					version INTEGER NOT NULL,
					tenant_id TEXT NOT NULL,
					pattern TEXT NOT NULL,
					is_regex BOOLEAN NOT NULL DEFAULT 0,
					account TEXT NOT NULL,
					precision REAL NOT NULL DEFAULT 0,
					support INTEGER NOT NULL DEFAULT 0,
					active BOOLEAN NOT NULL DEFAULT 1,
					promoted_at DATETIME NOT NULL,
					promoted_by TEXT,
					PRIMARY KEY (rule_id, version)
				)`,
				`CREATE INDEX idx_rules_tenant_active ON rules(tenant_id, active)`,

				`CREATE TABLE IF NOT EXISTS rule_set_versions (
					tenant_id TEXT PRIMARY KEY,
					version INTEGER NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS tenants (
					id TEXT PRIMARY KEY,
					name TEXT,
					auto_post_enabled BOOLEAN NOT NULL DEFAULT 0,
					auto_activate_rules BOOLEAN NOT NULL DEFAULT 0,
					llm_calls_per_minute INTEGER NOT NULL DEFAULT 0,
					llm_daily_budget_usd REAL NOT NULL DEFAULT 0
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add drift snapshots",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS drift_snapshots (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					tenant_id TEXT NOT NULL,
					metric TEXT NOT NULL,
					value REAL NOT NULL,
					threshold REAL NOT NULL,
					triggered BOOLEAN NOT NULL,
					reference_start DATETIME NOT NULL,
					reference_end DATETIME NOT NULL,
					window_start DATETIME NOT NULL,
					window_end DATETIME NOT NULL,
					computed_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_drift_snapshots_tenant ON drift_snapshots(tenant_id, computed_at)`,
			}
			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Add promotion candidate audit trail",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS promotion_candidates (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					tenant_id TEXT NOT NULL,
					counterparty TEXT NOT NULL,
					account TEXT NOT NULL,
					support INTEGER NOT NULL,
					precision REAL NOT NULL,
					accepted BOOLEAN NOT NULL,
					mined_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_promotion_candidates_tenant ON promotion_candidates(tenant_id, mined_at)`,
			}
			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
}

// Migrate brings the database schema up to the expected version.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
