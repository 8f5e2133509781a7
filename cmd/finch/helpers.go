package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/finchbooks/finch/internal/calibrate"
	"github.com/finchbooks/finch/internal/config"
	"github.com/finchbooks/finch/internal/engine"
	"github.com/finchbooks/finch/internal/llm"
	"github.com/finchbooks/finch/internal/ml"
	"github.com/finchbooks/finch/internal/rules"
	"github.com/finchbooks/finch/internal/storage"
)

// openStorage opens the database and brings the schema up to date.
func openStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = config.DefaultDatabasePath()
	}
	dbPath = config.ExpandPath(dbPath)

	db, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func closeStorage(db *storage.SQLiteStorage) {
	if err := db.Close(); err != nil {
		slog.Error("Failed to close database", "error", err)
	}
}

// engineConfig builds the blender configuration, letting the config
// file override individual thresholds.
func engineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	if v := viper.GetFloat64("engine.auto_post_threshold"); v > 0 {
		cfg.AutoPostThreshold = v
	}
	if v := viper.GetFloat64("engine.ambiguous_low"); v > 0 {
		cfg.AmbiguousLow = v
	}
	if v := viper.GetFloat64("engine.ambiguous_high"); v > 0 {
		cfg.AmbiguousHigh = v
	}
	if v := viper.GetInt("engine.cold_start_min"); v > 0 {
		cfg.ColdStartMin = v
	}
	if v := viper.GetInt("engine.batch_workers"); v > 0 {
		cfg.BatchWorkers = v
	}
	if v := viper.GetStringSlice("engine.accounts"); len(v) > 0 {
		cfg.Accounts = v
	}
	return cfg
}

// buildValidator creates the guarded LLM validator, or nil when no
// provider is configured. Without a validator the ambiguous band
// degrades straight to human review.
func buildValidator() (engine.FallbackValidator, func()) {
	provider := viper.GetString("llm.provider")
	apiKey := viper.GetString("llm.api_key")
	if provider == "" || apiKey == "" {
		slog.Debug("no LLM provider configured, ambiguous decisions go to review")
		return nil, func() {}
	}

	cfg := llm.Config{
		Provider:       provider,
		APIKey:         apiKey,
		Model:          viper.GetString("llm.model"),
		Temperature:    viper.GetFloat64("llm.temperature"),
		MaxTokens:      viper.GetInt("llm.max_tokens"),
		Timeout:        viper.GetDuration("llm.timeout"),
		CostPerCallUSD: viper.GetFloat64("llm.cost_per_call_usd"),
		Cooldown:       viper.GetDuration("llm.cooldown"),
		CacheTTL:       viper.GetDuration("llm.cache_ttl"),
		MaxRetries:     viper.GetInt("llm.max_retries"),
		RetryDelay:     viper.GetDuration("llm.retry_delay"),
	}
	if cfg.CostPerCallUSD == 0 {
		cfg.CostPerCallUSD = 0.01
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 24 * time.Hour
	}

	validator, err := llm.NewValidator(cfg)
	if err != nil {
		slog.Warn("LLM validator unavailable, ambiguous decisions go to review", "error", err)
		return nil, func() {}
	}
	guard := llm.NewGuard(validator, cfg)
	return guard, guard.Close
}

// buildEngine assembles the full decision pipeline against the given
// database, training the classifier from the tenant's reviewed history.
func buildEngine(ctx context.Context, db *storage.SQLiteStorage, tenantID string) (*engine.Engine, func(), error) {
	ruleStore, err := rules.Load(ctx, db)
	if err != nil {
		return nil, nil, err
	}

	classifier := ml.NewClassifier()
	calibrator := calibrate.Identity()
	trainer := ml.NewTrainer(db, classifier, calibrator, ml.DefaultTrainerConfig())
	if err := trainer.Run(ctx, tenantID, time.Now()); err != nil {
		return nil, nil, fmt.Errorf("failed to train classifier: %w", err)
	}

	validator, closeValidator := buildValidator()
	eng, err := engine.New(db, ruleStore, classifier, calibrator, validator, engineConfig())
	if err != nil {
		closeValidator()
		return nil, nil, err
	}
	return eng, closeValidator, nil
}

// requireTenant reads the --tenant flag shared by most commands.
func requireTenant(cmd *cobra.Command) (string, error) {
	tenant, err := cmd.Flags().GetString("tenant")
	if err != nil {
		return "", err
	}
	if tenant == "" {
		return "", fmt.Errorf("--tenant is required")
	}
	return tenant, nil
}
