// Package schedule runs the periodic maintenance jobs: drift checks,
// model retraining, and rule promotion.
package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/finchbooks/finch/internal/drift"
	"github.com/finchbooks/finch/internal/ml"
	"github.com/finchbooks/finch/internal/promote"
	"github.com/finchbooks/finch/internal/rules"
	"github.com/finchbooks/finch/internal/service"
)

// Config holds the cron expressions for each job. Standard five-field
// cron syntax.
type Config struct {
	DriftSchedule     string
	TrainingSchedule  string
	PromotionSchedule string
}

// DefaultConfig returns the default job schedules.
func DefaultConfig() Config {
	return Config{
		DriftSchedule:     "0 6 * * *",  // daily, after overnight imports
		TrainingSchedule:  "30 6 * * *", // daily, after the drift check
		PromotionSchedule: "0 7 * * 1",  // weekly
	}
}

// Scheduler wires the maintenance jobs onto a cron runner. Every job
// iterates all tenants; a failure for one tenant is logged and the rest
// still run.
type Scheduler struct {
	storage   service.Storage
	monitor   *drift.Monitor
	trainer   *ml.Trainer
	promoter  *promote.Engine
	ruleStore *rules.Store
	cron      *cron.Cron
	config    Config
}

// NewScheduler creates a scheduler. It does not start any jobs.
func NewScheduler(storage service.Storage, monitor *drift.Monitor, trainer *ml.Trainer, promoter *promote.Engine, ruleStore *rules.Store, config Config) *Scheduler {
	return &Scheduler{
		storage:   storage,
		monitor:   monitor,
		trainer:   trainer,
		promoter:  promoter,
		ruleStore: ruleStore,
		cron:      cron.New(),
		config:    config,
	}
}

// Start registers and starts the cron jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		name     string
		schedule string
		run      func(context.Context, string, time.Time) error
	}{
		{"drift", s.config.DriftSchedule, s.runDrift},
		{"training", s.config.TrainingSchedule, s.runTraining},
		{"promotion", s.config.PromotionSchedule, s.runPromotion},
	}

	for _, job := range jobs {
		job := job
		_, err := s.cron.AddFunc(job.schedule, func() {
			s.forEachTenant(ctx, job.name, job.run)
		})
		if err != nil {
			return err
		}
	}

	s.cron.Start()
	slog.Info("scheduler started",
		"drift", s.config.DriftSchedule,
		"training", s.config.TrainingSchedule,
		"promotion", s.config.PromotionSchedule)
	return nil
}

// Stop stops the cron runner and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	slog.Info("scheduler stopped")
}

func (s *Scheduler) forEachTenant(ctx context.Context, name string, run func(context.Context, string, time.Time) error) {
	tenants, err := s.storage.ListTenants(ctx)
	if err != nil {
		slog.Error("scheduled job failed to list tenants", "job", name, "error", err)
		return
	}

	now := time.Now()
	for _, tenant := range tenants {
		if err := run(ctx, tenant.ID, now); err != nil {
			slog.Error("scheduled job failed",
				"job", name,
				"tenant_id", tenant.ID,
				"error", err)
		}
	}
}

func (s *Scheduler) runDrift(ctx context.Context, tenantID string, now time.Time) error {
	_, err := s.monitor.Run(ctx, tenantID, now)
	return err
}

func (s *Scheduler) runTraining(ctx context.Context, tenantID string, now time.Time) error {
	return s.trainer.Run(ctx, tenantID, now)
}

func (s *Scheduler) runPromotion(ctx context.Context, tenantID string, now time.Time) error {
	promoted, err := s.promoter.Run(ctx, tenantID, now)
	if err != nil {
		return err
	}
	if len(promoted) == 0 {
		return nil
	}
	// New rules are live only after the in-memory store catches up.
	return rules.Reload(ctx, s.storage, s.ruleStore)
}
