package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/finchbooks/finch/internal/calibrate"
	"github.com/finchbooks/finch/internal/drift"
	"github.com/finchbooks/finch/internal/ml"
	"github.com/finchbooks/finch/internal/promote"
	"github.com/finchbooks/finch/internal/rules"
	"github.com/finchbooks/finch/internal/schedule"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the periodic maintenance jobs",
		Long: `Run the drift, retraining and promotion jobs on their schedules until
interrupted. Schedules are standard cron expressions, configurable via
schedule.drift, schedule.training and schedule.promotion.`,
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	db, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer closeStorage(db)

	ruleStore, err := rules.Load(ctx, db)
	if err != nil {
		return err
	}

	trainer := ml.NewTrainer(db, ml.NewClassifier(), calibrate.Identity(), ml.DefaultTrainerConfig())
	monitor := drift.NewMonitor(db, drift.DefaultConfig())
	promoter := promote.NewEngine(db, promote.DefaultConfig())

	cfg := schedule.DefaultConfig()
	if v := viper.GetString("schedule.drift"); v != "" {
		cfg.DriftSchedule = v
	}
	if v := viper.GetString("schedule.training"); v != "" {
		cfg.TrainingSchedule = v
	}
	if v := viper.GetString("schedule.promotion"); v != "" {
		cfg.PromotionSchedule = v
	}

	scheduler := schedule.NewScheduler(db, monitor, trainer, promoter, ruleStore, cfg)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	scheduler.Stop()
	return nil
}
