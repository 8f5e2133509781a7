package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/finchbooks/finch/internal/drift"
)

func driftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Check a tenant's input distribution for drift",
		Long: `Compare the tenant's recent transactions against its reference window
using population stability index. A triggered metric means the model and
calibration are going stale and retraining is overdue.`,
		RunE: runDrift,
	}
	cmd.Flags().StringP("tenant", "t", "", "tenant to check (required)")
	return cmd
}

func runDrift(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	tenantID, err := requireTenant(cmd)
	if err != nil {
		return err
	}

	db, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer closeStorage(db)

	monitor := drift.NewMonitor(db, drift.DefaultConfig())
	snapshots, err := monitor.Run(ctx, tenantID, time.Now())
	if err != nil {
		return fmt.Errorf("drift check failed: %w", err)
	}
	if len(snapshots) == 0 {
		fmt.Println("Not enough transactions to compare yet.")
		return nil
	}

	for _, s := range snapshots {
		status := "ok"
		if s.Triggered {
			status = "DRIFT"
		}
		fmt.Printf("%-18s psi=%.4f threshold=%.2f  %s\n", s.Metric, s.Value, s.Threshold, status)
	}
	return nil
}
