package main

import (
	"fmt"
	"log/slog"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Decide accounts for unclassified transactions",
		Long: `Run the decision pipeline over every transaction that doesn't have a
decision yet. Confident decisions auto-post when the tenant has opted
in; everything else lands in the review queue.

The classifier is retrained from the tenant's reviewed history before
the run, so recent approvals and rejections take effect immediately.`,
		RunE: runClassify,
	}
	cmd.Flags().StringP("tenant", "t", "", "tenant to classify for (required)")
	return cmd
}

func runClassify(cmd *cobra.Command, _ []string) error {
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

	eng, cleanup, err := buildEngine(ctx, db, tenantID)
	if err != nil {
		return err
	}
	defer cleanup()

	txns, err := db.GetTransactionsToClassify(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to load transactions: %w", err)
	}
	if len(txns) == 0 {
		fmt.Println("Nothing to classify.")
		return nil
	}

	bar := progressbar.Default(int64(len(txns)), "classifying")
	result, err := eng.ClassifyBatch(ctx, txns, func(done, _ int) {
		_ = bar.Set(done)
	})
	if err != nil {
		return err
	}
	_ = bar.Finish()

	fmt.Printf("\nClassified %d transactions: %d auto-posted, %d for review, %d failed\n",
		len(result.Decisions), result.AutoPosted, result.Review, result.Failed)
	if result.Review > 0 {
		slog.Info("decisions waiting for review", "tenant_id", tenantID, "count", result.Review)
	}
	return nil
}
