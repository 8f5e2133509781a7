package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/finchbooks/finch/internal/model"
	"github.com/finchbooks/finch/internal/service"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "List and resolve pending decisions",
	}
	cmd.AddCommand(reviewListCmd())
	cmd.AddCommand(reviewResolveCmd("approve", model.ReviewApproved))
	cmd.AddCommand(reviewResolveCmd("reject", model.ReviewRejected))
	return cmd
}

func reviewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List decisions waiting for review",
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			decisions, err := db.GetDecisions(ctx, tenantID, service.DecisionFilter{
				Statuses: []model.ReviewStatus{model.ReviewPending},
			})
			if err != nil {
				return fmt.Errorf("failed to load decisions: %w", err)
			}
			if len(decisions) == 0 {
				fmt.Println("Review queue is empty.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DECISION\tTRANSACTION\tACCOUNT\tCONFIDENCE\tREASON")
			for i := range decisions {
				d := &decisions[i]
				fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\n",
					d.ID, d.TransactionID, d.Account, d.Confidence, d.Reason)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringP("tenant", "t", "", "tenant to list for (required)")
	return cmd
}

func reviewResolveCmd(verb string, status model.ReviewStatus) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <decision-id>...",
		Short: verb + " pending decisions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer closeStorage(db)

			for _, id := range args {
				if err := db.UpdateDecisionStatus(ctx, id, status); err != nil {
					return fmt.Errorf("failed to %s decision %s: %w", verb, id, err)
				}
			}
			fmt.Printf("%sd %d decision(s)\n", verb, len(args))
			return nil
		},
	}
}
