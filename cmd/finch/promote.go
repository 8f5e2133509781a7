package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/finchbooks/finch/internal/promote"
)

func promoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Promote consistent counterparties into rules",
		Long: `Mine the tenant's reviewed decisions for counterparties that keep
landing on the same account and promote them into deterministic rules.
Unless the tenant auto-activates promoted rules, new rules are created
inactive and need a human to switch them on.`,
		RunE: runPromote,
	}
	cmd.Flags().StringP("tenant", "t", "", "tenant to mine (required)")
	return cmd
}

func runPromote(cmd *cobra.Command, _ []string) error {
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

	promoted, err := promote.NewEngine(db, promote.DefaultConfig()).Run(ctx, tenantID, time.Now())
	if err != nil {
		return fmt.Errorf("promotion failed: %w", err)
	}
	if len(promoted) == 0 {
		fmt.Println("No counterparties cleared the promotion thresholds.")
		return nil
	}

	for _, r := range promoted {
		state := "inactive, awaiting activation"
		if r.Active {
			state = "active"
		}
		fmt.Printf("rule %d: %q -> %s (support %d, precision %.2f) [%s]\n",
			r.ID, r.Pattern, r.Account, r.Support, r.Precision, state)
	}
	return nil
}
