package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/finchbooks/finch/internal/model"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and edit deterministic vendor rules",
	}
	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesAddCmd())
	return cmd
}

func rulesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a tenant's active rules",
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

			rules, version, err := db.GetActiveRules(ctx, tenantID)
			if err != nil {
				return fmt.Errorf("failed to load rules: %w", err)
			}

			fmt.Printf("Rule set version %d, %d active rule(s)\n\n", version, len(rules))
			if len(rules) == 0 {
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tVER\tKIND\tPATTERN\tACCOUNT\tPRECISION\tSUPPORT\tBY")
			for i := range rules {
				r := &rules[i]
				kind := "exact"
				if r.IsRegex {
					kind = "regex"
				}
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%.2f\t%d\t%s\n",
					r.ID, r.Version, kind, r.Pattern, r.Account, r.Precision, r.Support, r.PromotedBy)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringP("tenant", "t", "", "tenant to list for (required)")
	return cmd
}

func rulesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a vendor rule",
		Long: `Add a deterministic rule mapping a counterparty to an account. Rules
are append-only: editing a rule creates a new version, and decisions
record the rule set version they were made under.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			tenantID, err := requireTenant(cmd)
			if err != nil {
				return err
			}
			pattern, _ := cmd.Flags().GetString("pattern")
			account, _ := cmd.Flags().GetString("account")
			isRegex, _ := cmd.Flags().GetBool("regex")
			precision, _ := cmd.Flags().GetFloat64("precision")
			if pattern == "" || account == "" {
				return fmt.Errorf("--pattern and --account are required")
			}

			db, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer closeStorage(db)

			version, err := db.AppendRules(ctx, tenantID, []model.Rule{{
				Pattern:    pattern,
				IsRegex:    isRegex,
				Account:    account,
				Precision:  precision,
				Active:     true,
				PromotedAt: time.Now(),
				PromotedBy: model.RuleSourceHuman,
			}})
			if err != nil {
				return fmt.Errorf("failed to add rule: %w", err)
			}

			fmt.Printf("Rule added, rule set now at version %d\n", version)
			return nil
		},
	}
	cmd.Flags().StringP("tenant", "t", "", "tenant to add for (required)")
	cmd.Flags().String("pattern", "", "counterparty name or regex")
	cmd.Flags().String("account", "", "target ledger account")
	cmd.Flags().Bool("regex", false, "treat pattern as a regular expression")
	cmd.Flags().Float64("precision", 0.99, "assumed precision for the new rule")
	return cmd
}
