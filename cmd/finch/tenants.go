package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/finchbooks/finch/internal/common"
	"github.com/finchbooks/finch/internal/model"
)

func tenantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenants",
		Short: "Manage tenants and their safety settings",
	}
	cmd.AddCommand(tenantsListCmd())
	cmd.AddCommand(tenantsSetCmd())
	return cmd
}

func tenantsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer closeStorage(db)

			tenants, err := db.ListTenants(ctx)
			if err != nil {
				return fmt.Errorf("failed to list tenants: %w", err)
			}
			if len(tenants) == 0 {
				fmt.Println("No tenants configured.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tAUTO-POST\tAUTO-ACTIVATE\tLLM RPM\tLLM BUDGET/DAY")
			for i := range tenants {
				t := &tenants[i]
				fmt.Fprintf(w, "%s\t%s\t%t\t%t\t%d\t$%.2f\n",
					t.ID, t.Name, t.AutoPostEnabled, t.AutoActivateRules,
					t.LLMCallsPerMinute, t.LLMDailyBudgetUSD)
			}
			return w.Flush()
		},
	}
}

func tenantsSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <tenant-id>",
		Short: "Create or update a tenant",
		Long: `Create a tenant or update its settings. New tenants start with
auto-posting disabled and a zero LLM budget; both are explicit opt-ins.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer closeStorage(db)

			tenant, err := db.GetTenant(ctx, args[0])
			if err != nil {
				if !errors.Is(err, common.ErrNotFound) {
					return fmt.Errorf("failed to load tenant: %w", err)
				}
				fresh := model.DefaultTenant(args[0])
				tenant = &fresh
			}

			flags := cmd.Flags()
			if flags.Changed("name") {
				tenant.Name, _ = flags.GetString("name")
			}
			if flags.Changed("auto-post") {
				tenant.AutoPostEnabled, _ = flags.GetBool("auto-post")
			}
			if flags.Changed("auto-activate-rules") {
				tenant.AutoActivateRules, _ = flags.GetBool("auto-activate-rules")
			}
			if flags.Changed("llm-rpm") {
				tenant.LLMCallsPerMinute, _ = flags.GetInt("llm-rpm")
			}
			if flags.Changed("llm-budget") {
				tenant.LLMDailyBudgetUSD, _ = flags.GetFloat64("llm-budget")
			}

			if err := db.SaveTenant(ctx, tenant); err != nil {
				return fmt.Errorf("failed to save tenant: %w", err)
			}
			fmt.Printf("Tenant %s saved\n", tenant.ID)
			return nil
		},
	}
	cmd.Flags().String("name", "", "display name")
	cmd.Flags().Bool("auto-post", false, "enable auto-posting of confident decisions")
	cmd.Flags().Bool("auto-activate-rules", false, "activate promoted rules without review")
	cmd.Flags().Int("llm-rpm", 0, "LLM calls per minute (0 disables)")
	cmd.Flags().Float64("llm-budget", 0, "daily LLM budget in USD (0 disables)")
	return cmd
}
