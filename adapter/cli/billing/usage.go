package billing

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/omarbuciofgr-sudo/birvanoio/adapter/cli"
)

var usageEntries bool

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show credit usage for the current month",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.BillingService == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Credit usage requires database connection.")
			return nil
		}

		usage, err := app.BillingService.CurrentUsage(cmd.Context(), app.CurrentUserID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Tier: %s\n", usage.Tier)
		fmt.Fprintf(out, "Period: %s\n", usage.PeriodStart.Format("2006-01"))
		fmt.Fprintf(out, "Allowance: %s\n", usage.Allowance)
		fmt.Fprintf(out, "Consumed: %d\n", usage.Consumed)
		fmt.Fprintf(out, "Bonus: %d\n", usage.BonusAvailable)
		fmt.Fprintf(out, "Remaining: %s\n", usage.Remaining)

		if !usageEntries && !cli.Verbose() {
			return nil
		}
		entries, err := app.BillingService.ListUsage(cmd.Context(), app.CurrentUserID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "No usage recorded this month.")
			return nil
		}
		fmt.Fprintf(out, "Usage entries (%d):\n", len(entries))
		for _, e := range entries {
			fmt.Fprintf(out, "  %s  %-10s %3d  %s\n", e.CreatedAt.Local().Format(time.DateTime), e.Action, e.Cost, e.ReferenceID)
		}
		return nil
	},
}

func init() {
	usageCmd.Flags().BoolVar(&usageEntries, "entries", false, "list individual usage entries")
}
