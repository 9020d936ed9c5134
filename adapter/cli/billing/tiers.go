package billing

import (
	"fmt"

	"github.com/spf13/cobra"

	billingDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/billing/domain"
)

var tiersCmd = &cobra.Command{
	Use:   "tiers",
	Short: "List tiers, allowances and action costs",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, "Tiers:")
		for _, tier := range billingDomain.Tiers() {
			allowance, err := billingDomain.AllowanceFor(tier)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "  %-10s %s credits/month\n", tier, allowance)
		}

		fmt.Fprintln(out, "Action costs:")
		for _, action := range billingDomain.Actions() {
			cost, err := billingDomain.ActionCost(action)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "  %-10s %d\n", action, cost)
		}
		return nil
	},
}
