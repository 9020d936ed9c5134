package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/omarbuciofgr-sudo/birvanoio/adapter/cli"
	billingDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/billing/domain"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show subscription status",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.BillingService == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Subscription status requires database connection.")
			return nil
		}

		subscription, err := app.BillingService.Subscription(cmd.Context(), app.CurrentUserID)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Subscription: %s (%s)\n", subscription.Tier, subscription.Status)
		if subscription.EffectiveTier() != subscription.Tier {
			fmt.Fprintf(cmd.OutOrStdout(), "Effective tier: %s\n", subscription.EffectiveTier())
		}
		if !subscription.UpdatedAt.IsZero() {
			fmt.Fprintf(cmd.OutOrStdout(), "Updated: %s\n", subscription.UpdatedAt.Local().Format(time.RFC1123))
		}
		return nil
	},
}

var setTierCmd = &cobra.Command{
	Use:   "set-tier <tier>",
	Short: "Move the current user to another tier",
	Long: `Change the subscription tier. The new allowance applies to the
current month immediately; consumption and bonus credits are kept.

Examples:
  birvanoio subscription set-tier growth`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.BillingService == nil {
			return errors.New("tier changes require database connection")
		}

		tier, err := billingDomain.ParseTier(args[0])
		if err != nil {
			return err
		}
		subscription, err := app.BillingService.SetTier(cmd.Context(), app.CurrentUserID, tier)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Subscription tier set: %s\n", subscription.Tier)
		return nil
	},
}
