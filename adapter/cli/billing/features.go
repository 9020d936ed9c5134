package billing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/omarbuciofgr-sudo/birvanoio/adapter/cli"
	billingDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/billing/domain"
)

var featureCheckCmd = &cobra.Command{
	Use:   "check <feature>",
	Short: "Check whether the current tier unlocks a feature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.BillingService == nil {
			return errors.New("feature checks require database connection")
		}

		feature := billingDomain.Feature(strings.ToLower(strings.TrimSpace(args[0])))
		decision, err := app.BillingService.HasFeature(cmd.Context(), app.CurrentUserID, feature)
		if err != nil {
			return err
		}

		if decision.Allowed {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: enabled on %s\n", decision.Feature, decision.Tier)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: requires %s (current: %s)\n", decision.Feature, decision.RequiredTier, decision.Tier)
		}
		return nil
	},
}

var featureListCmd = &cobra.Command{
	Use:   "list",
	Short: "List gated features",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		var tier billingDomain.Tier
		if app != nil && app.BillingService != nil {
			current, err := app.BillingService.TierFor(cmd.Context(), app.CurrentUserID)
			if err != nil {
				return err
			}
			tier = current
		}

		features := billingDomain.Features()
		fmt.Fprintf(cmd.OutOrStdout(), "Features (%d):\n", len(features))
		for _, feature := range features {
			minTier, err := billingDomain.FeatureMinTier(feature)
			if err != nil {
				return err
			}
			status := ""
			if tier != "" {
				status = "locked"
				if billingDomain.HasFeature(tier, feature) {
					status = "enabled"
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %-22s %-10s %s\n", feature, minTier, status)
		}
		return nil
	},
}
