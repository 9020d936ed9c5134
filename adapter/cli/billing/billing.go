package billing

import "github.com/spf13/cobra"

// CreditsCmd is the credits command group.
var CreditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Inspect and spend credits",
	Long:  `Show monthly usage, check and charge actions, and grant bonus credits.`,
}

// FeaturesCmd is the feature gate command group.
var FeaturesCmd = &cobra.Command{
	Use:   "features",
	Short: "Inspect tier-gated features",
}

// SubscriptionCmd is the subscription command group.
var SubscriptionCmd = &cobra.Command{
	Use:   "subscription",
	Short: "Show or change the subscription tier",
}

func init() {
	CreditsCmd.AddCommand(usageCmd)
	CreditsCmd.AddCommand(checkCmd)
	CreditsCmd.AddCommand(chargeCmd)
	CreditsCmd.AddCommand(grantCmd)
	CreditsCmd.AddCommand(tiersCmd)

	FeaturesCmd.AddCommand(featureCheckCmd)
	FeaturesCmd.AddCommand(featureListCmd)

	SubscriptionCmd.AddCommand(showCmd)
	SubscriptionCmd.AddCommand(setTierCmd)
}

// Commands returns every top-level command of the package.
func Commands() []*cobra.Command {
	return []*cobra.Command{CreditsCmd, FeaturesCmd, SubscriptionCmd}
}
