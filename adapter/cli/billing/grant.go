package billing

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omarbuciofgr-sudo/birvanoio/adapter/cli"
)

var (
	grantCredits int64
	grantReason  string
)

var grantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Grant bonus credits",
	Long: `Attach bonus credits to the current user's pool. Bonus credits
carry over between months until spent.

Examples:
  birvanoio credits grant --credits 50 --reason "support goodwill"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.BillingService == nil {
			return errors.New("credit grants require database connection")
		}
		if grantCredits <= 0 {
			return errors.New("credits must be positive")
		}

		usage, err := app.BillingService.GrantBonus(cmd.Context(), app.CurrentUserID, grantCredits, grantReason)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Granted %d bonus credits (bonus now %d, remaining %s)\n",
			grantCredits, usage.BonusAvailable, usage.Remaining)
		return nil
	},
}

func init() {
	grantCmd.Flags().Int64Var(&grantCredits, "credits", 0, "bonus credits to grant")
	grantCmd.Flags().StringVar(&grantReason, "reason", "manual", "reason recorded in the audit log")
}
