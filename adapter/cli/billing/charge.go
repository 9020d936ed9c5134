package billing

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omarbuciofgr-sudo/birvanoio/adapter/cli"
	billingDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/billing/domain"
)

var (
	chargeAction string
	chargeCount  int
	chargeRef    string
)

var chargeCmd = &cobra.Command{
	Use:   "charge",
	Short: "Charge credits for an action",
	Long: `Debit credits for count units of an action. Passing the same
--ref twice charges only once.

Examples:
  birvanoio credits charge --action skip_trace --ref lead-42`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.BillingService == nil {
			return errors.New("charges require database connection")
		}

		result, err := app.BillingService.Charge(cmd.Context(), billingDomain.ChargeRequest{
			UserID:      app.CurrentUserID,
			Action:      parseAction(chargeAction),
			Count:       chargeCount,
			ReferenceID: chargeRef,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch {
		case !result.Success:
			fmt.Fprintf(out, "Insufficient credits: cost %d, remaining %s\n", result.Cost, result.Remaining)
			return billingDomain.ErrInsufficientCredits
		case result.Duplicate:
			fmt.Fprintf(out, "Already charged (ref %s), remaining %s\n", result.ReferenceID, result.Remaining)
		default:
			fmt.Fprintf(out, "Charged %d credits (ref %s), remaining %s\n", result.Cost, result.ReferenceID, result.Remaining)
		}
		return nil
	},
}

func init() {
	chargeCmd.Flags().StringVar(&chargeAction, "action", "", "action to charge")
	chargeCmd.Flags().IntVar(&chargeCount, "count", 1, "number of units")
	chargeCmd.Flags().StringVar(&chargeRef, "ref", "", "idempotency reference (generated when empty)")
	_ = chargeCmd.MarkFlagRequired("action")
}
