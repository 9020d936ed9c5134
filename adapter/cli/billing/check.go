package billing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/omarbuciofgr-sudo/birvanoio/adapter/cli"
	billingDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/billing/domain"
)

var (
	checkAction string
	checkCount  int
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether an action is affordable",
	Long: `Check whether the current user can afford count units of an action
without spending anything.

Examples:
  birvanoio credits check --action enrich
  birvanoio credits check --action scrape --count 20`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.BillingService == nil {
			return errors.New("credit checks require database connection")
		}

		decision, err := app.BillingService.CanAfford(cmd.Context(), app.CurrentUserID, parseAction(checkAction), checkCount)
		if err != nil {
			return err
		}

		verdict := "denied"
		if decision.Allowed {
			verdict = "allowed"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s x%d: %s (cost %d, remaining %s)\n",
			decision.Action, decision.Count, verdict, decision.Cost, decision.Remaining)
		return nil
	},
}

func parseAction(s string) billingDomain.Action {
	return billingDomain.Action(strings.ToLower(strings.TrimSpace(s)))
}

func init() {
	checkCmd.Flags().StringVar(&checkAction, "action", "", "action to check (see 'credits tiers')")
	checkCmd.Flags().IntVar(&checkCount, "count", 1, "number of units")
	_ = checkCmd.MarkFlagRequired("action")
}
