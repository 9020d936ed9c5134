package cli

import (
	"context"
	"fmt"

	billingDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/billing/domain"
)

// RequireFeature ensures the current user's tier unlocks feature.
func RequireFeature(ctx context.Context, app *App, feature billingDomain.Feature) error {
	if app == nil || app.BillingService == nil {
		return nil
	}
	decision, err := app.BillingService.HasFeature(ctx, app.CurrentUserID, feature)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return fmt.Errorf("%s requires the %s tier (current: %s)", feature, decision.RequiredTier, decision.Tier)
	}
	return nil
}
