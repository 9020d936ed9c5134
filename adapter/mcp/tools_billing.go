package mcp

import (
	"context"
	"errors"
	"strings"

	"github.com/felixgeelhaar/mcp-go"

	"github.com/omarbuciofgr-sudo/birvanoio/adapter/cli"
	billingApp "github.com/omarbuciofgr-sudo/birvanoio/internal/billing/application"
	billingDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/billing/domain"
)

type creditsUsageInput struct {
	UserID  string `json:"user_id,omitempty"`
	Entries bool   `json:"entries,omitempty"`
}

type creditsUsageOutput struct {
	*billingApp.Usage
	Entries []billingDomain.UsageEntry `json:"entries,omitempty"`
}

type creditsCheckInput struct {
	UserID string `json:"user_id,omitempty"`
	Action string `json:"action" jsonschema:"required"`
	Count  *int   `json:"count,omitempty"`
}

type creditsChargeInput struct {
	UserID      string `json:"user_id,omitempty"`
	Action      string `json:"action" jsonschema:"required"`
	Count       *int   `json:"count,omitempty"`
	ReferenceID string `json:"reference_id,omitempty"`
}

type featuresCheckInput struct {
	UserID  string `json:"user_id,omitempty"`
	Feature string `json:"feature" jsonschema:"required"`
	Tier    string `json:"tier,omitempty"`
}

func registerBillingTools(srv *mcp.Server, deps ToolDependencies) error {
	app := deps.App

	srv.Tool("credits.usage").
		Description("Show the current month's credit usage").
		Handler(func(ctx context.Context, input creditsUsageInput) (*creditsUsageOutput, error) {
			return creditsUsage(ctx, app, input)
		})

	srv.Tool("credits.check").
		Description("Check whether an action is affordable without spending credits").
		Handler(func(ctx context.Context, input creditsCheckInput) (billingDomain.Decision, error) {
			return creditsCheck(ctx, app, input)
		})

	srv.Tool("credits.charge").
		Description("Charge credits for an action; a repeated reference_id charges once").
		Handler(func(ctx context.Context, input creditsChargeInput) (*billingDomain.ChargeResult, error) {
			return creditsCharge(ctx, app, input)
		})

	srv.Tool("features.check").
		Description("Check whether a tier unlocks a feature").
		Handler(func(ctx context.Context, input featuresCheckInput) (billingDomain.FeatureDecision, error) {
			return featuresCheck(ctx, app, input)
		})

	return nil
}

func requireBilling(app *cli.App) error {
	if app == nil || app.BillingService == nil {
		return errors.New("credits require database connection")
	}
	return nil
}

func parseAction(s string) billingDomain.Action {
	return billingDomain.Action(strings.ToLower(strings.TrimSpace(s)))
}

func creditsUsage(ctx context.Context, app *cli.App, input creditsUsageInput) (*creditsUsageOutput, error) {
	if err := requireBilling(app); err != nil {
		return nil, err
	}
	userID, err := userFor(app, input.UserID)
	if err != nil {
		return nil, err
	}
	usage, err := app.BillingService.CurrentUsage(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := &creditsUsageOutput{Usage: usage}
	if input.Entries {
		if out.Entries, err = app.BillingService.ListUsage(ctx, userID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func creditsCheck(ctx context.Context, app *cli.App, input creditsCheckInput) (billingDomain.Decision, error) {
	if err := requireBilling(app); err != nil {
		return billingDomain.Decision{}, err
	}
	userID, err := userFor(app, input.UserID)
	if err != nil {
		return billingDomain.Decision{}, err
	}
	return app.BillingService.CanAfford(ctx, userID, parseAction(input.Action), countOf(input.Count))
}

// creditsCharge reports an insufficient balance as an unsuccessful result,
// not an error, so the caller sees the remaining credits.
func creditsCharge(ctx context.Context, app *cli.App, input creditsChargeInput) (*billingDomain.ChargeResult, error) {
	if err := requireBilling(app); err != nil {
		return nil, err
	}
	userID, err := userFor(app, input.UserID)
	if err != nil {
		return nil, err
	}
	return app.BillingService.Charge(ctx, billingDomain.ChargeRequest{
		UserID:      userID,
		Action:      parseAction(input.Action),
		Count:       countOf(input.Count),
		ReferenceID: input.ReferenceID,
	})
}

func featuresCheck(ctx context.Context, app *cli.App, input featuresCheckInput) (billingDomain.FeatureDecision, error) {
	if err := requireBilling(app); err != nil {
		return billingDomain.FeatureDecision{}, err
	}
	feature := billingDomain.Feature(strings.ToLower(strings.TrimSpace(input.Feature)))
	if input.Tier != "" {
		tier, err := billingDomain.ParseTier(input.Tier)
		if err != nil {
			return billingDomain.FeatureDecision{}, err
		}
		return app.BillingService.CheckFeature(tier, feature)
	}
	userID, err := userFor(app, input.UserID)
	if err != nil {
		return billingDomain.FeatureDecision{}, err
	}
	return app.BillingService.HasFeature(ctx, userID, feature)
}
