package mcp

import (
	"context"
	"testing"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarbuciofgr-sudo/birvanoio/adapter/cli"
	billingApp "github.com/omarbuciofgr-sudo/birvanoio/internal/billing/application"
	billingDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/billing/domain"
	billingPersistence "github.com/omarbuciofgr-sudo/birvanoio/internal/billing/infrastructure/persistence"
	enrichmentApp "github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/application"
	enrichmentDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/domain"
	enrichmentPersistence "github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/infrastructure/persistence"
	"github.com/omarbuciofgr-sudo/birvanoio/pkg/observability"
)

type stubProvider struct{}

func (stubProvider) Name() string { return "clearbit" }

func (stubProvider) Attempt(ctx context.Context, q enrichmentDomain.Query) (enrichmentDomain.PartialResult, error) {
	return enrichmentDomain.PartialResult{Fields: enrichmentDomain.Fields{
		enrichmentDomain.FieldFullName: "Grace Hopper",
		enrichmentDomain.FieldEmail:    "grace@navy.mil",
		enrichmentDomain.FieldPhone:    "+1 555 0199",
	}}, nil
}

func newTestApp(t *testing.T, tier billingDomain.Tier) *cli.App {
	t.Helper()
	logger := observability.DiscardLogger()
	billing := billingApp.NewService(
		billingPersistence.NewMemoryCreditRepository(),
		billingPersistence.NewMemorySubscriptionRepository(),
		nil, nil, nil, logger,
	)
	enrichment := enrichmentApp.NewService(
		enrichmentPersistence.NewMemoryRecordRepository(),
		enrichmentApp.NewSequencer(enrichmentApp.NewRetrier(enrichmentApp.RetryPolicy{MaxAttempts: 1}), logger),
		enrichmentApp.StaticProviders{stubProvider{}},
		billing, nil, nil, nil, logger,
	)
	app := cli.NewApp(billing, enrichment)
	app.SetCurrentUserID(uuid.New())
	_, err := billing.SetTier(context.Background(), app.CurrentUserID, tier)
	require.NoError(t, err)
	return app
}

func intPtr(v int) *int { return &v }

func TestRegisterCLITools_ListTools(t *testing.T) {
	srv := mcp.NewServer(mcp.ServerInfo{
		Name:    "test",
		Version: "1.0.0",
		Capabilities: mcp.Capabilities{
			Tools: true,
		},
	})

	app := &cli.App{}
	require.NoError(t, RegisterCLITools(srv, ToolDependencies{App: app}))

	tc := testutil.NewTestClient(t, srv)
	defer tc.Close()

	tools, err := tc.ListTools()
	require.NoError(t, err)

	names := make(map[any]bool, len(tools))
	for _, tool := range tools {
		names[tool["name"]] = true
	}
	for _, name := range []string{"credits.usage", "credits.check", "credits.charge", "features.check", "enrichment.run"} {
		assert.True(t, names[name], "%s should be registered", name)
	}
}

func TestRegisterCLITools_RequiresApp(t *testing.T) {
	srv := mcp.NewServer(mcp.ServerInfo{Name: "test", Version: "1.0.0"})
	assert.Error(t, RegisterCLITools(srv, ToolDependencies{}))
	assert.Error(t, RegisterCLITools(nil, ToolDependencies{App: &cli.App{}}))
}

func TestCreditsTools(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, billingDomain.TierStarter)

	decision, err := creditsCheck(ctx, app, creditsCheckInput{Action: "Enrich"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, int64(2), decision.Cost)

	result, err := creditsCharge(ctx, app, creditsChargeInput{Action: "scrape", Count: intPtr(10), ReferenceID: "mcp-1"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(10), result.NewConsumed)

	result, err = creditsCharge(ctx, app, creditsChargeInput{Action: "scrape", Count: intPtr(10), ReferenceID: "mcp-1"})
	require.NoError(t, err)
	assert.True(t, result.Duplicate)

	result, err = creditsCharge(ctx, app, creditsChargeInput{Action: "skip_trace", Count: intPtr(40)})
	require.NoError(t, err)
	assert.False(t, result.Success)

	usage, err := creditsUsage(ctx, app, creditsUsageInput{Entries: true})
	require.NoError(t, err)
	assert.Equal(t, int64(10), usage.Consumed)
	assert.Len(t, usage.Entries, 10)

	_, err = creditsCheck(ctx, app, creditsCheckInput{Action: "scrape", Count: intPtr(0)})
	assert.ErrorIs(t, err, billingDomain.ErrInvalidCount)

	_, err = creditsCheck(ctx, app, creditsCheckInput{Action: "scrape", UserID: "bogus"})
	assert.ErrorContains(t, err, "user_id")
}

func TestCreditsTools_ExplicitUser(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, billingDomain.TierStarter)
	other := uuid.New()

	usage, err := creditsUsage(ctx, app, creditsUsageInput{UserID: other.String()})
	require.NoError(t, err)
	assert.Equal(t, other, usage.UserID)
	assert.Equal(t, billingDomain.TierFree, usage.Tier)
}

func TestCreditsTools_NoService(t *testing.T) {
	_, err := creditsUsage(context.Background(), &cli.App{}, creditsUsageInput{})
	assert.ErrorContains(t, err, "database connection")
}

func TestFeaturesCheckTool(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, billingDomain.TierStarter)

	decision, err := featuresCheck(ctx, app, featuresCheckInput{Feature: "crm_export"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = featuresCheck(ctx, app, featuresCheckInput{Feature: "white_label", Tier: "scale"})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, billingDomain.TierEnterprise, decision.RequiredTier)

	_, err = featuresCheck(ctx, app, featuresCheckInput{Feature: "levitation"})
	assert.ErrorIs(t, err, billingDomain.ErrUnknownFeature)
}

func TestEnrichmentRunTool(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, billingDomain.TierStarter)
	leadID := uuid.New()

	result, err := enrichmentRun(ctx, app, enrichmentRunInput{
		LeadID: leadID.String(),
		Domain: "navy.mil",
		Known:  map[string]string{"job_title": "Rear Admiral"},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Record)
	assert.Equal(t, enrichmentDomain.StateComplete, result.Record.State)
	assert.Equal(t, leadID, result.Record.LeadID)
	assert.True(t, result.Record.Billed)
	assert.Equal(t, "Rear Admiral", result.Record.Fields[enrichmentDomain.FieldJobTitle])

	_, err = enrichmentRun(ctx, app, enrichmentRunInput{Known: map[string]string{"favourite_colour": "blue"}})
	assert.ErrorContains(t, err, "unknown field")

	_, err = enrichmentRun(ctx, app, enrichmentRunInput{LeadID: "x"})
	assert.ErrorContains(t, err, "lead_id")
}
