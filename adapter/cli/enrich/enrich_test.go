package enrich

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/omarbuciofgr-sudo/birvanoio/adapter/cli"
	billingApp "github.com/omarbuciofgr-sudo/birvanoio/internal/billing/application"
	billingDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/billing/domain"
	billingPersistence "github.com/omarbuciofgr-sudo/birvanoio/internal/billing/infrastructure/persistence"
	enrichmentApp "github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/application"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/domain"
	enrichmentPersistence "github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/infrastructure/persistence"
	"github.com/omarbuciofgr-sudo/birvanoio/pkg/observability"
)

type stubProvider struct {
	name   string
	fields domain.Fields
}

func (p stubProvider) Name() string { return p.name }

func (p stubProvider) Attempt(ctx context.Context, q domain.Query) (domain.PartialResult, error) {
	return domain.PartialResult{Fields: p.fields.Clone()}, nil
}

func resetFlags() {
	runLeadID = ""
	runDomain = ""
	runFields = nil
	runTitles = nil
	exportOutput = ""
}

func setupApp(t *testing.T, tier billingDomain.Tier, providers ...domain.Provider) *cli.App {
	t.Helper()
	resetFlags()

	logger := observability.DiscardLogger()
	billing := billingApp.NewService(
		billingPersistence.NewMemoryCreditRepository(),
		billingPersistence.NewMemorySubscriptionRepository(),
		nil, nil, nil, logger,
	)
	retrier := enrichmentApp.NewRetrier(enrichmentApp.RetryPolicy{MaxAttempts: 1})
	enrichment := enrichmentApp.NewService(
		enrichmentPersistence.NewMemoryRecordRepository(),
		enrichmentApp.NewSequencer(retrier, logger),
		enrichmentApp.StaticProviders(providers),
		billing, nil, nil, nil, logger,
	)

	app := cli.NewApp(billing, enrichment)
	app.SetCurrentUserID(uuid.New())
	_, err := billing.SetTier(context.Background(), app.CurrentUserID, tier)
	require.NoError(t, err)

	cli.SetApp(app)
	t.Cleanup(func() { cli.SetApp(nil) })
	return app
}

func run(cmd *cobra.Command, args ...string) (string, error) {
	var out bytes.Buffer
	cmd.SetContext(context.Background())
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.RunE(cmd, args)
	return out.String(), err
}

var contactProvider = stubProvider{name: "apollo", fields: domain.Fields{
	domain.FieldFullName: "Ada Lovelace",
	domain.FieldEmail:    "ada@acme.io",
	domain.FieldPhone:    "+1 555 0100",
}}

func TestRunCmd_CompletesAndCharges(t *testing.T) {
	setupApp(t, billingDomain.TierStarter, contactProvider)
	runDomain = "acme.io"
	runFields = map[string]string{"Company_Name": "Acme"}

	out, err := run(runCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "v1: complete")
	assert.Contains(t, out, "Ada Lovelace")
	assert.Contains(t, out, "company_name")
	assert.Contains(t, out, "apollo: ok after 1 attempt(s), +3 fields")
	assert.Contains(t, out, "Charged 2 credits, remaining 98")
}

func TestRunCmd_RejectsUnknownField(t *testing.T) {
	setupApp(t, billingDomain.TierStarter, contactProvider)
	runFields = map[string]string{"shoe_size": "44"}

	_, err := run(runCmd)
	assert.ErrorContains(t, err, "unknown field: shoe_size")
}

func TestRunCmd_InvalidLead(t *testing.T) {
	setupApp(t, billingDomain.TierStarter, contactProvider)
	runLeadID = "not-a-uuid"

	_, err := run(runCmd)
	assert.ErrorContains(t, err, "invalid lead id")
}

func TestRunCmd_Denied(t *testing.T) {
	app := setupApp(t, billingDomain.TierFree, contactProvider)
	_, err := app.BillingService.Charge(context.Background(), billingDomain.ChargeRequest{
		UserID: app.CurrentUserID, Action: billingDomain.ActionScrape, Count: 25,
	})
	require.NoError(t, err)

	out, err := run(runCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "Denied: enrichment costs 2 credits, remaining 0")
}

func TestRunCmd_NoProviders(t *testing.T) {
	setupApp(t, billingDomain.TierStarter)

	_, err := run(runCmd)
	assert.ErrorIs(t, err, domain.ErrNoProviders)
}

func TestHistoryCmd(t *testing.T) {
	setupApp(t, billingDomain.TierStarter, contactProvider)
	leadID := uuid.New()
	runLeadID = leadID.String()
	_, err := run(runCmd)
	require.NoError(t, err)

	out, err := run(historyCmd, leadID.String())
	require.NoError(t, err)
	assert.Contains(t, out, "Versions (1)")
	assert.Contains(t, out, "providers=apollo billed")

	out, err = run(historyCmd, uuid.NewString())
	require.NoError(t, err)
	assert.Contains(t, out, "No enrichment recorded")
}

func TestExportCmd_WritesWorkbook(t *testing.T) {
	setupApp(t, billingDomain.TierStarter, contactProvider)
	leadID := uuid.New()
	runLeadID = leadID.String()
	_, err := run(runCmd)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "leads.xlsx")
	exportOutput = path
	out, err := run(exportCmd, leadID.String())
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 1 records")

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "fields")
	assert.Contains(t, f.GetSheetList(), "steps")
}

func TestExportCmd_RequiresCRMExport(t *testing.T) {
	setupApp(t, billingDomain.TierFree, contactProvider)
	exportOutput = filepath.Join(t.TempDir(), "leads.xlsx")

	_, err := run(exportCmd, uuid.NewString())
	assert.ErrorContains(t, err, "crm_export requires the starter tier")
}

func TestExportCmd_NoRecords(t *testing.T) {
	setupApp(t, billingDomain.TierStarter, contactProvider)

	_, err := run(exportCmd, uuid.NewString())
	assert.ErrorContains(t, err, "no enrichment recorded")
}
