package enrich

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/omarbuciofgr-sudo/birvanoio/adapter/cli"
	billingDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/billing/domain"
	enrichmentApp "github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/application"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/domain"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/infrastructure/export"
)

var (
	runLeadID string
	runDomain string
	runFields map[string]string
	runTitles []string

	exportOutput string
)

// Cmd is the enrichment command group.
var Cmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich leads through the provider waterfall",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Enrich one lead",
	Long: `Run the provider waterfall for a lead. Providers are consulted in
the configured order and only fill fields that are still missing.

Examples:
  birvanoio enrich run --domain acme.io --field company_name=Acme
  birvanoio enrich run --lead 3f0c... --title CEO --title Founder`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.EnrichmentService == nil {
			return errors.New("enrichment requires database connection")
		}

		leadID := uuid.New()
		if runLeadID != "" {
			parsed, err := uuid.Parse(runLeadID)
			if err != nil {
				return fmt.Errorf("invalid lead id: %w", err)
			}
			leadID = parsed
		}

		known := make(domain.Fields, len(runFields))
		for name, value := range runFields {
			field := domain.FieldName(strings.ToLower(strings.TrimSpace(name)))
			if !field.IsKnown() {
				return fmt.Errorf("unknown field: %s", name)
			}
			known[field] = value
		}

		result, err := app.EnrichmentService.EnrichLead(cmd.Context(), enrichmentApp.EnrichCommand{
			UserID:       app.CurrentUserID,
			LeadID:       leadID,
			Domain:       runDomain,
			Known:        known,
			TargetTitles: runTitles,
		})
		if result != nil {
			printResult(cmd.OutOrStdout(), result)
		}
		return err
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <lead-id>",
	Short: "List enrichment versions of a lead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.EnrichmentService == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Enrichment history requires database connection.")
			return nil
		}
		leadID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid lead id: %w", err)
		}

		records, err := app.EnrichmentService.History(cmd.Context(), leadID)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(records) == 0 {
			fmt.Fprintln(out, "No enrichment recorded for this lead.")
			return nil
		}

		fmt.Fprintf(out, "Versions (%d):\n", len(records))
		for _, r := range records {
			billed := ""
			if r.Billed {
				billed = " billed"
			}
			fmt.Fprintf(out, "  v%d  %s  %-9s fields=%d missing=%d providers=%s%s\n",
				r.Version, r.CreatedAt.Local().Format(time.DateTime), r.State,
				len(r.Fields), len(r.Missing), strings.Join(r.ProvidersUsed, ","), billed)
			if cli.Verbose() {
				for _, step := range r.Steps {
					fmt.Fprintf(out, "      %s\n", formatStep(step))
				}
			}
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <lead-id>...",
	Short: "Export enrichment history to a spreadsheet",
	Long: `Write every version of the given leads to an XLSX workbook with a
fields sheet and a provider step sheet. Requires the crm_export feature.

Examples:
  birvanoio enrich export 3f0c... -o leads.xlsx`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.EnrichmentService == nil {
			return errors.New("export requires database connection")
		}
		if err := cli.RequireFeature(cmd.Context(), app, billingDomain.FeatureCRMExport); err != nil {
			return err
		}

		var records []*domain.Record
		for _, arg := range args {
			leadID, err := uuid.Parse(arg)
			if err != nil {
				return fmt.Errorf("invalid lead id %q: %w", arg, err)
			}
			history, err := app.EnrichmentService.History(cmd.Context(), leadID)
			if err != nil {
				return err
			}
			records = append(records, history...)
		}
		if len(records) == 0 {
			return errors.New("no enrichment recorded for the given leads")
		}

		if exportOutput == "" || exportOutput == "-" {
			return export.WriteXLSX(records, cmd.OutOrStdout())
		}
		f, err := os.Create(exportOutput)
		if err != nil {
			return err
		}
		if err := export.WriteXLSX(records, f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d records to %s\n", len(records), exportOutput)
		return nil
	},
}

func printResult(out io.Writer, result *enrichmentApp.EnrichResult) {
	if result.Denied {
		fmt.Fprintf(out, "Denied: enrichment costs %d credits, remaining %s\n", result.Decision.Cost, result.Decision.Remaining)
		return
	}
	r := result.Record
	if r == nil {
		return
	}

	fmt.Fprintf(out, "Lead %s v%d: %s\n", r.LeadID, r.Version, r.State)
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, string(name))
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-16s %s\n", name, r.Fields[domain.FieldName(name)])
	}
	if len(r.Missing) > 0 {
		missing := make([]string, len(r.Missing))
		for i, m := range r.Missing {
			missing[i] = string(m)
		}
		fmt.Fprintf(out, "Missing: %s\n", strings.Join(missing, ", "))
	}
	for _, step := range r.Steps {
		fmt.Fprintf(out, "  %s\n", formatStep(step))
	}
	if result.Charge != nil && result.Charge.Success {
		fmt.Fprintf(out, "Charged %d credits, remaining %s\n", result.Charge.Cost, result.Charge.Remaining)
	}
}

func formatStep(step domain.StepRecord) string {
	status := "ok"
	if !step.Success {
		status = "failed"
	}
	line := fmt.Sprintf("%s: %s after %d attempt(s), +%d fields", step.Provider, status, step.Attempts, len(step.FieldsAdded))
	if step.Error != "" {
		line += " (" + step.Error + ")"
	}
	return line
}

func init() {
	runCmd.Flags().StringVar(&runLeadID, "lead", "", "lead id (generated when empty)")
	runCmd.Flags().StringVar(&runDomain, "domain", "", "company domain")
	runCmd.Flags().StringToStringVar(&runFields, "field", nil, "known field as name=value (repeatable)")
	runCmd.Flags().StringSliceVar(&runTitles, "title", nil, "target contact title (repeatable)")

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (stdout when empty)")

	Cmd.AddCommand(runCmd)
	Cmd.AddCommand(historyCmd)
	Cmd.AddCommand(exportCmd)
}
