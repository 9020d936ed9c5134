// Package export writes enrichment history as a spreadsheet.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/domain"
)

const (
	SheetFields = "fields"
	SheetSteps  = "steps"
)

// WriteXLSX writes one row per record version to the "fields" sheet and
// one row per provider step to the "steps" sheet.
func WriteXLSX(records []*domain.Record, w io.Writer) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), SheetFields); err != nil {
		return fmt.Errorf("name fields sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetSteps); err != nil {
		return fmt.Errorf("create steps sheet: %w", err)
	}

	fieldHeader := []interface{}{"lead_id", "version", "record_id", "state", "billed", "created_at", "providers_used"}
	for _, name := range domain.AllFields() {
		fieldHeader = append(fieldHeader, string(name))
	}
	fieldHeader = append(fieldHeader, "missing")
	if err := f.SetSheetRow(SheetFields, "A1", &fieldHeader); err != nil {
		return fmt.Errorf("write fields header: %w", err)
	}

	stepHeader := []interface{}{"lead_id", "version", "step", "provider", "success", "attempts",
		"fields_added", "fields_missing", "duration_ms", "error"}
	if err := f.SetSheetRow(SheetSteps, "A1", &stepHeader); err != nil {
		return fmt.Errorf("write steps header: %w", err)
	}

	fieldRow, stepRow := 2, 2
	for _, r := range records {
		row := []interface{}{
			r.LeadID.String(),
			r.Version,
			r.ID.String(),
			string(r.State),
			r.Billed,
			r.CreatedAt.UTC().Format(time.RFC3339),
			strings.Join(r.ProvidersUsed, ","),
		}
		for _, name := range domain.AllFields() {
			row = append(row, r.Fields[name])
		}
		row = append(row, joinNames(r.Missing))
		if err := setRow(f, SheetFields, fieldRow, row); err != nil {
			return err
		}
		fieldRow++

		for i, step := range r.Steps {
			row := []interface{}{
				r.LeadID.String(),
				r.Version,
				i + 1,
				step.Provider,
				step.Success,
				step.Attempts,
				joinNames(step.FieldsAdded),
				joinNames(step.FieldsMissing),
				step.Duration.Milliseconds(),
				step.Error,
			}
			if err := setRow(f, SheetSteps, stepRow, row); err != nil {
				return err
			}
			stepRow++
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func joinNames(names []domain.FieldName) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, ",")
}
