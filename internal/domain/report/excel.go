package report

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/memorysinkhonde/cad-Backend/internal/domain/dashboard"
	"github.com/memorysinkhonde/cad-Backend/internal/domain/patient"
)

const (
	SheetPatients = "Patients"
	SheetSummary  = "Summary"
	exportLayout  = "2006-01-02 15:04"
)

var exportHeader = []string{
	"Patient ID", "First Name", "Last Name", "Age", "Sex", "Status",
	"Priority", "Prediction", "Confidence", "Created At",
}

var summaryStatuses = []string{patient.StatusPending, patient.StatusReady, patient.StatusCompleted}

// BuildWorkbook writes one row per patient on the Patients sheet and the
// per-status counts on the Summary sheet.
func BuildWorkbook(patients []dashboard.AssignedPatient) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetPatients); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetSummary); err != nil {
		return nil, fmt.Errorf("create summary sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	if err := writeRow(f, SheetPatients, 1, toAny(exportHeader)); err != nil {
		return nil, err
	}
	last, _ := excelize.CoordinatesToCellName(len(exportHeader), 1)
	if err := f.SetCellStyle(SheetPatients, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("set header style: %w", err)
	}

	counts := map[string]int{}
	for i, p := range patients {
		counts[p.Status]++
		label := PredictionLabel(p.PredictionLabel)
		var confidence any = ""
		if p.PredictionConfidence != nil {
			confidence = *p.PredictionConfidence
		}
		row := []any{
			p.ID, p.FirstName, p.LastName, p.Age, patient.SexLabel(p.Sex), p.Status,
			patient.ScorePriority(p.Clinical), label, confidence, p.CreatedAt.Format(exportLayout),
		}
		if err := writeRow(f, SheetPatients, i+2, row); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(SheetPatients, "A", "J", 18); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}

	if err := writeRow(f, SheetSummary, 1, []any{"Status", "Count"}); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(SheetSummary, "A1", "B1", headerStyle); err != nil {
		return nil, fmt.Errorf("set header style: %w", err)
	}
	for i, status := range summaryStatuses {
		if err := writeRow(f, SheetSummary, i+2, []any{status, counts[status]}); err != nil {
			return nil, err
		}
	}
	if err := writeRow(f, SheetSummary, len(summaryStatuses)+2, []any{"Total", len(patients)}); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
