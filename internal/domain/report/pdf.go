package report

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"github.com/memorysinkhonde/cad-Backend/internal/platform/notification"
)

// RenderPDF lays data out as a single A4 document.
func RenderPDF(data notification.ReportData) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetTitle(fmt.Sprintf("Diagnostic Report %d", data.PatientID), true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Arial", "B", 16)
	pdf.SetTextColor(41, 128, 185)
	pdf.CellFormat(0, 10, "Healthcare Diagnostic System", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 8, "Patient Diagnostic Report", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	for _, section := range data.Sections {
		pdf.SetFont("Arial", "B", 12)
		pdf.SetFillColor(230, 243, 255)
		pdf.CellFormat(0, 8, tr(section.Title), "1", 1, "L", true, 0, "")
		pdf.SetFont("Arial", "", 10)
		for _, row := range section.Rows {
			addRow(pdf, tr(row.Label), tr(row.Value))
		}
		pdf.Ln(3)
	}

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "Attending Physician", "1", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	addRow(pdf, "Doctor", tr(data.DoctorName))

	pdf.Ln(6)
	pdf.SetFont("Arial", "I", 9)
	pdf.SetTextColor(136, 136, 136)
	pdf.MultiCell(0, 5, "This report was generated on "+data.GeneratedAt+".", "", "C", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render report pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func addRow(pdf *gofpdf.Fpdf, label, value string) {
	pdf.CellFormat(85, 7, label, "1", 0, "", false, 0, "")
	pdf.CellFormat(0, 7, value, "1", 1, "", false, 0, "")
}
