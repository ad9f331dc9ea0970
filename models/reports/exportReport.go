package reports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/docflow_backend/models"
	"bitbucket.org/mmdatafocus/docflow_backend/utils"
	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

type ExportFormat string

const (
	ExportFormatCSV   ExportFormat = "csv"
	ExportFormatExcel ExportFormat = "excel"
	ExportFormatPDF   ExportFormat = "pdf"
)

func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(s))) {
	case ExportFormatCSV:
		return ExportFormatCSV, nil
	case ExportFormatExcel, "xlsx":
		return ExportFormatExcel, nil
	case ExportFormatPDF:
		return ExportFormatPDF, nil
	}
	return "", fmt.Errorf("%w: %q", utils.ErrorUnsupportedFormat, s)
}

// Artifact is a fully rendered export: either the whole thing exists or
// the export failed, never partial bytes.
type Artifact struct {
	Data        []byte
	Filename    string
	ContentType string
}

// The column set and ordering are identical across every format, so a
// CSV export re-summed over the same filter reproduces the engine's
// totals.
var exportHeaders = []string{"vendor", "invoice_number", "date", "amount", "vat", "status"}

func exportRow(d *models.Document) []string {
	date := ""
	if d.Date != nil {
		date = d.Date.UTC().Format("2006-01-02")
	}
	amount := ""
	if d.Amount != nil {
		amount = d.Amount.StringFixed(2)
	}
	vat := ""
	if d.Vat != nil {
		vat = d.Vat.StringFixed(2)
	}
	return []string{
		utils.DereferencePtr(d.Vendor),
		utils.DereferencePtr(d.InvoiceNumber),
		date,
		amount,
		vat,
		string(d.Status),
	}
}

func ExportDocuments(format string, docs []*models.Document, generatedAt time.Time) (*Artifact, error) {
	f, err := ParseExportFormat(format)
	if err != nil {
		return nil, err
	}
	switch f {
	case ExportFormatCSV:
		return exportCSV(docs)
	case ExportFormatExcel:
		return exportExcel(docs)
	default:
		return exportPDF(docs, generatedAt)
	}
}

func exportCSV(docs []*models.Document) (*Artifact, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeaders); err != nil {
		return nil, err
	}
	for _, d := range docs {
		if err := w.Write(exportRow(d)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return &Artifact{
		Data:        buf.Bytes(),
		Filename:    "report.csv",
		ContentType: "text/csv",
	}, nil
}

func exportExcel(docs []*models.Document) (*Artifact, error) {
	f := excelize.NewFile()
	sheetName := "Sheet1"
	if _, err := f.NewSheet(sheetName); err != nil {
		return nil, err
	}

	// Add headers
	col := 'A'
	for _, h := range exportHeaders {
		f.SetCellValue(sheetName, string(col)+"1", h)
		col++
	}

	// Add data
	rowNo := 2
	for _, d := range docs {
		col := 'A'
		for _, value := range exportRow(d) {
			f.SetCellValue(sheetName, string(col)+fmt.Sprint(rowNo), value)
			col++
		}
		rowNo++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return &Artifact{
		Data:        buf.Bytes(),
		Filename:    "report.xlsx",
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	}, nil
}

// truncateCell shortens a value to n runes. Byte slicing would split a
// multi-byte vendor name mid-rune.
func truncateCell(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func exportPDF(docs []*models.Document, generatedAt time.Time) (*Artifact, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, "Document Report", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 6, "Generated: "+generatedAt.UTC().Format("2006-01-02 15:04")+" UTC", "", 1, "L", false, 0, "")
	pdf.Ln(4)

	widths := []float64{70, 45, 30, 30, 30, 30}

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(220, 220, 220)
	for i, h := range exportHeaders {
		pdf.CellFormat(widths[i], 8, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, d := range docs {
		for i, value := range exportRow(d) {
			pdf.CellFormat(widths[i], 7, truncateCell(value, 40), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return &Artifact{
		Data:        buf.Bytes(),
		Filename:    "report.pdf",
		ContentType: "application/pdf",
	}, nil
}
