package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfMargin    = 10.0
	pdfRowHeight = 7.0
)

// PDFExporter renders a Dataset as a paginated table. Wide tables switch to landscape.
type PDFExporter struct {
	// LandscapeAfter is the column count above which pages are landscape.
	LandscapeAfter int
}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{LandscapeAfter: 6}
}

// Render creates the PDF document. The header row is repeated on every page.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Columns) == 0 {
		return nil, fmt.Errorf("pdf requires at least one column")
	}
	orientation := "P"
	if e.LandscapeAfter > 0 && len(data.Columns) > e.LandscapeAfter {
		orientation = "L"
	}
	pdf := gofpdf.New(orientation, "mm", "A4", "")
	pdf.SetMargins(pdfMargin, 15, pdfMargin)
	pdf.SetAutoPageBreak(false, pdfMargin)
	pdf.AddPage()

	pageWidth, pageHeight := pdf.GetPageSize()
	widths := columnWidths(data.Columns, pageWidth-2*pdfMargin)
	labels := data.labels()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if data.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(data.Title), "", 1, "C", false, 0, "")
	}
	if len(data.Notes) > 0 {
		pdf.SetFont("Arial", "", 9)
		for _, note := range data.Notes {
			pdf.CellFormat(0, 5, tr(note), "", 1, "L", false, 0, "")
		}
	}
	pdf.Ln(3)

	header := func() {
		pdf.SetFont("Arial", "B", 10)
		pdf.SetFillColor(230, 230, 230)
		for i, label := range labels {
			pdf.CellFormat(widths[i], 8, tr(label), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
	}
	header()
	for _, row := range data.Rows {
		if pdf.GetY()+pdfRowHeight > pageHeight-pdfMargin {
			pdf.AddPage()
			header()
		}
		for i, col := range data.Columns {
			pdf.CellFormat(widths[i], pdfRowHeight, tr(row[col.Key]), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// ContentType is the MIME type of the rendered document.
func (e *PDFExporter) ContentType() string {
	return "application/pdf"
}

func columnWidths(columns []Column, available float64) []float64 {
	total := 0.0
	for _, col := range columns {
		total += weight(col)
	}
	widths := make([]float64, len(columns))
	for i, col := range columns {
		widths[i] = available * weight(col) / total
	}
	return widths
}

func weight(col Column) float64 {
	if col.Width <= 0 {
		return 1
	}
	return col.Width
}
