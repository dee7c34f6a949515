package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

const unicodeFamily = "grid"

// PDFExporter renders datasets into a basic tabular PDF.
type PDFExporter struct {
	fontPath string
}

// NewPDFExporter constructs a PDF exporter. The core fonts only cover Latin-1, so CJK content
// needs fontPath to point at a TrueType font.
func NewPDFExporter(fontPath string) *PDFExporter {
	return &PDFExporter{fontPath: fontPath}
}

// Render creates a landscape PDF document with an optional title, subtitle lines and table body.
// Line breaks inside cells are flattened to spaces.
func (e *PDFExporter) Render(data Dataset, title string, subtitles ...string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	family := "Arial"
	if e.fontPath != "" {
		pdf.AddUTF8Font(unicodeFamily, "", e.fontPath)
		family = unicodeFamily
	}
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if title != "" {
		pdf.SetFont(family, "", 16)
		pdf.CellFormat(0, 10, title, "", 1, "C", false, 0, "")
	}
	pdf.SetFont(family, "", 10)
	for _, line := range subtitles {
		pdf.CellFormat(0, 6, line, "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	colWidth := 277.0 / float64(len(data.Headers))
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	for _, row := range data.Rows {
		for _, header := range data.Headers {
			value := strings.ReplaceAll(row[header], "\n", " ")
			pdf.CellFormat(colWidth, 9, value, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
