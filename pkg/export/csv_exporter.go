package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// Dataset is a table whose rows are keyed by header.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// CSVExporter writes week grids for spreadsheet tools. With BOM set, Excel opens the CJK text
// as UTF-8; CRLF matches what Excel itself saves.
type CSVExporter struct {
	BOM  bool
	CRLF bool
}

// NewCSVExporter returns an exporter with both BOM and CRLF enabled.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{BOM: true, CRLF: true}
}

// Write streams data to w. Cells missing from a row are written empty.
func (e *CSVExporter) Write(w io.Writer, data Dataset) error {
	if len(data.Headers) == 0 {
		return errors.New("csv requires at least one header")
	}
	if e.BOM {
		if _, err := io.WriteString(w, "\ufeff"); err != nil {
			return fmt.Errorf("write bom: %w", err)
		}
	}
	writer := csv.NewWriter(w)
	writer.UseCRLF = e.CRLF
	if err := writer.Write(data.Headers); err != nil {
		return fmt.Errorf("write csv headers: %w", err)
	}
	record := make([]string, len(data.Headers))
	for _, row := range data.Rows {
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// Render returns the CSV as bytes.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Write(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
