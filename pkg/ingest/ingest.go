// Package ingest reads header-driven CSV/TSV tables whose header names vary between sources.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

const bom = "\ufeff"

// Column describes one logical column and the header spellings that map to it.
type Column struct {
	Name     string
	Aliases  []string
	Required bool
}

// Schema is the set of columns a table is read against. Unknown headers are ignored.
type Schema struct {
	Columns []Column
}

// Assignment and timetable tables. Headers are matched after trimming and lower-casing.
var (
	AssignmentSchema = Schema{Columns: []Column{
		{Name: "class_id", Aliases: []string{"class", "班級"}, Required: true},
		{Name: "subject", Aliases: []string{"科目"}, Required: true},
		{Name: "teacher", Aliases: []string{"teachers", "teacher_field", "教師", "任課教師"}, Required: true},
	}}
	TimetableSchema = Schema{Columns: []Column{
		{Name: "class_id", Aliases: []string{"class", "班級"}, Required: true},
		{Name: "subject", Aliases: []string{"科目"}, Required: true},
		{Name: "weekday", Aliases: []string{"day", "星期"}, Required: true},
		{Name: "period", Aliases: []string{"節次"}, Required: true},
	}}
)

// Row is one non-empty data line keyed by canonical column name.
type Row struct {
	Line   int
	Values map[string]string
}

// Get returns the trimmed value of column, or "" if absent.
func (r Row) Get(column string) string {
	return r.Values[column]
}

// MissingColumnError reports a required column absent from the header.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing required column: %s", e.Column)
}

// Options tune Read.
type Options struct {
	// Defaults fill columns absent from the header, e.g. a class id taken from the file name.
	Defaults map[string]string
}

// Read parses a whole table. The delimiter is detected from the header line.
func Read(r io.Reader, schema Schema, opts Options) ([]Row, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte(bom))
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("table is empty")
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = detectDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var (
		rows      []Row
		headerMap map[string]int
		line      int
	)
	for {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("parse table: %w", err)
		}
		line, _ = reader.FieldPos(0)

		if headerMap == nil {
			headerMap, err = buildHeaderMap(record, schema, opts.Defaults)
			if err != nil {
				return nil, err
			}
			continue
		}
		if isEmptyRecord(record) {
			continue
		}
		rows = append(rows, parseRecord(record, line, headerMap, schema, opts.Defaults))
	}

	if headerMap == nil {
		return nil, errors.New("missing header row")
	}
	return rows, nil
}

func detectDelimiter(data []byte) rune {
	header := string(data)
	if idx := strings.IndexAny(header, "\r\n"); idx >= 0 {
		header = header[:idx]
	}
	best, bestCount := ',', strings.Count(header, ",")
	for _, candidate := range []rune{';', '\t'} {
		if n := strings.Count(header, string(candidate)); n > bestCount {
			best, bestCount = candidate, n
		}
	}
	return best
}

func buildHeaderMap(header []string, schema Schema, defaults map[string]string) (map[string]int, error) {
	lookup := make(map[string]string)
	for _, col := range schema.Columns {
		lookup[normalizeHeader(col.Name)] = col.Name
		for _, alias := range col.Aliases {
			lookup[normalizeHeader(alias)] = col.Name
		}
	}

	headerMap := make(map[string]int, len(schema.Columns))
	for idx, raw := range header {
		name, ok := lookup[normalizeHeader(raw)]
		if !ok {
			continue
		}
		if _, exists := headerMap[name]; exists {
			return nil, fmt.Errorf("duplicate header: %s", name)
		}
		headerMap[name] = idx
	}

	for _, col := range schema.Columns {
		if !col.Required {
			continue
		}
		if _, ok := headerMap[col.Name]; ok {
			continue
		}
		if strings.TrimSpace(defaults[col.Name]) != "" {
			continue
		}
		return nil, &MissingColumnError{Column: col.Name}
	}
	return headerMap, nil
}

func parseRecord(record []string, line int, headerMap map[string]int, schema Schema, defaults map[string]string) Row {
	values := make(map[string]string, len(schema.Columns))
	for _, col := range schema.Columns {
		pos, ok := headerMap[col.Name]
		if !ok || pos >= len(record) {
			values[col.Name] = strings.TrimSpace(defaults[col.Name])
			continue
		}
		value := strings.TrimSpace(record[pos])
		if value == "" {
			value = strings.TrimSpace(defaults[col.Name])
		}
		values[col.Name] = value
	}
	return Row{Line: line, Values: values}
}

func normalizeHeader(value string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(value, bom)))
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
