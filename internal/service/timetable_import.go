package service

import (
	"errors"
	"fmt"
	"io"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
	"github.com/noah-isme/sma-substitute-api/pkg/ingest"
)

// DecodeAssignments reads an assignment table. defaultClassID fills a missing class column.
func DecodeAssignments(r io.Reader, defaultClassID string) ([]models.AssignmentRecord, error) {
	rows, err := ingest.Read(r, ingest.AssignmentSchema, ingestOptions(defaultClassID))
	if err != nil {
		return nil, tableError("assignment", err)
	}
	records := make([]models.AssignmentRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, models.AssignmentRecord{
			ClassID:      row.Get("class_id"),
			Subject:      row.Get("subject"),
			TeacherField: row.Get("teacher"),
			Position:     row.Line,
		})
	}
	return records, nil
}

// DecodeTimetable reads a master timetable table. defaultClassID fills a missing class column.
func DecodeTimetable(r io.Reader, defaultClassID string) ([]models.TimetableRecord, error) {
	rows, err := ingest.Read(r, ingest.TimetableSchema, ingestOptions(defaultClassID))
	if err != nil {
		return nil, tableError("timetable", err)
	}
	records := make([]models.TimetableRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, models.TimetableRecord{
			ClassID:      row.Get("class_id"),
			Subject:      row.Get("subject"),
			WeekdayToken: row.Get("weekday"),
			PeriodToken:  row.Get("period"),
			Position:     row.Line,
		})
	}
	return records, nil
}

func ingestOptions(defaultClassID string) ingest.Options {
	if defaultClassID == "" {
		return ingest.Options{}
	}
	return ingest.Options{Defaults: map[string]string{"class_id": defaultClassID}}
}

func tableError(table string, err error) error {
	var missing *ingest.MissingColumnError
	if errors.As(err, &missing) {
		return appErrors.Clone(appErrors.ErrStructuralInput, fmt.Sprintf("%s table: %s", table, missing.Error()))
	}
	return appErrors.Wrap(err, appErrors.ErrStructuralInput.Code, appErrors.ErrStructuralInput.Status, fmt.Sprintf("%s table could not be read", table))
}
