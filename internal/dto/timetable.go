package dto

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/noah-isme/sma-substitute-api/internal/models"
)

var (
	assignmentFields = []string{"class_id", "subject", "teacher_field"}
	timetableFields  = []string{"class_id", "subject", "weekday_token", "period_token"}
)

// ImportTimetableRequest carries typed records for a JSON import.
type ImportTimetableRequest struct {
	Assignments []models.AssignmentRecord `json:"assignments" validate:"required,min=1,dive"`
	Timetable   []models.TimetableRecord  `json:"timetable" validate:"required,min=1,dive"`
	Persist     bool                      `json:"persist"`
}

// MissingFieldError reports a record object without one of its required keys. An empty value
// is accepted; only an absent key is structural.
type MissingFieldError struct {
	Section string
	Index   int
	Field   string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s[%d] has no %q field", e.Section, e.Index, e.Field)
}

// UnmarshalJSON decodes the request and rejects records missing a required key.
func (r *ImportTimetableRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Assignments []map[string]json.RawMessage `json:"assignments"`
		Timetable   []map[string]json.RawMessage `json:"timetable"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := requireFields("assignments", raw.Assignments, assignmentFields); err != nil {
		return err
	}
	if err := requireFields("timetable", raw.Timetable, timetableFields); err != nil {
		return err
	}

	type plain ImportTimetableRequest
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*r = ImportTimetableRequest(decoded)
	return nil
}

func requireFields(section string, records []map[string]json.RawMessage, fields []string) error {
	for i, record := range records {
		for _, field := range fields {
			if _, ok := record[field]; !ok {
				return &MissingFieldError{Section: section, Index: i, Field: field}
			}
		}
	}
	return nil
}

// ScheduleCell is one occupied cell of a teacher or class week grid.
type ScheduleCell struct {
	Day      int    `json:"day"`
	Period   int    `json:"period"`
	ClassID  string `json:"class_id,omitempty"`
	Subject  string `json:"subject"`
	Teachers string `json:"teachers,omitempty"`
}

// ScheduleGrid is the week view of one teacher or class.
type ScheduleGrid struct {
	Owner           string         `json:"owner"`
	Kind            string         `json:"kind"`
	Periods         int            `json:"periods"`
	SnapshotVersion int64          `json:"snapshot_version"`
	Cells           []ScheduleCell `json:"cells"`
}

// Schedule grid kinds.
const (
	ScheduleKindTeacher = "teacher"
	ScheduleKindClass   = "class"
)

// AvailabilityQuery selects the slot to check.
type AvailabilityQuery struct {
	Day    int `form:"day" json:"day"`
	Period int `form:"period" json:"period"`
}

// AvailabilityResponse lists teachers with no lesson at the slot, in roster order.
type AvailabilityResponse struct {
	Slot            models.Slot `json:"slot"`
	SnapshotVersion int64       `json:"snapshot_version"`
	Teachers        []string    `json:"teachers"`
}

// WeekResponse describes the week containing a reference date.
type WeekResponse struct {
	ReferenceDate string    `json:"reference_date"`
	Monday        string    `json:"monday"`
	Dates         [5]string `json:"dates"`
}
