package service

import (
	"fmt"
	"strconv"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

// TeacherTag is the header placeholder receiving the replacement teacher's name.
const TeacherTag = "{{TEACHER}}"

// DateTag returns the header placeholder for school day (1..5), e.g. {{D3}}.
func DateTag(day int) string {
	return "{{D" + strconv.Itoa(day) + "}}"
}

// NoticeHeader carries the non-grid values of a notice.
type NoticeHeader struct {
	Teacher string
	Dates   WeekDates
}

// LessonContent formats the highlighted cell, e.g. "代701\n國文".
func LessonContent(kind models.ChangeKind, classID, subject string) string {
	return kind.Prefix() + classID + "\n" + subject
}

// RenderChangeSet produces a value for every tag of the notice template: the target slot gets
// content and every other slot in grid gets an explicit empty string, so no text from a previous
// notice survives in the document. The result has len(grid)+6 entries.
func RenderChangeSet(target models.Slot, content string, grid []models.Slot, header NoticeHeader) (map[string]string, error) {
	found := false
	for _, slot := range grid {
		if slot == target {
			found = true
			break
		}
	}
	if !found {
		return nil, appErrors.Clone(appErrors.ErrInvalidSlot, fmt.Sprintf("%s is outside the timetable grid", target))
	}

	tags := make(map[string]string, len(grid)+1+len(header.Dates))
	for _, slot := range grid {
		tags[slot.Tag()] = ""
	}
	tags[target.Tag()] = content

	tags[TeacherTag] = header.Teacher
	for i, date := range header.Dates {
		tags[DateTag(i+1)] = date
	}
	return tags, nil
}
