package models

// AssignmentRecord is one row of the teacher-assignment table: who teaches a subject to a class.
// TeacherField may name several teachers separated by "/".
type AssignmentRecord struct {
	ClassID      string `db:"class_id" json:"class_id"`
	Subject      string `db:"subject" json:"subject"`
	TeacherField string `db:"teacher_field" json:"teacher_field"`
	Position     int    `db:"position" json:"position"`
}

// TimetableRecord is one row of the master timetable. Tokens are kept raw and parsed at index build.
type TimetableRecord struct {
	ClassID      string `db:"class_id" json:"class_id"`
	Subject      string `db:"subject" json:"subject"`
	WeekdayToken string `db:"weekday_token" json:"weekday_token"`
	PeriodToken  string `db:"period_token" json:"period_token"`
	Position     int    `db:"position" json:"position"`
}

// Lesson is one scheduled occurrence of a subject for a class at a slot.
// An empty Teachers list means no assignment row matched.
type Lesson struct {
	Slot     Slot     `json:"slot"`
	ClassID  string   `json:"class_id"`
	Subject  string   `json:"subject"`
	Teachers []string `json:"teachers"`
}

// LessonRef is the teacher-side view of a lesson.
type LessonRef struct {
	ClassID string `json:"class_id"`
	Subject string `json:"subject"`
}

// ClassLesson is the class-side view of a lesson, for display only.
type ClassLesson struct {
	Subject        string `json:"subject"`
	TeacherDisplay string `json:"teacher_display"`
}

// TeacherIndex maps teacher name to the lessons they teach, keyed by slot.
type TeacherIndex map[string]map[Slot]LessonRef

// Lookup returns the lesson a teacher teaches at slot, if any.
func (idx TeacherIndex) Lookup(teacher string, slot Slot) (LessonRef, bool) {
	lessons, ok := idx[teacher]
	if !ok {
		return LessonRef{}, false
	}
	ref, ok := lessons[slot]
	return ref, ok
}

// Busy reports whether the teacher has a lesson booked at slot.
func (idx TeacherIndex) Busy(teacher string, slot Slot) bool {
	_, ok := idx.Lookup(teacher, slot)
	return ok
}

// ClassIndex maps class id to its lessons, keyed by slot.
type ClassIndex map[string]map[Slot]ClassLesson

// Lookup returns the lesson a class has at slot, if any.
func (idx ClassIndex) Lookup(classID string, slot Slot) (ClassLesson, bool) {
	lessons, ok := idx[classID]
	if !ok {
		return ClassLesson{}, false
	}
	lesson, ok := lessons[slot]
	return lesson, ok
}
