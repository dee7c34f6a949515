package models

import (
	"sort"
	"time"
)

// Collision records a (teacher, slot) pair that two timetable rows both claimed.
// The later row wins in the index.
type Collision struct {
	Teacher     string    `json:"teacher"`
	Slot        Slot      `json:"slot"`
	Overwritten LessonRef `json:"overwritten"`
	Kept        LessonRef `json:"kept"`
	Row         int       `json:"row"`
}

// BuildStats summarises one index build.
type BuildStats struct {
	AssignmentRows   int         `json:"assignment_rows"`
	TimetableRows    int         `json:"timetable_rows"`
	IndexedLessons   int         `json:"indexed_lessons"`
	SkippedRows      int         `json:"skipped_rows"`
	SkippedPositions []int       `json:"skipped_positions,omitempty"`
	UnmatchedLessons int         `json:"unmatched_lessons"`
	Collisions       []Collision `json:"collisions,omitempty"`
}

// Snapshot is an immutable, fully built pair of indexes. It is never mutated after construction.
// KnownTeachers holds every teacher named by the assignment records, including those the
// timetable never schedules.
type Snapshot struct {
	Version       int64        `json:"version"`
	BuiltAt       time.Time    `json:"built_at"`
	Periods       int          `json:"periods"`
	Teachers      TeacherIndex `json:"-"`
	Classes       ClassIndex   `json:"-"`
	KnownTeachers []string     `json:"-"`
	Stats         BuildStats   `json:"stats"`
}

// TeacherNames returns every known teacher sorted by name.
func (s *Snapshot) TeacherNames() []string {
	if s == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(s.KnownTeachers)+len(s.Teachers))
	names := make([]string, 0, len(s.KnownTeachers)+len(s.Teachers))
	add := func(name string) {
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	for _, name := range s.KnownTeachers {
		add(name)
	}
	for name := range s.Teachers {
		add(name)
	}
	sort.Strings(names)
	return names
}

// KnowsTeacher reports whether name appears in the assignment records or the index.
func (s *Snapshot) KnowsTeacher(name string) bool {
	if s == nil {
		return false
	}
	if _, ok := s.Teachers[name]; ok {
		return true
	}
	for _, known := range s.KnownTeachers {
		if known == name {
			return true
		}
	}
	return false
}

// ClassIDs returns all indexed classes sorted by id.
func (s *Snapshot) ClassIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.Classes))
	for id := range s.Classes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SnapshotSummary is the public description of the active snapshot.
type SnapshotSummary struct {
	Version      int64      `json:"version"`
	BuiltAt      time.Time  `json:"built_at"`
	Periods      int        `json:"periods"`
	TeacherCount int        `json:"teacher_count"`
	ClassCount   int        `json:"class_count"`
	Stats        BuildStats `json:"stats"`
}

// Summary builds the public description of the snapshot.
func (s *Snapshot) Summary() SnapshotSummary {
	if s == nil {
		return SnapshotSummary{}
	}
	return SnapshotSummary{
		Version:      s.Version,
		BuiltAt:      s.BuiltAt,
		Periods:      s.Periods,
		TeacherCount: len(s.TeacherNames()),
		ClassCount:   len(s.Classes),
		Stats:        s.Stats,
	}
}
