package service

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

// TeacherSeparator splits a co-taught teacher field.
const TeacherSeparator = "/"

const maxSkippedPositions = 20

var (
	weekdayPattern = regexp.MustCompile(`[一二三四五]|(?i:\b(?:mon(?:day)?|tue(?:s(?:day)?)?|wed(?:s|nesday)?|thu(?:r(?:s(?:day)?)?)?|fri(?:day)?)\b)`)
	periodPattern  = regexp.MustCompile(`\d+`)

	weekdayTokens = map[string]int{
		"一": 1, "二": 2, "三": 3, "四": 4, "五": 5,
		"mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5,
	}

	// fullwidth digits occasionally appear in hand-typed sheets.
	digitNormalizer = strings.NewReplacer("０", "0", "１", "1", "２", "2", "３", "3", "４", "4", "５", "5", "６", "6", "７", "7", "８", "8", "９", "9")

	teacherPlaceholders = map[string]struct{}{
		"nan": {}, "none": {}, "null": {}, "-": {},
	}
)

// IndexOptions configures BuildIndex.
type IndexOptions struct {
	Periods        int
	UnknownTeacher string
}

// IndexBuild is the output of a single BuildIndex pass. Known lists every teacher named by a
// retained assignment row, sorted, whether or not the timetable gives them a lesson.
type IndexBuild struct {
	Teachers models.TeacherIndex
	Classes  models.ClassIndex
	Known    []string
	Stats    models.BuildStats
}

type lessonKey struct {
	classID string
	subject string
}

// BuildIndex resolves timetable rows against assignment rows and materialises the teacher and
// class indexes. Rows with an unparseable weekday or period are skipped; rows without a matching
// assignment, or with a blank teacher field, are indexed with no teacher. Missing columns are
// rejected where the records are decoded, so blank values here are row-level problems only.
func BuildIndex(assignments []models.AssignmentRecord, timetable []models.TimetableRecord, opts IndexOptions) (*IndexBuild, error) {
	if opts.Periods <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "periods per day must be positive")
	}

	assignmentsByLesson := make(map[lessonKey]models.AssignmentRecord, len(assignments))
	known := make(map[string]struct{})
	for _, row := range assignments {
		key := lessonKey{classID: strings.TrimSpace(row.ClassID), subject: strings.TrimSpace(row.Subject)}
		if _, exists := assignmentsByLesson[key]; exists {
			continue
		}
		assignmentsByLesson[key] = row
		for _, teacher := range SplitTeachers(row.TeacherField) {
			known[teacher] = struct{}{}
		}
	}

	build := &IndexBuild{
		Teachers: make(models.TeacherIndex),
		Classes:  make(models.ClassIndex),
		Stats: models.BuildStats{
			AssignmentRows: len(assignments),
			TimetableRows:  len(timetable),
		},
	}

	for i, row := range timetable {
		position := row.Position
		if position == 0 {
			position = i + 1
		}
		day, okDay := ParseWeekday(row.WeekdayToken)
		period, okPeriod := ParsePeriod(row.PeriodToken)
		slot := models.Slot{Day: day, Period: period}
		if !okDay || !okPeriod || !slot.Valid(opts.Periods) {
			build.Stats.SkippedRows++
			if len(build.Stats.SkippedPositions) < maxSkippedPositions {
				build.Stats.SkippedPositions = append(build.Stats.SkippedPositions, position)
			}
			continue
		}

		lesson := models.Lesson{
			Slot:    slot,
			ClassID: strings.TrimSpace(row.ClassID),
			Subject: strings.TrimSpace(row.Subject),
		}
		if assignment, ok := assignmentsByLesson[lessonKey{classID: lesson.ClassID, subject: lesson.Subject}]; ok {
			lesson.Teachers = SplitTeachers(assignment.TeacherField)
		}
		if len(lesson.Teachers) == 0 {
			build.Stats.UnmatchedLessons++
		}

		build.insert(lesson, position, opts.UnknownTeacher)
		build.Stats.IndexedLessons++
	}

	build.Known = make([]string, 0, len(known))
	for teacher := range known {
		build.Known = append(build.Known, teacher)
	}
	sort.Strings(build.Known)
	return build, nil
}

func (b *IndexBuild) insert(lesson models.Lesson, position int, unknownLabel string) {
	ref := models.LessonRef{ClassID: lesson.ClassID, Subject: lesson.Subject}
	for _, teacher := range lesson.Teachers {
		slots, ok := b.Teachers[teacher]
		if !ok {
			slots = make(map[models.Slot]models.LessonRef)
			b.Teachers[teacher] = slots
		}
		if existing, taken := slots[lesson.Slot]; taken && existing != ref {
			b.Stats.Collisions = append(b.Stats.Collisions, models.Collision{
				Teacher:     teacher,
				Slot:        lesson.Slot,
				Overwritten: existing,
				Kept:        ref,
				Row:         position,
			})
		}
		slots[lesson.Slot] = ref
	}

	display := strings.Join(lesson.Teachers, TeacherSeparator)
	if display == "" {
		display = unknownLabel
	}
	classSlots, ok := b.Classes[lesson.ClassID]
	if !ok {
		classSlots = make(map[models.Slot]models.ClassLesson)
		b.Classes[lesson.ClassID] = classSlots
	}
	classSlots[lesson.Slot] = models.ClassLesson{Subject: lesson.Subject, TeacherDisplay: display}
}

// ParseWeekday extracts a school day (1=Mon..5=Fri) from tokens such as "三", "星期三", "週三" or "Wed".
func ParseWeekday(token string) (int, bool) {
	match := weekdayPattern.FindString(token)
	if match == "" {
		return 0, false
	}
	// Latin names are keyed by their first three letters; a CJK day is three bytes already.
	key := strings.ToLower(match)
	if len(key) > 3 {
		key = key[:3]
	}
	day, ok := weekdayTokens[key]
	return day, ok
}

// ParsePeriod extracts the first integer from tokens such as "第3節" or "P3".
func ParsePeriod(token string) (int, bool) {
	match := periodPattern.FindString(digitNormalizer.Replace(token))
	if match == "" {
		return 0, false
	}
	period, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return period, true
}

// SplitTeachers splits a "/"-delimited teacher field, trimming names and dropping empty or
// placeholder tokens. Order is preserved.
func SplitTeachers(field string) []string {
	parts := strings.Split(field, TeacherSeparator)
	teachers := make([]string, 0, len(parts))
	for _, part := range parts {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		if _, placeholder := teacherPlaceholders[strings.ToLower(name)]; placeholder {
			continue
		}
		teachers = append(teachers, name)
	}
	return teachers
}
