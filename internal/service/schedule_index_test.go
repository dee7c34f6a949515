package service

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

const testPeriods = 8

func sampleAssignments() []models.AssignmentRecord {
	return []models.AssignmentRecord{
		{ClassID: "701", Subject: "國文", TeacherField: "王小明/ 李大華 "},
		{ClassID: "701", Subject: "數學", TeacherField: "陳老師"},
		{ClassID: "702", Subject: "英文", TeacherField: "林老師"},
		{ClassID: "702", Subject: "國文", TeacherField: "nan"},
		{ClassID: "701", Subject: "國文", TeacherField: "不該出現"},
	}
}

func sampleTimetable() []models.TimetableRecord {
	return []models.TimetableRecord{
		{ClassID: "701", Subject: "國文", WeekdayToken: "三", PeriodToken: "第3節"},
		{ClassID: "701", Subject: "數學", WeekdayToken: "星期一", PeriodToken: "1"},
		{ClassID: "702", Subject: "英文", WeekdayToken: "Wed", PeriodToken: "P3"},
		{ClassID: "702", Subject: "國文", WeekdayToken: "週二", PeriodToken: "2"},
		{ClassID: "701", Subject: "數學", WeekdayToken: "X", PeriodToken: "1"},
		{ClassID: "701", Subject: "數學", WeekdayToken: "五", PeriodToken: "9"},
	}
}

func buildSample(t *testing.T) *IndexBuild {
	t.Helper()
	build, err := BuildIndex(sampleAssignments(), sampleTimetable(), IndexOptions{Periods: testPeriods, UnknownTeacher: "未知"})
	require.NoError(t, err)
	return build
}

func TestBuildIndexSplitsCoTaughtLessons(t *testing.T) {
	build := buildSample(t)
	slot := models.Slot{Day: 3, Period: 3}

	for _, teacher := range []string{"王小明", "李大華"} {
		ref, ok := build.Teachers.Lookup(teacher, slot)
		require.True(t, ok, teacher)
		assert.Equal(t, models.LessonRef{ClassID: "701", Subject: "國文"}, ref)
	}
	_, ok := build.Teachers["不該出現"]
	assert.False(t, ok, "first assignment row wins")

	lesson, ok := build.Classes.Lookup("701", slot)
	require.True(t, ok)
	assert.Equal(t, "王小明/李大華", lesson.TeacherDisplay)
}

func TestBuildIndexSkipsUnparseableRows(t *testing.T) {
	build := buildSample(t)

	assert.Equal(t, 6, build.Stats.TimetableRows)
	assert.Equal(t, 4, build.Stats.IndexedLessons)
	assert.Equal(t, 2, build.Stats.SkippedRows)
	assert.Equal(t, []int{5, 6}, build.Stats.SkippedPositions)
}

func TestBuildIndexUnmatchedLessonUsesUnknownLabel(t *testing.T) {
	build := buildSample(t)

	lesson, ok := build.Classes.Lookup("702", models.Slot{Day: 2, Period: 2})
	require.True(t, ok)
	assert.Equal(t, "未知", lesson.TeacherDisplay)
	assert.Equal(t, 1, build.Stats.UnmatchedLessons)
	_, ok = build.Teachers["未知"]
	assert.False(t, ok, "the unknown label is never an indexed teacher")
}

func TestBuildIndexIsDeterministic(t *testing.T) {
	first := buildSample(t)
	second := buildSample(t)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("rebuild differs (-first +second):\n%s", diff)
	}
}

func TestBuildIndexRecordsCollisionLastWriteWins(t *testing.T) {
	assignments := append(sampleAssignments(), models.AssignmentRecord{ClassID: "703", Subject: "數學", TeacherField: "陳老師"})
	timetable := append(sampleTimetable(), models.TimetableRecord{ClassID: "703", Subject: "數學", WeekdayToken: "一", PeriodToken: "1"})

	build, err := BuildIndex(assignments, timetable, IndexOptions{Periods: testPeriods})
	require.NoError(t, err)

	ref, ok := build.Teachers.Lookup("陳老師", models.Slot{Day: 1, Period: 1})
	require.True(t, ok)
	assert.Equal(t, "703", ref.ClassID)

	require.Len(t, build.Stats.Collisions, 1)
	collision := build.Stats.Collisions[0]
	assert.Equal(t, "陳老師", collision.Teacher)
	assert.Equal(t, "701", collision.Overwritten.ClassID)
	assert.Equal(t, 7, collision.Row)
}

func TestBuildIndexRequiresPositivePeriods(t *testing.T) {
	_, err := BuildIndex(nil, sampleTimetable(), IndexOptions{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBuildIndexSkipsRowWithBlankWeekday(t *testing.T) {
	assignments := []models.AssignmentRecord{{ClassID: "701", Subject: "國文", TeacherField: "A"}}
	timetable := []models.TimetableRecord{{ClassID: "701", Subject: "國文", WeekdayToken: "", PeriodToken: "3"}}

	build, err := BuildIndex(assignments, timetable, IndexOptions{Periods: testPeriods})
	require.NoError(t, err)
	assert.Equal(t, 1, build.Stats.SkippedRows)
	assert.Equal(t, []int{1}, build.Stats.SkippedPositions)
	assert.Zero(t, build.Stats.IndexedLessons)
	assert.Empty(t, build.Teachers)
	assert.Equal(t, []string{"A"}, build.Known)
}

func TestBuildIndexBlankTeacherFieldsUseUnknownLabel(t *testing.T) {
	assignments := []models.AssignmentRecord{
		{ClassID: "701", Subject: "國文"},
		{ClassID: "702", Subject: "數學", TeacherField: "  "},
	}
	timetable := []models.TimetableRecord{
		{ClassID: "701", Subject: "國文", WeekdayToken: "一", PeriodToken: "1"},
		{ClassID: "702", Subject: "數學", WeekdayToken: "二", PeriodToken: "2"},
	}

	build, err := BuildIndex(assignments, timetable, IndexOptions{Periods: testPeriods, UnknownTeacher: "未知"})
	require.NoError(t, err)
	assert.Equal(t, 2, build.Stats.IndexedLessons)
	assert.Equal(t, 2, build.Stats.UnmatchedLessons)
	assert.Empty(t, build.Teachers)
	assert.Empty(t, build.Known)

	lesson, ok := build.Classes.Lookup("702", models.Slot{Day: 2, Period: 2})
	require.True(t, ok)
	assert.Equal(t, "未知", lesson.TeacherDisplay)
}

func TestBuildIndexKnowsTeachersWithoutLessons(t *testing.T) {
	build := buildSample(t)

	assert.Equal(t, []string{"李大華", "林老師", "王小明", "陳老師"}, build.Known)
	assert.NotContains(t, build.Known, "不該出現", "discarded duplicate assignment row")

	assignments := []models.AssignmentRecord{{ClassID: "701", Subject: "國文", TeacherField: "A/B"}, {ClassID: "702", Subject: "數學", TeacherField: "C"}}
	timetable := []models.TimetableRecord{{ClassID: "701", Subject: "國文", WeekdayToken: "三", PeriodToken: "第3節"}}
	build, err := BuildIndex(assignments, timetable, IndexOptions{Periods: testPeriods})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, build.Known)
	_, scheduled := build.Teachers["C"]
	assert.False(t, scheduled)
}

func TestParseWeekdayAndPeriod(t *testing.T) {
	cases := map[string]int{"一": 1, "星期二": 2, "週三": 3, "thursday": 4, "FRI": 5}
	for token, want := range cases {
		day, ok := ParseWeekday(token)
		require.True(t, ok, token)
		assert.Equal(t, want, day, token)
	}
	_, ok := ParseWeekday("六")
	assert.False(t, ok)

	period, ok := ParsePeriod("第３節")
	require.True(t, ok)
	assert.Equal(t, 3, period)
	_, ok = ParsePeriod("午休")
	assert.False(t, ok)
}

func TestParseWeekdayMatchesWholeWords(t *testing.T) {
	cases := map[string]int{"Monday": 1, "tues": 2, "Wednesday": 3, "Thurs": 4, "thu": 4, "Friday 3rd": 5}
	for token, want := range cases {
		day, ok := ParseWeekday(token)
		require.True(t, ok, token)
		assert.Equal(t, want, day, token)
	}
	for _, token := range []string{"Monthly review", "Wedding", "Thunder", "Friendly match", "Tuesdays"} {
		_, ok := ParseWeekday(token)
		assert.False(t, ok, token)
	}
}

func TestSplitTeachers(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, SplitTeachers(" A / / B /-"))
	assert.Empty(t, SplitTeachers("None"))
}

func TestEndToEndSubstitutionTags(t *testing.T) {
	assignments := []models.AssignmentRecord{{ClassID: "701", Subject: "國文", TeacherField: "A/B"}, {ClassID: "702", Subject: "數學", TeacherField: "C"}}
	timetable := []models.TimetableRecord{
		{ClassID: "701", Subject: "國文", WeekdayToken: "三", PeriodToken: "3"},
		{ClassID: "702", Subject: "數學", WeekdayToken: "三", PeriodToken: "4"},
	}
	build, err := BuildIndex(assignments, timetable, IndexOptions{Periods: testPeriods})
	require.NoError(t, err)

	slot := models.Slot{Day: 3, Period: 3}
	free := Available(slot, testPeriods, []string{"A", "B", "C"}, build.Teachers)
	require.Equal(t, []string{"C"}, free)

	ref, ok := build.Teachers.Lookup("A", slot)
	require.True(t, ok)
	tags, err := RenderChangeSet(slot, LessonContent(models.ChangeKindSubstitute, ref.ClassID, ref.Subject), models.AllSlots(testPeriods), NoticeHeader{Teacher: "C"})
	require.NoError(t, err)

	assert.Len(t, tags, 5*testPeriods+6)
	assert.Equal(t, "代701\n國文", tags["{{3_3}}"])
	assert.Equal(t, "C", tags[TeacherTag])
	blanks := 0
	for tag, value := range tags {
		if value == "" && tag != TeacherTag && tag[2] != 'D' {
			blanks++
		}
	}
	assert.Equal(t, 5*testPeriods-1, blanks)
}
