package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-substitute-api/internal/dto"
	"github.com/noah-isme/sma-substitute-api/internal/models"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

type recordStoreStub struct {
	assignments []models.AssignmentRecord
	timetable   []models.TimetableRecord
	replaceErr  error
	listErr     error
	replaced    int
}

func (s *recordStoreStub) ReplaceAll(_ context.Context, assignments []models.AssignmentRecord, timetable []models.TimetableRecord) error {
	if s.replaceErr != nil {
		return s.replaceErr
	}
	s.replaced++
	s.assignments = assignments
	s.timetable = timetable
	return nil
}

func (s *recordStoreStub) ListAssignments(context.Context) ([]models.AssignmentRecord, error) {
	return s.assignments, s.listErr
}

func (s *recordStoreStub) ListTimetable(context.Context) ([]models.TimetableRecord, error) {
	return s.timetable, s.listErr
}

type invalidationStub struct {
	calls int
}

func (s *invalidationStub) InvalidateTimetable(context.Context) error {
	s.calls++
	return errors.New("redis down")
}

func newTestTimetableService(records TimetableRecordStore, cache timetableCache) (*TimetableService, *SnapshotStore) {
	store := NewSnapshotStore()
	return NewTimetableService(store, records, cache, NewMetricsService(), IndexOptions{Periods: testPeriods}, nil), store
}

func TestSnapshotStoreUnavailableBeforeImport(t *testing.T) {
	svc, _ := newTestTimetableService(nil, nil)

	_, err := svc.Current()
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSnapshotUnavailable.Code, appErrors.FromError(err).Code)

	_, err = svc.Teachers()
	assert.Error(t, err)
}

func TestTimetableServiceImportBumpsVersion(t *testing.T) {
	cache := &invalidationStub{}
	svc, _ := newTestTimetableService(nil, cache)

	first, err := svc.Import(context.Background(), sampleAssignments(), sampleTimetable(), false)
	require.NoError(t, err)
	second, err := svc.Import(context.Background(), sampleAssignments(), sampleTimetable(), false)
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Version)
	assert.Equal(t, int64(2), second.Version)
	assert.Equal(t, 2, cache.calls, "a failing cache does not block publishing")

	summary, err := svc.Summary()
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Version)
	assert.Equal(t, 4, summary.TeacherCount)
	assert.Equal(t, 2, summary.ClassCount)
	assert.Equal(t, 2, summary.Stats.SkippedRows)
}

func TestTimetableServiceFailedImportKeepsPreviousSnapshot(t *testing.T) {
	svc, _ := newTestTimetableService(nil, nil)
	_, err := svc.Import(context.Background(), sampleAssignments(), sampleTimetable(), false)
	require.NoError(t, err)

	_, err = svc.Import(context.Background(), []models.AssignmentRecord{{ClassID: "701"}}, sampleTimetable(), false)
	require.Error(t, err)

	current, err := svc.Current()
	require.NoError(t, err)
	assert.Equal(t, int64(1), current.Version)
}

func TestTimetableServiceImportPersistRequiresStorage(t *testing.T) {
	svc, _ := newTestTimetableService(nil, nil)

	_, err := svc.Import(context.Background(), sampleAssignments(), sampleTimetable(), true)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestTimetableServicePersistThenRebuild(t *testing.T) {
	records := &recordStoreStub{}
	svc, _ := newTestTimetableService(records, nil)

	imported, err := svc.Import(context.Background(), sampleAssignments(), sampleTimetable(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, records.replaced)

	rebuilt, err := svc.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, imported.Version+1, rebuilt.Version)
	assert.Equal(t, imported.Stats, rebuilt.Stats)
}

func TestTimetableServiceRebuildErrors(t *testing.T) {
	svc, _ := newTestTimetableService(nil, nil)
	_, err := svc.Rebuild(context.Background())
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	svc, _ = newTestTimetableService(&recordStoreStub{}, nil)
	_, err = svc.Rebuild(context.Background())
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	svc, _ = newTestTimetableService(&recordStoreStub{listErr: errors.New("db down")}, nil)
	_, err = svc.Rebuild(context.Background())
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceSchedules(t *testing.T) {
	svc, _ := newTestTimetableService(nil, nil)
	_, err := svc.Import(context.Background(), sampleAssignments(), sampleTimetable(), false)
	require.NoError(t, err)

	grid, err := svc.TeacherSchedule(" 王小明 ")
	require.NoError(t, err)
	assert.Equal(t, dto.ScheduleKindTeacher, grid.Kind)
	require.Len(t, grid.Cells, 1)
	assert.Equal(t, dto.ScheduleCell{Day: 3, Period: 3, ClassID: "701", Subject: "國文"}, grid.Cells[0])

	grid, err = svc.ClassSchedule("701")
	require.NoError(t, err)
	require.Len(t, grid.Cells, 2)
	assert.Equal(t, 1, grid.Cells[0].Day)
	assert.Equal(t, "王小明/李大華", grid.Cells[1].Teachers)

	_, err = svc.TeacherSchedule("nobody")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	classes, err := svc.Classes()
	require.NoError(t, err)
	assert.Equal(t, []string{"701", "702"}, classes)
}

func TestTimetableServiceTeacherWithoutLessons(t *testing.T) {
	svc, _ := newTestTimetableService(nil, nil)
	assignments := []models.AssignmentRecord{{ClassID: "701", Subject: "國文", TeacherField: "A/B"}, {ClassID: "702", Subject: "數學", TeacherField: "C"}}
	timetable := []models.TimetableRecord{{ClassID: "701", Subject: "國文", WeekdayToken: "三", PeriodToken: "3"}}
	snapshot, err := svc.Import(context.Background(), assignments, timetable, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, snapshot.TeacherNames())
	assert.Equal(t, 3, snapshot.Summary().TeacherCount)

	grid, err := svc.TeacherSchedule("C")
	require.NoError(t, err)
	assert.Equal(t, "C", grid.Owner)
	assert.Empty(t, grid.Cells)
}
