package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/internal/dto"
	"github.com/noah-isme/sma-substitute-api/internal/models"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

// SnapshotStore holds the snapshot currently served. Readers never block; publishers are serialised.
type SnapshotStore struct {
	current atomic.Pointer[models.Snapshot]
	mu      sync.Mutex
	clock   func() time.Time
}

// NewSnapshotStore constructs an empty store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{clock: time.Now}
}

// Load returns the active snapshot or SNAPSHOT_UNAVAILABLE before the first publish.
func (s *SnapshotStore) Load() (*models.Snapshot, error) {
	snapshot := s.current.Load()
	if snapshot == nil {
		return nil, appErrors.ErrSnapshotUnavailable
	}
	return snapshot, nil
}

// Publish wraps a finished build into the next snapshot version and swaps it in.
func (s *SnapshotStore) Publish(build *IndexBuild, periods int) *models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var version int64 = 1
	if prev := s.current.Load(); prev != nil {
		version = prev.Version + 1
	}
	snapshot := &models.Snapshot{
		Version:       version,
		BuiltAt:       s.clock().UTC(),
		Periods:       periods,
		Teachers:      build.Teachers,
		Classes:       build.Classes,
		KnownTeachers: build.Known,
		Stats:         build.Stats,
	}
	s.current.Store(snapshot)
	return snapshot
}

// TimetableRecordStore persists the raw records a snapshot is built from.
type TimetableRecordStore interface {
	ReplaceAll(ctx context.Context, assignments []models.AssignmentRecord, timetable []models.TimetableRecord) error
	ListAssignments(ctx context.Context) ([]models.AssignmentRecord, error)
	ListTimetable(ctx context.Context) ([]models.TimetableRecord, error)
}

type timetableCache interface {
	InvalidateTimetable(ctx context.Context) error
}

// TimetableService builds snapshots from records and answers grid queries against the active one.
type TimetableService struct {
	store   *SnapshotStore
	records TimetableRecordStore
	cache   timetableCache
	metrics *MetricsService
	logger  *zap.Logger
	opts    IndexOptions
}

// NewTimetableService constructs a TimetableService. records and cache may be nil.
func NewTimetableService(store *SnapshotStore, records TimetableRecordStore, cache timetableCache, metrics *MetricsService, opts IndexOptions, logger *zap.Logger) *TimetableService {
	if store == nil {
		store = NewSnapshotStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.UnknownTeacher == "" {
		opts.UnknownTeacher = "未知"
	}
	return &TimetableService{store: store, records: records, cache: cache, metrics: metrics, logger: logger, opts: opts}
}

// Periods returns the number of periods per school day.
func (s *TimetableService) Periods() int {
	return s.opts.Periods
}

// Import builds a snapshot from the given records and makes it current. With persist set the
// records also replace the stored copy, so a later Rebuild reproduces the same snapshot.
func (s *TimetableService) Import(ctx context.Context, assignments []models.AssignmentRecord, timetable []models.TimetableRecord, persist bool) (*models.Snapshot, error) {
	if persist && s.records == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "record storage is not configured")
	}
	start := time.Now()
	build, err := BuildIndex(assignments, timetable, s.opts)
	if err != nil {
		return nil, err
	}
	if persist {
		began := time.Now()
		err := s.records.ReplaceAll(ctx, assignments, timetable)
		s.metrics.ObserveDBQuery("timetable_replace", time.Since(began))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store timetable records")
		}
	}
	return s.publish(ctx, build, time.Since(start)), nil
}

// Rebuild reloads the stored records and swaps in a fresh snapshot.
func (s *TimetableService) Rebuild(ctx context.Context) (*models.Snapshot, error) {
	if s.records == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "record storage is not configured")
	}
	start := time.Now()
	assignments, err := s.records.ListAssignments(ctx)
	s.metrics.ObserveDBQuery("assignments_list", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment records")
	}
	began := time.Now()
	timetable, err := s.records.ListTimetable(ctx)
	s.metrics.ObserveDBQuery("timetable_list", time.Since(began))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable records")
	}
	if len(timetable) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no timetable records stored")
	}
	build, err := BuildIndex(assignments, timetable, s.opts)
	if err != nil {
		return nil, err
	}
	return s.publish(ctx, build, time.Since(start)), nil
}

func (s *TimetableService) publish(ctx context.Context, build *IndexBuild, took time.Duration) *models.Snapshot {
	snapshot := s.store.Publish(build, s.opts.Periods)
	if s.cache != nil {
		// stale entries are keyed by the old version and would only expire, so a failure is not fatal
		_ = s.cache.InvalidateTimetable(ctx)
	}
	s.metrics.RecordSnapshot(snapshot, took)

	for _, c := range snapshot.Stats.Collisions {
		s.logger.Warn("teacher double booked",
			zap.String("teacher", c.Teacher),
			zap.String("slot", c.Slot.Key()),
			zap.String("overwritten", c.Overwritten.ClassID+" "+c.Overwritten.Subject),
			zap.String("kept", c.Kept.ClassID+" "+c.Kept.Subject),
			zap.Int("row", c.Row),
		)
	}
	s.logger.Info("timetable snapshot published",
		zap.Int64("version", snapshot.Version),
		zap.Int("indexed_lessons", snapshot.Stats.IndexedLessons),
		zap.Int("skipped_rows", snapshot.Stats.SkippedRows),
		zap.Int("unmatched_lessons", snapshot.Stats.UnmatchedLessons),
		zap.Int("collisions", len(snapshot.Stats.Collisions)),
		zap.Duration("took", took),
	)
	return snapshot
}

// Current returns the active snapshot.
func (s *TimetableService) Current() (*models.Snapshot, error) {
	return s.store.Load()
}

// Summary describes the active snapshot.
func (s *TimetableService) Summary() (models.SnapshotSummary, error) {
	snapshot, err := s.store.Load()
	if err != nil {
		return models.SnapshotSummary{}, err
	}
	return snapshot.Summary(), nil
}

// Teachers lists every teacher in the active snapshot, sorted by name.
func (s *TimetableService) Teachers() ([]string, error) {
	snapshot, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	return snapshot.TeacherNames(), nil
}

// Classes lists every class in the active snapshot, sorted by id.
func (s *TimetableService) Classes() ([]string, error) {
	snapshot, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	return snapshot.ClassIDs(), nil
}

// TeacherSchedule returns the week grid of one teacher.
func (s *TimetableService) TeacherSchedule(name string) (*dto.ScheduleGrid, error) {
	snapshot, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if !snapshot.KnowsTeacher(name) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("teacher %q is not known", name))
	}
	lessons := snapshot.Teachers[name]
	cells := make([]dto.ScheduleCell, 0, len(lessons))
	for slot, ref := range lessons {
		cells = append(cells, dto.ScheduleCell{Day: slot.Day, Period: slot.Period, ClassID: ref.ClassID, Subject: ref.Subject})
	}
	sortCells(cells)
	return &dto.ScheduleGrid{Owner: name, Kind: dto.ScheduleKindTeacher, Periods: snapshot.Periods, SnapshotVersion: snapshot.Version, Cells: cells}, nil
}

// ClassSchedule returns the week grid of one class.
func (s *TimetableService) ClassSchedule(classID string) (*dto.ScheduleGrid, error) {
	snapshot, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	classID = strings.TrimSpace(classID)
	lessons, ok := snapshot.Classes[classID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("class %q has no lessons", classID))
	}
	cells := make([]dto.ScheduleCell, 0, len(lessons))
	for slot, lesson := range lessons {
		cells = append(cells, dto.ScheduleCell{Day: slot.Day, Period: slot.Period, Subject: lesson.Subject, Teachers: lesson.TeacherDisplay})
	}
	sortCells(cells)
	return &dto.ScheduleGrid{Owner: classID, Kind: dto.ScheduleKindClass, Periods: snapshot.Periods, SnapshotVersion: snapshot.Version, Cells: cells}, nil
}

func sortCells(cells []dto.ScheduleCell) {
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Day != cells[j].Day {
			return cells[i].Day < cells[j].Day
		}
		return cells[i].Period < cells[j].Period
	})
}
