package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/internal/dto"
	"github.com/noah-isme/sma-substitute-api/internal/models"
)

type availabilityCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// AvailabilityService answers "who is free at this slot" against the active snapshot.
type AvailabilityService struct {
	store  *SnapshotStore
	roster RosterSource
	cache  availabilityCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewAvailabilityService constructs the service. roster and cache may be nil.
func NewAvailabilityService(store *SnapshotStore, roster RosterSource, cache availabilityCache, ttl time.Duration, logger *zap.Logger) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{store: store, roster: roster, cache: cache, ttl: ttl, logger: logger}
}

// Pool returns every known teacher in roster order: anyone named by the assignment table or the
// roster, whether or not the timetable gives them a lesson.
func (s *AvailabilityService) Pool(ctx context.Context) ([]string, error) {
	snapshot, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	return s.pool(ctx, snapshot), nil
}

func (s *AvailabilityService) pool(ctx context.Context, snapshot *models.Snapshot) []string {
	known := snapshot.TeacherNames()
	if s.roster == nil {
		return known
	}
	names, err := s.roster.Names(ctx)
	if err != nil {
		s.logger.Warn("teacher roster unavailable, using alphabetical order", zap.Error(err))
		return known
	}
	return OrderTeachers(known, names)
}

// Available lists the teachers with no lesson at slot. The second result reports a cache hit.
func (s *AvailabilityService) Available(ctx context.Context, slot models.Slot) (*dto.AvailabilityResponse, bool, error) {
	snapshot, err := s.store.Load()
	if err != nil {
		return nil, false, err
	}
	resp := &dto.AvailabilityResponse{Slot: slot, SnapshotVersion: snapshot.Version}

	key := AvailabilityKey(snapshot.Version, slot)
	if s.cache != nil {
		var cached []string
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			resp.Teachers = cached
			return resp, true, nil
		}
	}

	resp.Teachers = Available(slot, snapshot.Periods, s.pool(ctx, snapshot), snapshot.Teachers)
	if s.cache != nil && slot.Valid(snapshot.Periods) {
		_ = s.cache.Set(ctx, key, resp.Teachers, s.ttl)
	}
	return resp, false, nil
}

// IsAvailable reports whether teacher is a known teacher with no lesson at slot.
func (s *AvailabilityService) IsAvailable(ctx context.Context, teacher string, slot models.Slot) (bool, error) {
	resp, _, err := s.Available(ctx, slot)
	if err != nil {
		return false, err
	}
	for _, name := range resp.Teachers {
		if name == teacher {
			return true, nil
		}
	}
	return false, nil
}
