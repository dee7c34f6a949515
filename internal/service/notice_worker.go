package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/internal/dto"
	"github.com/noah-isme/sma-substitute-api/internal/models"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
	"github.com/noah-isme/sma-substitute-api/pkg/jobs"
)

// NoticeJobType tags queue jobs that generate a notice.
const NoticeJobType = "notice"

const finishedJobRetention = 24 * time.Hour

type noticeJobEntry struct {
	job     models.NoticeJob
	request dto.NoticeRequest
	actor   string
}

// NoticeJobStore is the in-memory registry of batch notice jobs.
type NoticeJobStore struct {
	mu    sync.RWMutex
	jobs  map[string]*noticeJobEntry
	clock func() time.Time
}

// NewNoticeJobStore constructs an empty registry.
func NewNoticeJobStore() *NoticeJobStore {
	return &NoticeJobStore{jobs: make(map[string]*noticeJobEntry), clock: time.Now}
}

func (s *NoticeJobStore) create(batchID string, req dto.NoticeRequest, actor string) models.NoticeJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := models.NoticeJob{
		ID:        uuid.NewString(),
		BatchID:   batchID,
		Status:    models.NoticeStatusQueued,
		CreatedAt: s.clock().UTC(),
	}
	s.jobs[job.ID] = &noticeJobEntry{job: job, request: req, actor: actor}
	return job
}

// Get returns a copy of the job.
func (s *NoticeJobStore) Get(id string) (models.NoticeJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.jobs[id]
	if !ok {
		return models.NoticeJob{}, false
	}
	return entry.job, true
}

func (s *NoticeJobStore) request(id string) (dto.NoticeRequest, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.jobs[id]
	if !ok {
		return dto.NoticeRequest{}, "", false
	}
	return entry.request, entry.actor, true
}

func (s *NoticeJobStore) update(id string, fn func(job *models.NoticeJob)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.jobs[id]; ok {
		fn(&entry.job)
	}
}

func (s *NoticeJobStore) finish(id string, fn func(job *models.NoticeJob)) {
	now := s.clock().UTC()
	s.update(id, func(job *models.NoticeJob) {
		fn(job)
		job.FinishedAt = &now
	})
}

// Prune drops jobs that finished before cutoff and returns how many were removed.
func (s *NoticeJobStore) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.jobs {
		if entry.job.FinishedAt != nil && entry.job.FinishedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// NoticeBatchService accepts batches of notice requests and tracks them as background jobs.
type NoticeBatchService struct {
	jobs     *NoticeJobStore
	queue    jobDispatcher
	validate *validator.Validate
	logger   *zap.Logger
}

// NewNoticeBatchService constructs the service.
func NewNoticeBatchService(store *NoticeJobStore, queue jobDispatcher, validate *validator.Validate, logger *zap.Logger) *NoticeBatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &NoticeBatchService{jobs: store, queue: queue, validate: validate, logger: logger}
}

// Submit records one job per request and enqueues them.
func (s *NoticeBatchService) Submit(ctx context.Context, req dto.BatchNoticeRequest, actor string) (*dto.BatchNoticeResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch notice payload")
	}
	if pruned := s.jobs.Prune(s.jobs.clock().Add(-finishedJobRetention)); pruned > 0 {
		s.logger.Debug("pruned finished notice jobs", zap.Int("count", pruned))
	}

	resp := &dto.BatchNoticeResponse{BatchID: uuid.NewString(), Jobs: make([]models.NoticeJob, 0, len(req.Notices))}
	for _, item := range req.Notices {
		job := s.jobs.create(resp.BatchID, item, actor)
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: NoticeJobType}); err != nil {
			s.jobs.finish(job.ID, func(j *models.NoticeJob) {
				j.Status = models.NoticeStatusFailed
				j.ErrorMessage = "failed to enqueue job"
			})
			if errors.Is(err, jobs.ErrQueueFull) {
				return nil, appErrors.Wrap(err, appErrors.ErrCollaborator.Code, appErrors.ErrCollaborator.Status, "notice queue is full, retry later")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue notice job")
		}
		resp.Jobs = append(resp.Jobs, job)
	}
	s.logger.Info("notice batch queued", zap.String("batch_id", resp.BatchID), zap.Int("jobs", len(resp.Jobs)))
	return resp, nil
}

// Status returns the current state of a job.
func (s *NoticeBatchService) Status(id string) (*models.NoticeJob, error) {
	job, ok := s.jobs.Get(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "notice job not found")
	}
	return &job, nil
}

type noticeGenerator interface {
	Generate(ctx context.Context, req dto.NoticeRequest, actor string) (*dto.NoticeResponse, error)
}

// NoticeWorker bridges queue jobs to NoticeService.
type NoticeWorker struct {
	jobs    *NoticeJobStore
	notices noticeGenerator
	logger  *zap.Logger
}

// NewNoticeWorker constructs a worker.
func NewNoticeWorker(store *NoticeJobStore, notices noticeGenerator, logger *zap.Logger) *NoticeWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoticeWorker{jobs: store, notices: notices, logger: logger}
}

// Handle processes a queue job. Only collaborator failures are retried.
func (w *NoticeWorker) Handle(ctx context.Context, job jobs.Job) error {
	req, actor, ok := w.jobs.request(job.ID)
	if !ok {
		return jobs.Permanent(fmt.Errorf("notice job %s not registered", job.ID))
	}
	w.jobs.update(job.ID, func(j *models.NoticeJob) {
		j.Status = models.NoticeStatusProcessing
		j.Attempts = job.Attempt + 1
	})

	resp, err := w.notices.Generate(ctx, req, actor)
	if err != nil {
		if !appErrors.Retryable(err) {
			return jobs.Permanent(err)
		}
		w.jobs.update(job.ID, func(j *models.NoticeJob) {
			j.Status = models.NoticeStatusQueued
			j.ErrorMessage = err.Error()
		})
		return err
	}

	w.jobs.finish(job.ID, func(j *models.NoticeJob) {
		j.Status = models.NoticeStatusFinished
		j.NoticeID = resp.ID
		j.Filename = resp.Filename
		j.DownloadURL = resp.DownloadURL
		j.ErrorMessage = ""
	})
	return nil
}

// Fail marks a job that the queue gave up on.
func (w *NoticeWorker) Fail(job jobs.Job, err error) {
	w.jobs.finish(job.ID, func(j *models.NoticeJob) {
		j.Status = models.NoticeStatusFailed
		j.ErrorMessage = appErrors.FromError(err).Message
	})
	w.logger.Warn("notice job failed", zap.String("job_id", job.ID), zap.Int("attempts", job.Attempt), zap.Error(err))
}
