package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-substitute-api/internal/dto"
	"github.com/noah-isme/sma-substitute-api/internal/models"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
	"github.com/noah-isme/sma-substitute-api/pkg/jobs"
)

type dispatcherStub struct {
	jobs []jobs.Job
	err  error
}

func (d *dispatcherStub) Enqueue(job jobs.Job) error {
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

type generatorStub struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (g *generatorStub) Generate(_ context.Context, req dto.NoticeRequest, _ string) (*dto.NoticeResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &dto.NoticeResponse{ID: "notice-1", Filename: req.ReplacementTeacher + ".docx", DownloadURL: "/dl"}, nil
}

func submitOne(t *testing.T, store *NoticeJobStore, queue jobDispatcher) models.NoticeJob {
	t.Helper()
	batch := NewNoticeBatchService(store, queue, nil, nil)
	resp, err := batch.Submit(context.Background(), dto.BatchNoticeRequest{Notices: []dto.NoticeRequest{validNoticeRequest()}}, "office")
	require.NoError(t, err)
	require.Len(t, resp.Jobs, 1)
	return resp.Jobs[0]
}

func TestNoticeBatchServiceSubmit(t *testing.T) {
	store := NewNoticeJobStore()
	queue := &dispatcherStub{}

	job := submitOne(t, store, queue)
	assert.Equal(t, models.NoticeStatusQueued, job.Status)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, NoticeJobType, queue.jobs[0].Type)

	status, err := NewNoticeBatchService(store, queue, nil, nil).Status(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.BatchID, status.BatchID)
}

func TestNoticeBatchServiceValidation(t *testing.T) {
	batch := NewNoticeBatchService(NewNoticeJobStore(), &dispatcherStub{}, nil, nil)

	_, err := batch.Submit(context.Background(), dto.BatchNoticeRequest{}, "")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = batch.Status("missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestNoticeBatchServiceEnqueueFailure(t *testing.T) {
	store := NewNoticeJobStore()
	batch := NewNoticeBatchService(store, &dispatcherStub{err: errors.New("queue stopped")}, nil, nil)
	req := dto.BatchNoticeRequest{Notices: []dto.NoticeRequest{validNoticeRequest()}}

	_, err := batch.Submit(context.Background(), req, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)

	full := NewNoticeBatchService(store, &dispatcherStub{err: fmt.Errorf("queue notices: %w", jobs.ErrQueueFull)}, nil, nil)
	_, err = full.Submit(context.Background(), req, "")
	require.Error(t, err)
	assert.True(t, appErrors.Retryable(err))
}

func TestNoticeWorkerHandleSuccess(t *testing.T) {
	store := NewNoticeJobStore()
	job := submitOne(t, store, &dispatcherStub{})
	worker := NewNoticeWorker(store, &generatorStub{}, nil)

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: job.ID, Type: NoticeJobType}))

	got, ok := store.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, models.NoticeStatusFinished, got.Status)
	assert.Equal(t, "notice-1", got.NoticeID)
	assert.Equal(t, 1, got.Attempts)
	assert.NotNil(t, got.FinishedAt)
}

func TestNoticeWorkerHandleClassifiesErrors(t *testing.T) {
	store := NewNoticeJobStore()
	job := submitOne(t, store, &dispatcherStub{})
	generator := &generatorStub{errs: []error{
		appErrors.Clone(appErrors.ErrCollaborator, "template store down"),
		appErrors.Clone(appErrors.ErrTeacherBusy, "busy"),
	}}
	worker := NewNoticeWorker(store, generator, nil)

	err := worker.Handle(context.Background(), jobs.Job{ID: job.ID})
	require.Error(t, err)
	assert.False(t, jobs.IsPermanent(err))
	got, _ := store.Get(job.ID)
	assert.Equal(t, models.NoticeStatusQueued, got.Status)

	err = worker.Handle(context.Background(), jobs.Job{ID: job.ID, Attempt: 1})
	require.Error(t, err)
	assert.True(t, jobs.IsPermanent(err))

	worker.Fail(jobs.Job{ID: job.ID, Attempt: 1}, err)
	got, _ = store.Get(job.ID)
	assert.Equal(t, models.NoticeStatusFailed, got.Status)
	assert.Equal(t, "busy", got.ErrorMessage)
	assert.Equal(t, 2, got.Attempts)
}

func TestNoticeWorkerUnknownJobIsPermanent(t *testing.T) {
	worker := NewNoticeWorker(NewNoticeJobStore(), &generatorStub{}, nil)

	err := worker.Handle(context.Background(), jobs.Job{ID: "ghost"})
	assert.True(t, jobs.IsPermanent(err))
}

func TestNoticeWorkerThroughQueue(t *testing.T) {
	store := NewNoticeJobStore()
	generator := &generatorStub{errs: []error{appErrors.Clone(appErrors.ErrCollaborator, "flaky")}}
	worker := NewNoticeWorker(store, generator, nil)
	queue := jobs.NewQueue("notices", worker.Handle, jobs.QueueConfig{
		Workers:    1,
		MaxRetries: 2,
		RetryDelay: 5 * time.Millisecond,
		OnFailure:  worker.Fail,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()

	job := submitOne(t, store, queue)

	require.Eventually(t, func() bool {
		got, _ := store.Get(job.ID)
		return got.Status == models.NoticeStatusFinished
	}, 2*time.Second, 5*time.Millisecond)
	got, _ := store.Get(job.ID)
	assert.Equal(t, 2, got.Attempts)
}

func TestNoticeJobStorePrune(t *testing.T) {
	store := NewNoticeJobStore()
	now := time.Date(2026, time.February, 11, 9, 0, 0, 0, time.UTC)
	store.clock = func() time.Time { return now }
	job := submitOne(t, store, &dispatcherStub{})
	open := submitOne(t, store, &dispatcherStub{})
	store.finish(job.ID, func(j *models.NoticeJob) { j.Status = models.NoticeStatusFinished })

	assert.Equal(t, 0, store.Prune(now))
	assert.Equal(t, 1, store.Prune(now.Add(time.Minute)))
	_, ok := store.Get(job.ID)
	assert.False(t, ok)
	_, ok = store.Get(open.ID)
	assert.True(t, ok)
}
