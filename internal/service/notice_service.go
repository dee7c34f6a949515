package service

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-substitute-api/internal/dto"
	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/pkg/docx"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
	"github.com/noah-isme/sma-substitute-api/pkg/export"
	"github.com/noah-isme/sma-substitute-api/pkg/storage"
)

// Content types of rendered notices.
const (
	ContentTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	ContentTypePDF  = "application/pdf"

	// NoticeIssuedEvent is the event type published for every stored notice.
	NoticeIssuedEvent = "notice.issued"

	noticeSuffix = "通知單"
	noticeTitle  = "代課通知單"
)

var filenameSanitizer = strings.NewReplacer("/", "_", `\`, "_", ":", "_", "\x00", "")

// TemplateSource fetches the notice template bytes.
type TemplateSource interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

type noticeFileStore interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
}

type noticeMirror interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

type noticeLog interface {
	Create(ctx context.Context, record *models.NoticeRecord) error
	GetByID(ctx context.Context, id string) (*models.NoticeRecord, error)
	ListRecent(ctx context.Context, limit int) ([]models.NoticeRecord, error)
}

// EventPublisher emits domain events.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, event interface{}) error
}

type noticePDFRenderer interface {
	Render(data export.Dataset, title string, subtitles ...string) ([]byte, error)
}

// NoticeConfig tunes notice generation.
type NoticeConfig struct {
	TemplatePath string
	APIPrefix    string
	Concurrency  int
	Location     *time.Location
}

// NoticeDeps groups the optional collaborators of NoticeService. Nil members disable the step.
type NoticeDeps struct {
	Templates TemplateSource
	Files     noticeFileStore
	Mirror    noticeMirror
	Log       noticeLog
	Events    EventPublisher
	PDF       noticePDFRenderer
	Signer    *storage.SignedURLSigner
	Metrics   *MetricsService
	Validator *validator.Validate
	Roster    RosterSource
}

// NoticePlan is a fully resolved notice: the selection and every tag value, before any I/O.
type NoticePlan struct {
	Selection       models.Selection    `json:"selection"`
	SnapshotVersion int64               `json:"snapshot_version"`
	Periods         int                 `json:"periods"`
	ReferenceDate   time.Time           `json:"reference_date"`
	Dates           WeekDates           `json:"dates"`
	Format          models.NoticeFormat `json:"format"`
	Filename        string              `json:"filename"`
	Tags            map[string]string   `json:"tags"`
}

// NoticeIssued is the payload of the notice.issued event.
type NoticeIssued struct {
	ID              string           `json:"id"`
	Filename        string           `json:"filename"`
	Format          string           `json:"format"`
	Selection       models.Selection `json:"selection"`
	SnapshotVersion int64            `json:"snapshot_version"`
	Date            string           `json:"date"`
	IssuedBy        string           `json:"issued_by"`
	IssuedAt        time.Time        `json:"issued_at"`
}

// NoticeDownload is a resolved download token.
type NoticeDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// NoticeService turns a lesson selection into a filled substitution notice.
type NoticeService struct {
	store    *SnapshotStore
	deps     NoticeDeps
	validate *validator.Validate
	logger   *zap.Logger
	cfg      NoticeConfig
	clock    func() time.Time
}

// NewNoticeService constructs the service.
func NewNoticeService(store *SnapshotStore, deps NoticeDeps, cfg NoticeConfig, logger *zap.Logger) *NoticeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := deps.Validator
	if validate == nil {
		validate = validator.New()
	}
	if deps.PDF == nil {
		deps.PDF = export.NewPDFExporter("")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &NoticeService{store: store, deps: deps, validate: validate, logger: logger, cfg: cfg, clock: time.Now}
}

// NoticeFilename builds "{date}_{teacher}_通知單.{ext}".
func NoticeFilename(date, teacher string, format models.NoticeFormat) string {
	if format == "" {
		format = models.NoticeFormatDOCX
	}
	return fmt.Sprintf("%s_%s_%s.%s", date, filenameSanitizer.Replace(teacher), noticeSuffix, format)
}

// Plan validates a request against the active snapshot and renders every tag value.
func (s *NoticeService) Plan(ctx context.Context, req dto.NoticeRequest) (*NoticePlan, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid notice payload")
	}
	snapshot, err := s.store.Load()
	if err != nil {
		return nil, err
	}

	slot := models.Slot{Day: req.Day, Period: req.Period}
	if !slot.Valid(snapshot.Periods) {
		return nil, appErrors.Clone(appErrors.ErrInvalidSlot, fmt.Sprintf("%s is outside the %d-period timetable", slot, snapshot.Periods))
	}

	absent := strings.TrimSpace(req.AbsentTeacher)
	replacement := strings.TrimSpace(req.ReplacementTeacher)
	if absent == replacement {
		return nil, appErrors.Clone(appErrors.ErrValidation, "replacement teacher must differ from the absent teacher")
	}

	lesson, ok := snapshot.Teachers.Lookup(absent, slot)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s has no lesson at %s", absent, slot))
	}
	if (req.ClassID != "" && strings.TrimSpace(req.ClassID) != lesson.ClassID) ||
		(req.Subject != "" && strings.TrimSpace(req.Subject) != lesson.Subject) {
		return nil, appErrors.Clone(appErrors.ErrLessonMismatch, fmt.Sprintf("%s teaches %s %s at %s", absent, lesson.ClassID, lesson.Subject, slot))
	}

	if !s.knownTeacher(ctx, snapshot, replacement) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("teacher %q is not known", replacement))
	}
	if len(Available(slot, snapshot.Periods, []string{replacement}, snapshot.Teachers)) == 0 {
		busy, _ := snapshot.Teachers.Lookup(replacement, slot)
		return nil, appErrors.Clone(appErrors.ErrTeacherBusy, fmt.Sprintf("%s already teaches %s %s at %s", replacement, busy.ClassID, busy.Subject, slot))
	}

	ref, err := s.referenceDate(req.ReferenceDate)
	if err != nil {
		return nil, err
	}
	kind := req.Kind
	if kind == "" {
		kind = models.ChangeKindSubstitute
	}
	format := req.Format
	if format == "" {
		format = models.NoticeFormatDOCX
	}

	dates := WeekOf(ref)
	tags, err := RenderChangeSet(slot, LessonContent(kind, lesson.ClassID, lesson.Subject), models.AllSlots(snapshot.Periods), NoticeHeader{Teacher: replacement, Dates: dates})
	if err != nil {
		return nil, err
	}

	return &NoticePlan{
		Selection: models.Selection{
			Slot:               slot,
			ClassID:            lesson.ClassID,
			Subject:            lesson.Subject,
			AbsentTeacher:      absent,
			ReplacementTeacher: replacement,
			Kind:               kind,
		},
		SnapshotVersion: snapshot.Version,
		Periods:         snapshot.Periods,
		ReferenceDate:   ref,
		Dates:           dates,
		Format:          format,
		Filename:        NoticeFilename(dates[slot.Day-1], replacement, format),
		Tags:            tags,
	}, nil
}

// knownTeacher accepts anyone named by the assignment table or the roster.
func (s *NoticeService) knownTeacher(ctx context.Context, snapshot *models.Snapshot, name string) bool {
	if snapshot.KnowsTeacher(name) {
		return true
	}
	if s.deps.Roster == nil {
		return false
	}
	names, err := s.deps.Roster.Names(ctx)
	if err != nil {
		s.logger.Warn("teacher roster unavailable", zap.Error(err))
		return false
	}
	for _, candidate := range names {
		if strings.TrimSpace(candidate) == name {
			return true
		}
	}
	return false
}

func (s *NoticeService) referenceDate(raw string) (time.Time, error) {
	if raw == "" {
		return s.clock().In(s.cfg.Location), nil
	}
	ref, err := time.ParseInLocation("2006-01-02", raw, s.cfg.Location)
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "reference_date must be YYYY-MM-DD")
	}
	return ref, nil
}

// Render produces the document bytes for a plan.
func (s *NoticeService) Render(ctx context.Context, plan *NoticePlan) ([]byte, string, error) {
	if plan.Format == models.NoticeFormatPDF {
		data, err := s.renderPDF(plan)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrCollaborator.Code, appErrors.ErrCollaborator.Status, "failed to render pdf notice")
		}
		return data, ContentTypePDF, nil
	}

	tpl, err := s.fetchTemplate(ctx)
	if err != nil {
		return nil, "", err
	}
	data, err := tpl.Apply(plan.Tags)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrCollaborator.Code, appErrors.ErrCollaborator.Status, "failed to fill notice template")
	}
	return data, ContentTypeDOCX, nil
}

func (s *NoticeService) fetchTemplate(ctx context.Context) (*docx.Template, error) {
	if s.deps.Templates == nil {
		return nil, appErrors.Clone(appErrors.ErrCollaborator, "notice template source is not configured")
	}
	raw, err := s.deps.Templates.Fetch(ctx, s.cfg.TemplatePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCollaborator.Code, appErrors.ErrCollaborator.Status, "failed to fetch notice template")
	}
	tpl, err := docx.Open(raw)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCollaborator.Code, appErrors.ErrCollaborator.Status, "notice template is not a valid docx")
	}
	return tpl, nil
}

// TemplateTags lists the placeholders present in the configured template.
func (s *NoticeService) TemplateTags(ctx context.Context) ([]string, error) {
	tpl, err := s.fetchTemplate(ctx)
	if err != nil {
		return nil, err
	}
	return tpl.Tags(), nil
}

func (s *NoticeService) renderPDF(plan *NoticePlan) ([]byte, error) {
	cells := make(map[string]string, 1)
	for _, slot := range models.AllSlots(plan.Periods) {
		if value := plan.Tags[slot.Tag()]; value != "" {
			cells[slot.Key()] = value
		}
	}
	grid := export.WeekGrid{Periods: plan.Periods, Cells: cells}
	return s.deps.PDF.Render(grid.Dataset(), noticeTitle,
		plan.Selection.ReplacementTeacher,
		fmt.Sprintf("%s - %s", plan.Dates[0], plan.Dates[len(plan.Dates)-1]),
	)
}

// Generate plans, renders and stores a notice and returns where to download it.
func (s *NoticeService) Generate(ctx context.Context, req dto.NoticeRequest, actor string) (*dto.NoticeResponse, error) {
	resp, err := s.generate(ctx, req, actor)
	if err != nil {
		s.deps.Metrics.RecordNoticeFailure(appErrors.FromError(err).Code)
		return nil, err
	}
	return resp, nil
}

func (s *NoticeService) generate(ctx context.Context, req dto.NoticeRequest, actor string) (*dto.NoticeResponse, error) {
	plan, err := s.Plan(ctx, req)
	if err != nil {
		return nil, err
	}
	data, contentType, err := s.Render(ctx, plan)
	if err != nil {
		return nil, err
	}

	resp := &dto.NoticeResponse{
		ID:              uuid.NewString(),
		Filename:        plan.Filename,
		Format:          plan.Format,
		Selection:       plan.Selection,
		SnapshotVersion: plan.SnapshotVersion,
		Tags:            plan.Tags,
	}
	if s.deps.Files == nil {
		return nil, appErrors.Clone(appErrors.ErrCollaborator, "notice storage is not configured")
	}
	rel := path.Join(plan.ReferenceDate.Format("2006"), resp.ID, plan.Filename)
	resp.StoragePath = rel
	if _, err := s.deps.Files.Save(rel, data); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCollaborator.Code, appErrors.ErrCollaborator.Status, "failed to store notice")
	}

	if s.deps.Signer != nil {
		token, expiresAt, err := s.deps.Signer.Generate(resp.ID, rel)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
		}
		resp.DownloadURL = fmt.Sprintf("%s/notices/download?token=%s", strings.TrimRight(s.cfg.APIPrefix, "/"), url.QueryEscape(token))
		resp.ExpiresAt = &expiresAt
	}

	s.afterStore(ctx, resp, plan, rel, data, contentType, actor)
	s.deps.Metrics.RecordNotice(plan.Selection.Kind, plan.Format)
	s.logger.Info("notice generated",
		zap.String("id", resp.ID),
		zap.String("filename", resp.Filename),
		zap.String("absent", plan.Selection.AbsentTeacher),
		zap.String("replacement", plan.Selection.ReplacementTeacher),
		zap.String("slot", plan.Selection.Slot.Key()),
	)
	return resp, nil
}

// afterStore runs the best-effort steps. The document is already stored, so failures are logged only.
func (s *NoticeService) afterStore(ctx context.Context, resp *dto.NoticeResponse, plan *NoticePlan, rel string, data []byte, contentType, actor string) {
	if s.deps.Mirror != nil {
		if err := s.deps.Mirror.Put(ctx, rel, data, contentType); err != nil {
			s.logger.Warn("notice mirror failed", zap.String("id", resp.ID), zap.Error(err))
		}
	}
	if s.deps.Log != nil {
		record := &models.NoticeRecord{
			ID:              resp.ID,
			SnapshotVersion: plan.SnapshotVersion,
			Selection:       models.NoticeSelection{Selection: plan.Selection},
			Format:          plan.Format,
			Filename:        plan.Filename,
			StoragePath:     rel,
			ReferenceDate:   plan.ReferenceDate,
			CreatedBy:       actor,
		}
		if err := s.deps.Log.Create(ctx, record); err != nil {
			s.logger.Warn("notice log failed", zap.String("id", resp.ID), zap.Error(err))
		}
	}
	if s.deps.Events != nil {
		event := NoticeIssued{
			ID:              resp.ID,
			Filename:        plan.Filename,
			Format:          string(plan.Format),
			Selection:       plan.Selection,
			SnapshotVersion: plan.SnapshotVersion,
			Date:            plan.Dates[plan.Selection.Slot.Day-1],
			IssuedBy:        actor,
			IssuedAt:        s.clock().UTC(),
		}
		if err := s.deps.Events.Publish(ctx, NoticeIssuedEvent, event); err != nil {
			s.logger.Warn("notice event publish failed", zap.String("id", resp.ID), zap.Error(err))
		}
	}
}

// GenerateBatch generates several notices concurrently. Results keep request order; the first
// failure cancels the remaining renders.
func (s *NoticeService) GenerateBatch(ctx context.Context, reqs []dto.NoticeRequest, actor string) ([]*dto.NoticeResponse, error) {
	results := make([]*dto.NoticeResponse, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i := range reqs {
		i := i
		g.Go(func() error {
			resp, err := s.Generate(gctx, reqs[i], actor)
			if err != nil {
				return fmt.Errorf("notice %d: %w", i+1, err)
			}
			results[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// History lists the most recently issued notices, newest first.
func (s *NoticeService) History(ctx context.Context, limit int) ([]models.NoticeRecord, error) {
	if s.deps.Log == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "notice history requires the database")
	}
	records, err := s.deps.Log.ListRecent(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notices")
	}
	if records == nil {
		records = []models.NoticeRecord{}
	}
	return records, nil
}

// HistoryEntry returns one logged notice.
func (s *NoticeService) HistoryEntry(ctx context.Context, id string) (*models.NoticeRecord, error) {
	if s.deps.Log == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "notice history requires the database")
	}
	record, err := s.deps.Log.GetByID(ctx, id)
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	return record, nil
}

// ResolveDownload validates a download token and opens the stored notice.
func (s *NoticeService) ResolveDownload(token string) (*NoticeDownload, error) {
	if s.deps.Signer == nil || s.deps.Files == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "notice downloads are not enabled")
	}
	_, rel, expiresAt, err := s.deps.Signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	file, err := s.deps.Files.Open(rel)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "notice file no longer available")
	}
	contentType := ContentTypeDOCX
	if strings.HasSuffix(rel, "."+string(models.NoticeFormatPDF)) {
		contentType = ContentTypePDF
	}
	return &NoticeDownload{File: file, Filename: filepath.Base(rel), ContentType: contentType, ExpiresAt: expiresAt}, nil
}
