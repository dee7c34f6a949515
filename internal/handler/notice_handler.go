package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-substitute-api/internal/dto"
	"github.com/noah-isme/sma-substitute-api/internal/middleware"
	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/internal/service"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
	"github.com/noah-isme/sma-substitute-api/pkg/response"
)

type noticeService interface {
	Plan(ctx context.Context, req dto.NoticeRequest) (*service.NoticePlan, error)
	Generate(ctx context.Context, req dto.NoticeRequest, actor string) (*dto.NoticeResponse, error)
	TemplateTags(ctx context.Context) ([]string, error)
	ResolveDownload(token string) (*service.NoticeDownload, error)
	History(ctx context.Context, limit int) ([]models.NoticeRecord, error)
	HistoryEntry(ctx context.Context, id string) (*models.NoticeRecord, error)
}

type noticeBatchService interface {
	Submit(ctx context.Context, req dto.BatchNoticeRequest, actor string) (*dto.BatchNoticeResponse, error)
	Status(id string) (*models.NoticeJob, error)
}

// NoticeHandler exposes substitution notice endpoints.
type NoticeHandler struct {
	notices noticeService
	batches noticeBatchService
}

// NewNoticeHandler constructs the handler.
func NewNoticeHandler(notices noticeService, batches noticeBatchService) *NoticeHandler {
	return &NoticeHandler{notices: notices, batches: batches}
}

// Preview godoc
// @Summary Resolve a notice without rendering it
// @Description Runs every check of notice generation and returns the tag values that would be filled
// @Tags Notices
// @Accept json
// @Produce json
// @Param payload body dto.NoticeRequest true "Selection"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /notices/preview [post]
func (h *NoticeHandler) Preview(c *gin.Context) {
	var req dto.NoticeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid notice payload"))
		return
	}
	plan, err := h.notices.Plan(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plan)
}

// Generate godoc
// @Summary Generate a substitution notice
// @Tags Notices
// @Accept json
// @Produce json
// @Param payload body dto.NoticeRequest true "Selection"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /notices [post]
func (h *NoticeHandler) Generate(c *gin.Context) {
	var req dto.NoticeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid notice payload"))
		return
	}
	resp, err := h.notices.Generate(c.Request.Context(), req, actorOf(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, resp)
}

// Batch godoc
// @Summary Queue several notices
// @Tags Notices
// @Accept json
// @Produce json
// @Param payload body dto.BatchNoticeRequest true "Selections"
// @Success 202 {object} response.Envelope
// @Router /notices/batch [post]
func (h *NoticeHandler) Batch(c *gin.Context) {
	var req dto.BatchNoticeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid batch payload"))
		return
	}
	resp, err := h.batches.Submit(c.Request.Context(), req, actorOf(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, resp)
}

// JobStatus godoc
// @Summary Status of a queued notice
// @Tags Notices
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /notices/jobs/{id} [get]
func (h *NoticeHandler) JobStatus(c *gin.Context) {
	job, err := h.batches.Status(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job)
}

// History godoc
// @Summary Recently issued notices
// @Tags Notices
// @Produce json
// @Param limit query int false "Maximum entries, default 50, at most 200"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /notices/history [get]
func (h *NoticeHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := h.notices.History(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records)
}

// HistoryEntry godoc
// @Summary One issued notice
// @Tags Notices
// @Produce json
// @Param id path string true "Notice ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /notices/history/{id} [get]
func (h *NoticeHandler) HistoryEntry(c *gin.Context) {
	record, err := h.notices.HistoryEntry(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record)
}

// TemplateTags godoc
// @Summary Placeholders found in the notice template
// @Tags Notices
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /notices/template/tags [get]
func (h *NoticeHandler) TemplateTags(c *gin.Context) {
	tags, err := h.notices.TemplateTags(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tags)
}

// Download godoc
// @Summary Download a notice via signed token
// @Tags Notices
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /notices/download [get]
func (h *NoticeHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.notices.ResolveDownload(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck

	info, err := result.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat notice"))
		return
	}
	c.Header("Content-Disposition", contentDisposition(result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), result.ContentType, result.File, nil)
}

func actorOf(c *gin.Context) string {
	if claims := middleware.Claims(c); claims != nil {
		return claims.Email
	}
	return ""
}

// contentDisposition carries both an ASCII fallback and the UTF-8 name, since notice names are CJK.
func contentDisposition(filename string) string {
	fallback := strings.Map(func(r rune) rune {
		if r > 0x7e || r < 0x20 || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, filename)
	return fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", fallback, url.PathEscape(filename))
}
