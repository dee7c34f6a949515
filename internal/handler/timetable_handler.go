package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-substitute-api/internal/dto"
	"github.com/noah-isme/sma-substitute-api/internal/middleware"
	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/internal/service"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
	"github.com/noah-isme/sma-substitute-api/pkg/response"
)

const maxImportFileSize = 8 << 20

type timetableService interface {
	Import(ctx context.Context, assignments []models.AssignmentRecord, timetable []models.TimetableRecord, persist bool) (*models.Snapshot, error)
	Rebuild(ctx context.Context) (*models.Snapshot, error)
	Summary() (models.SnapshotSummary, error)
	Teachers() ([]string, error)
	Classes() ([]string, error)
	TeacherSchedule(name string) (*dto.ScheduleGrid, error)
	ClassSchedule(classID string) (*dto.ScheduleGrid, error)
}

type availabilityService interface {
	Available(ctx context.Context, slot models.Slot) (*dto.AvailabilityResponse, bool, error)
}

type scheduleExporter interface {
	Export(kind, name, format string) (*service.ExportResult, error)
}

// TimetableHandler exposes timetable import, lookup and availability endpoints.
type TimetableHandler struct {
	timetable    timetableService
	availability availabilityService
	exporter     scheduleExporter
	validate     *validator.Validate
	location     *time.Location
	now          func() time.Time
}

// NewTimetableHandler constructs the handler. location resolves week dates; nil means local time.
func NewTimetableHandler(timetable timetableService, availability availabilityService, exporter scheduleExporter, location *time.Location) *TimetableHandler {
	if location == nil {
		location = time.Local
	}
	return &TimetableHandler{
		timetable:    timetable,
		availability: availability,
		exporter:     exporter,
		validate:     validator.New(),
		location:     location,
		now:          time.Now,
	}
}

// Import godoc
// @Summary Import timetable CSV files
// @Description Builds a new snapshot from an assignment table and a master timetable
// @Tags Timetable
// @Accept multipart/form-data
// @Produce json
// @Param assignments formData file true "Assignment CSV"
// @Param timetable formData file true "Timetable CSV"
// @Param class_id formData string false "Class id for files without a class column"
// @Param persist formData bool false "Store the records for later rebuilds"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /timetable/import [post]
func (h *TimetableHandler) Import(c *gin.Context) {
	classID := strings.TrimSpace(c.PostForm("class_id"))
	persist, _ := strconv.ParseBool(c.DefaultPostForm("persist", "false"))

	assignmentFile, err := formFile(c, "assignments")
	if err != nil {
		response.Error(c, err)
		return
	}
	defer assignmentFile.Close()
	timetableFile, err := formFile(c, "timetable")
	if err != nil {
		response.Error(c, err)
		return
	}
	defer timetableFile.Close()

	assignments, err := service.DecodeAssignments(io.LimitReader(assignmentFile, maxImportFileSize), classID)
	if err != nil {
		response.Error(c, err)
		return
	}
	timetable, err := service.DecodeTimetable(io.LimitReader(timetableFile, maxImportFileSize), classID)
	if err != nil {
		response.Error(c, err)
		return
	}

	snapshot, err := h.timetable.Import(c.Request.Context(), assignments, timetable, persist)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, snapshot.Summary())
}

func formFile(c *gin.Context, field string) (multipart.File, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s file is required", field))
	}
	file, err := header.Open()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open uploaded file")
	}
	return file, nil
}

// ImportJSON godoc
// @Summary Import timetable records as JSON
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.ImportTimetableRequest true "Records"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /timetable/import/json [post]
func (h *TimetableHandler) ImportJSON(c *gin.Context) {
	var req dto.ImportTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var missing *dto.MissingFieldError
		if errors.As(err, &missing) {
			response.Error(c, appErrors.Clone(appErrors.ErrStructuralInput, missing.Error()))
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid import payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "assignments and timetable are required"))
		return
	}
	snapshot, err := h.timetable.Import(c.Request.Context(), req.Assignments, req.Timetable, req.Persist)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, snapshot.Summary())
}

// Rebuild godoc
// @Summary Rebuild the snapshot from stored records
// @Tags Timetable
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /timetable/rebuild [post]
func (h *TimetableHandler) Rebuild(c *gin.Context) {
	snapshot, err := h.timetable.Rebuild(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshot.Summary())
}

// Snapshot godoc
// @Summary Describe the active snapshot
// @Tags Timetable
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable/snapshot [get]
func (h *TimetableHandler) Snapshot(c *gin.Context) {
	summary, err := h.timetable.Summary()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary)
}

// Teachers godoc
// @Summary List teachers
// @Tags Timetable
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /timetable/teachers [get]
func (h *TimetableHandler) Teachers(c *gin.Context) {
	names, err := h.timetable.Teachers()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, names)
}

// TeacherSchedule godoc
// @Summary Week grid of a teacher
// @Tags Timetable
// @Produce json
// @Param name path string true "Teacher name"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable/teachers/{name} [get]
func (h *TimetableHandler) TeacherSchedule(c *gin.Context) {
	grid, err := h.timetable.TeacherSchedule(c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grid)
}

// Classes godoc
// @Summary List classes
// @Tags Timetable
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /timetable/classes [get]
func (h *TimetableHandler) Classes(c *gin.Context) {
	ids, err := h.timetable.Classes()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ids)
}

// ClassSchedule godoc
// @Summary Week grid of a class
// @Tags Timetable
// @Produce json
// @Param id path string true "Class id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable/classes/{id} [get]
func (h *TimetableHandler) ClassSchedule(c *gin.Context) {
	grid, err := h.timetable.ClassSchedule(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grid)
}

// Availability godoc
// @Summary Teachers free at a slot
// @Description Lists teachers with no lesson at the slot, in roster order. An out-of-grid slot yields an empty list.
// @Tags Timetable
// @Produce json
// @Param day query int true "School day, 1 = Monday"
// @Param period query int true "Period"
// @Success 200 {object} response.Envelope
// @Router /timetable/availability [get]
func (h *TimetableHandler) Availability(c *gin.Context) {
	var query dto.AvailabilityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "day and period must be integers"))
		return
	}
	resp, hit, err := h.availability.Available(c.Request.Context(), models.Slot{Day: query.Day, Period: query.Period})
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, resp, middleware.ExtractMeta(c))
}

// Week godoc
// @Summary Dates of the school week
// @Tags Timetable
// @Produce json
// @Param date query string false "Reference date YYYY-MM-DD, default today"
// @Success 200 {object} response.Envelope
// @Router /timetable/week [get]
func (h *TimetableHandler) Week(c *gin.Context) {
	ref := h.now().In(h.location)
	if raw := strings.TrimSpace(c.Query("date")); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, h.location)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
			return
		}
		ref = parsed
	}
	response.JSON(c, http.StatusOK, dto.WeekResponse{
		ReferenceDate: ref.Format("2006-01-02"),
		Monday:        service.WeekStart(ref).Format("2006-01-02"),
		Dates:         service.WeekOf(ref),
	})
}

// Export godoc
// @Summary Download a teacher or class week grid
// @Tags Timetable
// @Produce octet-stream
// @Param kind path string true "teacher or class"
// @Param name path string true "Teacher name or class id"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} binary
// @Router /timetable/export/{kind}/{name} [get]
func (h *TimetableHandler) Export(c *gin.Context) {
	result, err := h.exporter.Export(c.Param("kind"), c.Param("name"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", contentDisposition(result.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, result.ContentType, result.Data)
}
