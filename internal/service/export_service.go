package service

import (
	"fmt"
	"strings"

	"github.com/noah-isme/sma-substitute-api/internal/dto"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
	"github.com/noah-isme/sma-substitute-api/pkg/export"
)

// Export formats for schedule grids.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type scheduleSource interface {
	TeacherSchedule(name string) (*dto.ScheduleGrid, error)
	ClassSchedule(classID string) (*dto.ScheduleGrid, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportResult is a rendered schedule file.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders teacher and class week grids as downloadable files.
type ExportService struct {
	schedules scheduleSource
	csv       csvRenderer
	pdf       noticePDFRenderer
}

// NewExportService constructs an ExportService.
func NewExportService(schedules scheduleSource, csv csvRenderer, pdf noticePDFRenderer) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter("")
	}
	return &ExportService{schedules: schedules, csv: csv, pdf: pdf}
}

// Export renders the grid of a teacher or class.
func (s *ExportService) Export(kind, name, format string) (*ExportResult, error) {
	var (
		grid *dto.ScheduleGrid
		err  error
	)
	switch kind {
	case dto.ScheduleKindTeacher:
		grid, err = s.schedules.TeacherSchedule(name)
	case dto.ScheduleKindClass:
		grid, err = s.schedules.ClassSchedule(name)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "export kind must be teacher or class")
	}
	if err != nil {
		return nil, err
	}

	dataset := GridDataset(grid)
	filename := fmt.Sprintf("%s_%s_v%d", kind, sanitizeFilename(grid.Owner), grid.SnapshotVersion)
	switch strings.ToLower(format) {
	case "", ExportFormatCSV:
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{Filename: filename + ".csv", ContentType: "text/csv; charset=utf-8", Data: data}, nil
	case ExportFormatPDF:
		data, err := s.pdf.Render(dataset, grid.Owner)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrCollaborator.Code, appErrors.ErrCollaborator.Status, "failed to render pdf")
		}
		return &ExportResult{Filename: filename + ".pdf", ContentType: ContentTypePDF, Data: data}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "export format must be csv or pdf")
	}
}

// GridDataset lays a schedule out as one row per period. Teacher grids show class and subject,
// class grids show subject and teachers.
func GridDataset(grid *dto.ScheduleGrid) export.Dataset {
	cells := make(map[string]string, len(grid.Cells))
	for _, cell := range grid.Cells {
		key := fmt.Sprintf("%d_%d", cell.Day, cell.Period)
		if grid.Kind == dto.ScheduleKindTeacher {
			cells[key] = cell.ClassID + "\n" + cell.Subject
		} else {
			cells[key] = cell.Subject + "\n" + cell.Teachers
		}
	}
	return export.WeekGrid{Periods: grid.Periods, Cells: cells}.Dataset()
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if runes := []rune(result); len(runes) > 100 {
		return string(runes[:100])
	}
	return result
}
