package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-substitute-api/internal/dto"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

func newTestExportService(t *testing.T) (*ExportService, *pdfStub) {
	t.Helper()
	timetable, _ := newTestTimetableService(nil, nil)
	_, err := timetable.Import(context.Background(), sampleAssignments(), sampleTimetable(), false)
	require.NoError(t, err)
	pdf := &pdfStub{}
	return NewExportService(timetable, nil, pdf), pdf
}

func TestExportServiceTeacherCSV(t *testing.T) {
	svc, _ := newTestExportService(t)

	result, err := svc.Export(dto.ScheduleKindTeacher, "王小明", "")
	require.NoError(t, err)
	assert.Equal(t, "teacher_王小明_v1.csv", result.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", result.ContentType)

	body := strings.TrimPrefix(string(result.Data), "\ufeff")
	lines := strings.Split(strings.TrimSpace(body), "\r\n")
	assert.Equal(t, "節次,一,二,三,四,五", lines[0])
	assert.Contains(t, body, "\"701\r\n國文\"")
}

func TestExportServiceClassPDF(t *testing.T) {
	svc, pdf := newTestExportService(t)

	result, err := svc.Export(dto.ScheduleKindClass, "701", "PDF")
	require.NoError(t, err)
	assert.Equal(t, "class_701_v1.pdf", result.Filename)
	assert.Equal(t, ContentTypePDF, result.ContentType)
	assert.Equal(t, "701", pdf.title)
	assert.Equal(t, "數學\n陳老師", pdf.dataset.Rows[0]["一"])
}

func TestExportServiceRejects(t *testing.T) {
	svc, _ := newTestExportService(t)

	_, err := svc.Export("room", "A", "csv")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Export(dto.ScheduleKindClass, "701", "xlsx")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Export(dto.ScheduleKindClass, "999", "csv")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "na", sanitizeFilename(""))
	assert.Equal(t, "a-b_c", sanitizeFilename("a/b c"))
	assert.Len(t, []rune(sanitizeFilename(strings.Repeat("王", 150))), 100)
}
