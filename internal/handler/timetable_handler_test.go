package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
	"github.com/noah-isme/sma-substitute-api/pkg/response"
)

func multipartImport(t *testing.T, files map[string]string, fields map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for field, content := range files {
		part, err := writer.CreateFormFile(field, field+".csv")
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/timetable/import", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer admin-token")
	return req
}

func decodeEnvelope(t *testing.T, body []byte, data interface{}) response.Envelope {
	t.Helper()
	var raw struct {
		Data  json.RawMessage        `json:"data"`
		Error *appErrors.Error       `json:"error"`
		Meta  map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(body, &raw))
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return response.Envelope{Error: raw.Error, Meta: raw.Meta}
}

func TestImportMultipart(t *testing.T) {
	f := newRouterFixture(t)

	req := multipartImport(t, map[string]string{
		"assignments": "科目,任課教師\n國文,王小明\n數學,陳老師\n",
		"timetable":   "科目,星期,節次\n國文,三,3\n數學,一,1\n",
	}, map[string]string{"class_id": "701", "persist": "true"})

	resp := performRequest(f.router, req)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var summary models.SnapshotSummary
	decodeEnvelope(t, resp.Body.Bytes(), &summary)
	assert.Equal(t, int64(3), summary.Version)
	assert.Equal(t, 2, summary.TeacherCount)
	assert.Equal(t, 2, f.timetable.importedAssignments)
	assert.Equal(t, 2, f.timetable.importedTimetable)
	assert.True(t, f.timetable.persist)
}

func TestImportMultipartRejectsMissingColumn(t *testing.T) {
	f := newRouterFixture(t)

	req := multipartImport(t, map[string]string{
		"assignments": "科目,任課教師\n國文,王小明\n",
		"timetable":   "科目,節次\n國文,3\n",
	}, map[string]string{"class_id": "701"})

	resp := performRequest(f.router, req)
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	env := decodeEnvelope(t, resp.Body.Bytes(), nil)
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrStructuralInput.Code, env.Error.Code)
	assert.Contains(t, env.Error.Message, "weekday")
}

func TestImportMultipartRequiresBothFiles(t *testing.T) {
	f := newRouterFixture(t)

	req := multipartImport(t, map[string]string{"assignments": "class,subject,teacher\n701,國文,王小明\n"}, nil)

	resp := performRequest(f.router, req)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "timetable file is required")
}

func TestImportJSON(t *testing.T) {
	f := newRouterFixture(t)

	payload := []byte(`{"assignments":[{"class_id":"701","subject":"國文","teacher_field":"王小明"}],
		"timetable":[{"class_id":"701","subject":"國文","weekday_token":"三","period_token":"3"}]}`)
	resp := performRequest(f.router, authorized(http.MethodPost, "/api/v1/timetable/import/json", "admin-token", payload))
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.Equal(t, 1, f.timetable.importedAssignments)

	resp = performRequest(f.router, authorized(http.MethodPost, "/api/v1/timetable/import/json", "admin-token", []byte(`{"assignments":[]}`)))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestImportJSONRejectsMissingFields(t *testing.T) {
	f := newRouterFixture(t)

	payload := []byte(`{"assignments":[{"class_id":"701","subject":"國文"}],
		"timetable":[{"class_id":"701","subject":"國文","weekday_token":"三","period_token":"3"}]}`)
	resp := performRequest(f.router, authorized(http.MethodPost, "/api/v1/timetable/import/json", "admin-token", payload))
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code, resp.Body.String())
	env := decodeEnvelope(t, resp.Body.Bytes(), nil)
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrStructuralInput.Code, env.Error.Code)
	assert.Contains(t, env.Error.Message, "teacher_field")
	assert.Zero(t, f.timetable.importedAssignments)

	// Present but blank values are data, not structure.
	payload = []byte(`{"assignments":[{"class_id":"701","subject":"國文","teacher_field":""}],
		"timetable":[{"class_id":"701","subject":"國文","weekday_token":"","period_token":"3"}]}`)
	resp = performRequest(f.router, authorized(http.MethodPost, "/api/v1/timetable/import/json", "admin-token", payload))
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.Equal(t, 1, f.timetable.importedTimetable)
}

func TestSnapshotBeforeImport(t *testing.T) {
	f := newRouterFixture(t)
	f.timetable.err = appErrors.ErrSnapshotUnavailable

	resp := performRequest(f.router, authorized(http.MethodGet, "/api/v1/timetable/snapshot", "operator-token", nil))
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Contains(t, resp.Body.String(), appErrors.ErrSnapshotUnavailable.Code)
}

func TestScheduleLookups(t *testing.T) {
	f := newRouterFixture(t)

	resp := performRequest(f.router, authorized(http.MethodGet, "/api/v1/timetable/teachers", "operator-token", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	var names []string
	decodeEnvelope(t, resp.Body.Bytes(), &names)
	assert.Equal(t, []string{"王小明", "陳老師"}, names)

	resp = performRequest(f.router, authorized(http.MethodGet, "/api/v1/timetable/teachers/"+url.PathEscape("王小明"), "operator-token", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"kind":"teacher"`)

	resp = performRequest(f.router, authorized(http.MethodGet, "/api/v1/timetable/teachers/nobody", "operator-token", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = performRequest(f.router, authorized(http.MethodGet, "/api/v1/timetable/classes/701", "operator-token", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"owner":"701"`)
}

func TestAvailabilityEndpoint(t *testing.T) {
	f := newRouterFixture(t)

	resp := performRequest(f.router, authorized(http.MethodGet, "/api/v1/timetable/availability?day=3&period=3", "operator-token", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, models.Slot{Day: 3, Period: 3}, f.avail.slot)

	env := decodeEnvelope(t, resp.Body.Bytes(), nil)
	assert.Equal(t, true, env.Meta["cache_hit"])
	assert.Contains(t, resp.Body.String(), `"teachers":["林老師","陳老師"]`)

	resp = performRequest(f.router, authorized(http.MethodGet, "/api/v1/timetable/availability?day=wed&period=3", "operator-token", nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestWeekEndpoint(t *testing.T) {
	f := newRouterFixture(t)

	resp := performRequest(f.router, authorized(http.MethodGet, "/api/v1/timetable/week", "operator-token", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"monday":"2026-02-09"`)
	assert.Contains(t, resp.Body.String(), `"dates":["115.02.09","115.02.10","115.02.11","115.02.12","115.02.13"]`)

	resp = performRequest(f.router, authorized(http.MethodGet, "/api/v1/timetable/week?date=2025-12-31", "operator-token", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"115.01.02"`)

	resp = performRequest(f.router, authorized(http.MethodGet, "/api/v1/timetable/week?date=31/12/2025", "operator-token", nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestExportEndpoint(t *testing.T) {
	f := newRouterFixture(t)

	resp := performRequest(f.router, authorized(http.MethodGet, "/api/v1/timetable/export/teacher/"+url.PathEscape("王小明"), "operator-token", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header().Get("Content-Type"))
	assert.Contains(t, resp.Header().Get("Content-Disposition"), "filename*=UTF-8''%E7%8E%8B")
	assert.Equal(t, "節次,一\n", resp.Body.String())
}

func TestContentDispositionFallback(t *testing.T) {
	got := contentDisposition(`陳老師 "notice".docx`)
	assert.Contains(t, got, `filename="___ _notice_.docx"`)
	assert.Contains(t, got, "filename*=UTF-8''")
}
