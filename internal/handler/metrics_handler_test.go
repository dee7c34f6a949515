package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/internal/service"
)

func newGinContext(method, target string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, nil)
	return c, w
}

func TestReadyWaitsForSnapshot(t *testing.T) {
	handler := NewMetricsHandler(service.NewMetricsService(), currentSnapshotStub{})
	c, w := newGinContext(http.MethodGet, "/ready")
	handler.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	handler = NewMetricsHandler(service.NewMetricsService(), currentSnapshotStub{snapshot: &models.Snapshot{Version: 4}})
	c, w = newGinContext(http.MethodGet, "/ready")
	handler.Ready(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"snapshot_version":4`)
}

func TestPrometheusEndpoint(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordNotice(models.ChangeKindSwap, models.NoticeFormatPDF)
	handler := NewMetricsHandler(metrics, nil)

	c, w := newGinContext(http.MethodGet, "/metrics")
	handler.Prometheus(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `notices_generated_total{format="pdf",kind="SWAP"} 1`)

	c, w = newGinContext(http.MethodGet, "/status")
	handler.Status(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"notices_generated":1`)
}

func TestPrometheusWithoutMetrics(t *testing.T) {
	handler := NewMetricsHandler(nil, nil)
	c, w := newGinContext(http.MethodGet, "/metrics")
	handler.Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	c, w = newGinContext(http.MethodGet, "/ready")
	handler.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)
}
