package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/internal/service"
	"github.com/noah-isme/sma-substitute-api/pkg/response"
)

type snapshotReader interface {
	Current() (*models.Snapshot, error)
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics *service.MetricsService
	current snapshotReader
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(metrics *service.MetricsService, current snapshotReader) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, current: current}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health responds with a generic OK payload for liveness checks.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports ready once a timetable snapshot is being served.
func (h *MetricsHandler) Ready(c *gin.Context) {
	if h.current == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}
	snapshot, err := h.current.Current()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "waiting for timetable import"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "snapshot_version": snapshot.Version})
}

// Status returns aggregated counters as JSON.
func (h *MetricsHandler) Status(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot())
}
