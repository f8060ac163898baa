package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/krs-admission-api/internal/models"
	"github.com/noah-isme/krs-admission-api/pkg/response"
)

type metricsSource interface {
	Handler() http.Handler
	Snapshot() models.SystemMetrics
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics metricsSource
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(metrics metricsSource) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

// Prometheus serves the Prometheus scrape endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Summary godoc
// @Summary Cache, request and admission queue summary
// @Tags Observability
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /metrics/summary [get]
func (h *MetricsHandler) Summary(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	response.JSON(c, http.StatusOK, h.metrics.Snapshot())
}

// Health responds with a generic OK payload for readiness/liveness usage.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
