package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/house-points-api/internal/middleware"
	"github.com/noah-isme/house-points-api/internal/models"
	"github.com/noah-isme/house-points-api/pkg/response"
)

type analyticsService interface {
	ResolveRange(start, end *time.Time) (models.AnalyticsRange, error)
	Dashboard(ctx context.Context, r models.AnalyticsRange, limit int) (*models.InterventionDashboard, bool, error)
	SystemMetrics() models.SystemMetrics
	InvalidateCache(ctx context.Context) error
}

// AnalyticsHandler exposes intervention dashboard endpoints.
type AnalyticsHandler struct {
	analytics analyticsService
}

// NewAnalyticsHandler constructs the analytics handler.
func NewAnalyticsHandler(analytics analyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Dashboard godoc
// @Summary Intervention dashboard
// @Tags Analytics
// @Produce json
// @Param start query string false "Range start (YYYY-MM-DD)"
// @Param end query string false "Range end (YYYY-MM-DD)"
// @Param limit query int false "Activity feed size"
// @Success 200 {object} response.Envelope
// @Router /analytics/interventions [get]
func (h *AnalyticsHandler) Dashboard(c *gin.Context) {
	start := time.Now()
	from, err := queryDate(c, "start")
	if err != nil {
		response.Error(c, err)
		return
	}
	to, err := queryDate(c, "end")
	if err != nil {
		response.Error(c, err)
		return
	}
	r, err := h.analytics.ResolveRange(from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	dashboard, cacheHit, err := h.analytics.Dashboard(c.Request.Context(), r, queryInt(c, "limit"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	middleware.MarkProcessed(c, start)
	response.JSON(c, http.StatusOK, dashboard, nil, middleware.ExtractMeta(c))
}

// System godoc
// @Summary Process counters for operators
// @Tags Analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /analytics/system [get]
func (h *AnalyticsHandler) System(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.analytics.SystemMetrics(), nil)
}

// InvalidateCache godoc
// @Summary Drop cached dashboards and digests
// @Tags Analytics
// @Success 204
// @Router /analytics/cache [delete]
func (h *AnalyticsHandler) InvalidateCache(c *gin.Context) {
	if err := h.analytics.InvalidateCache(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
