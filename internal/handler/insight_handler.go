package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/house-points-api/internal/models"
	"github.com/noah-isme/house-points-api/pkg/response"
)

type insightService interface {
	RecomputeStudent(ctx context.Context, studentID string, today time.Time) (*models.InsightResult, error)
	RecomputeActive(ctx context.Context, today time.Time) (*models.RecomputeResult, error)
	StudentInsights(ctx context.Context, studentID string) (*models.StudentInsights, error)
	AtRisk(ctx context.Context, window models.InsightWindow, levels []models.RiskLevel) ([]models.StudentInsightSnapshot, error)
}

// InsightHandler exposes the derived insight snapshots and pattern tags.
type InsightHandler struct {
	service insightService
}

// NewInsightHandler constructs the handler.
func NewInsightHandler(service insightService) *InsightHandler {
	return &InsightHandler{service: service}
}

// RecomputeAll godoc
// @Summary Recompute insights for every active student
// @Tags Insights
// @Produce json
// @Param date query string false "Reference day (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /insights/recompute [post]
func (h *InsightHandler) RecomputeAll(c *gin.Context) {
	day, err := queryDate(c, "date")
	if err != nil {
		response.Error(c, err)
		return
	}
	var today time.Time
	if day != nil {
		today = *day
	}
	result, err := h.service.RecomputeActive(c.Request.Context(), today)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// RecomputeStudent godoc
// @Summary Recompute insights for one student
// @Tags Insights
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /insights/students/{id}/recompute [post]
func (h *InsightHandler) RecomputeStudent(c *gin.Context) {
	result, err := h.service.RecomputeStudent(c.Request.Context(), c.Param("id"), time.Time{})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Student godoc
// @Summary Stored insight snapshots and patterns for a student
// @Tags Insights
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /insights/students/{id} [get]
func (h *InsightHandler) Student(c *gin.Context) {
	insights, err := h.service.StudentInsights(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, insights, nil)
}

// AtRisk godoc
// @Summary Students flagged red or yellow
// @Tags Insights
// @Produce json
// @Param window query string false "7d or 30d"
// @Param level query string false "Risk levels, comma separated"
// @Success 200 {object} response.Envelope
// @Router /insights/at-risk [get]
func (h *InsightHandler) AtRisk(c *gin.Context) {
	var levels []models.RiskLevel
	for _, l := range queryList(c, "level") {
		levels = append(levels, models.RiskLevel(l))
	}
	snapshots, err := h.service.AtRisk(c.Request.Context(), models.InsightWindow(c.Query("window")), levels)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshots, nil, map[string]interface{}{"count": len(snapshots)})
}
