package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/house-points-api/internal/models"
	"github.com/noah-isme/house-points-api/internal/service"
	appErrors "github.com/noah-isme/house-points-api/pkg/errors"
	"github.com/noah-isme/house-points-api/pkg/response"
)

type reentryService interface {
	GenerateTeacherScript(goal string) string
	CreateReentryProtocol(ctx context.Context, req service.CreateReentryRequest, actorID string) (*models.ReentryProtocol, error)
	Get(ctx context.Context, id string) (*models.ReentryProtocol, error)
	List(ctx context.Context, req service.ReentryListRequest) ([]models.ReentryProtocol, *models.Pagination, error)
	UpdateChecklistItem(ctx context.Context, id string, index int, req service.ChecklistItemRequest, actorID string) (*models.ReentryProtocol, error)
	ActivateReentry(ctx context.Context, id, actorID string) (*models.ReentryProtocol, error)
	LogDailyEntry(ctx context.Context, id string, req service.DailyLogRequest, actorID string) (*models.ReentryProtocol, error)
	CompleteReentry(ctx context.Context, id string, req service.CompleteReentryRequest, actorID string) (*models.ReentryProtocol, error)
}

// ReentryHandler exposes re-entry protocol endpoints.
type ReentryHandler struct {
	service reentryService
}

// NewReentryHandler constructs the handler.
func NewReentryHandler(service reentryService) *ReentryHandler {
	return &ReentryHandler{service: service}
}

// Create godoc
// @Summary Create a re-entry protocol
// @Tags Reentry
// @Accept json
// @Produce json
// @Param payload body service.CreateReentryRequest true "Protocol"
// @Success 201 {object} response.Envelope
// @Router /reentry [post]
func (h *ReentryHandler) Create(c *gin.Context) {
	mutate(c, http.StatusCreated, h.service.CreateReentryProtocol)
}

// List godoc
// @Summary List re-entry protocols
// @Tags Reentry
// @Produce json
// @Param student_id query string false "Student ID"
// @Param status query string false "Statuses, comma separated"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /reentry [get]
func (h *ReentryHandler) List(c *gin.Context) {
	protocols, pagination, err := h.service.List(c.Request.Context(), service.ReentryListRequest{
		StudentID: c.Query("student_id"),
		Statuses:  queryList(c, "status"),
		Page:      queryInt(c, "page"),
		PageSize:  queryInt(c, "page_size"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, protocols, pagination)
}

// Get godoc
// @Summary Get a re-entry protocol
// @Tags Reentry
// @Produce json
// @Param id path string true "Protocol ID"
// @Success 200 {object} response.Envelope
// @Router /reentry/{id} [get]
func (h *ReentryHandler) Get(c *gin.Context) {
	protocol, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, protocol, nil)
}

// Script godoc
// @Summary Render the teacher welcome-back script for a goal
// @Tags Reentry
// @Produce json
// @Param goal query string true "Reset goal"
// @Success 200 {object} response.Envelope
// @Router /reentry/script [get]
func (h *ReentryHandler) Script(c *gin.Context) {
	goal := strings.TrimSpace(c.Query("goal"))
	if goal == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "goal is required"))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"script": h.service.GenerateTeacherScript(goal)}, nil)
}

// UpdateChecklistItem godoc
// @Summary Mark a readiness checklist item
// @Tags Reentry
// @Accept json
// @Produce json
// @Param id path string true "Protocol ID"
// @Param index path int true "Checklist index"
// @Param payload body service.ChecklistItemRequest true "Checklist update"
// @Success 200 {object} response.Envelope
// @Router /reentry/{id}/checklist/{index} [post]
func (h *ReentryHandler) UpdateChecklistItem(c *gin.Context) {
	index, ok := intParam(c, "index")
	if !ok {
		return
	}
	id := c.Param("id")
	mutate(c, http.StatusOK, func(ctx context.Context, req service.ChecklistItemRequest, actorID string) (*models.ReentryProtocol, error) {
		return h.service.UpdateChecklistItem(ctx, id, index, req, actorID)
	})
}

// Activate godoc
// @Summary Activate a ready protocol on the re-entry day
// @Tags Reentry
// @Produce json
// @Param id path string true "Protocol ID"
// @Success 200 {object} response.Envelope
// @Router /reentry/{id}/activate [post]
func (h *ReentryHandler) Activate(c *gin.Context) {
	claims, ok := actorFromContext(c)
	if !ok {
		return
	}
	protocol, err := h.service.ActivateReentry(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, protocol, nil)
}

// LogDailyEntry godoc
// @Summary Append a monitoring log entry
// @Tags Reentry
// @Accept json
// @Produce json
// @Param id path string true "Protocol ID"
// @Param payload body service.DailyLogRequest true "Daily log"
// @Success 200 {object} response.Envelope
// @Router /reentry/{id}/logs [post]
func (h *ReentryHandler) LogDailyEntry(c *gin.Context) {
	id := c.Param("id")
	mutate(c, http.StatusOK, func(ctx context.Context, req service.DailyLogRequest, actorID string) (*models.ReentryProtocol, error) {
		return h.service.LogDailyEntry(ctx, id, req, actorID)
	})
}

// Complete godoc
// @Summary Complete a protocol with an outcome
// @Tags Reentry
// @Accept json
// @Produce json
// @Param id path string true "Protocol ID"
// @Param payload body service.CompleteReentryRequest true "Outcome"
// @Success 200 {object} response.Envelope
// @Router /reentry/{id}/complete [post]
func (h *ReentryHandler) Complete(c *gin.Context) {
	id := c.Param("id")
	mutate(c, http.StatusOK, func(ctx context.Context, req service.CompleteReentryRequest, actorID string) (*models.ReentryProtocol, error) {
		return h.service.CompleteReentry(ctx, id, req, actorID)
	})
}
