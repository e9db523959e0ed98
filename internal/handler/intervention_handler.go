package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/house-points-api/internal/models"
	"github.com/noah-isme/house-points-api/internal/service"
	"github.com/noah-isme/house-points-api/pkg/response"
)

type interventionService interface {
	CreateLevelA(ctx context.Context, req service.CreateLevelARequest, actorID string) (*service.LevelAResult, error)
	GetLevelA(ctx context.Context, id string) (*models.LevelAIntervention, error)

	CreateLevelB(ctx context.Context, req service.CreateLevelBRequest, actorID string) (*models.LevelBIntervention, error)
	GetLevelB(ctx context.Context, id string) (*models.LevelBIntervention, error)
	CompleteLevelBStep(ctx context.Context, id string, step int, req service.LevelBStepRequest, actorID string) (*models.LevelBIntervention, error)
	RecordLevelBDailyRate(ctx context.Context, id string, req service.DailyRateRequest, actorID string) (*models.LevelBIntervention, error)
	CloseLevelBMonitoring(ctx context.Context, id string, req service.CloseLevelBRequest, actorID string) (*service.LevelBCloseResult, error)
	CancelLevelB(ctx context.Context, id string, req service.CancelRequest, actorID string) (*models.LevelBIntervention, error)

	CreateLevelC(ctx context.Context, req service.CreateLevelCRequest, actorID string) (*models.LevelCCase, error)
	GetLevelC(ctx context.Context, id string) (*models.LevelCCase, error)
	SubmitContextPacket(ctx context.Context, id string, req service.ContextPacketRequest, actorID string) (*models.LevelCCase, error)
	RecordAdminResponse(ctx context.Context, id string, req service.AdminResponseRequest, actorID string) (*models.LevelCCase, error)
	SubmitSupportPlan(ctx context.Context, id string, req service.SupportPlanRequest, actorID string) (*models.LevelCCase, error)
	UpdateLevelCChecklistItem(ctx context.Context, id string, index int, req service.ChecklistItemRequest, actorID string) (*models.LevelCCase, error)
	StartLevelCMonitoring(ctx context.Context, id string, req service.StartMonitoringRequest, actorID string) (*models.LevelCCase, error)
	LogLevelCCheckIn(ctx context.Context, id string, req service.CheckInRequest, actorID string) (*models.LevelCCase, error)
	CloseLevelC(ctx context.Context, id string, req service.CloseLevelCRequest, actorID string) (*models.LevelCCase, error)
}

// InterventionHandler exposes the Level A/B/C state machines.
type InterventionHandler struct {
	service interventionService
}

// NewInterventionHandler constructs the handler.
func NewInterventionHandler(service interventionService) *InterventionHandler {
	return &InterventionHandler{service: service}
}

// mutate binds the body into req, runs call with the actor id and writes status with the result.
func mutate[Req any, Resp any](c *gin.Context, status int, call func(ctx context.Context, req Req, actorID string) (Resp, error)) {
	claims, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req Req
	if c.Request.ContentLength != 0 && !bindJSON(c, &req, "invalid payload") {
		return
	}
	result, err := call(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, status, result, nil)
}

// CreateLevelA godoc
// @Summary Log a Level A classroom intervention
// @Description Evaluates the A→B escalation rules and opens a Level B conference when one fires.
// @Tags Interventions
// @Accept json
// @Produce json
// @Param payload body service.CreateLevelARequest true "Level A record"
// @Success 201 {object} response.Envelope
// @Router /interventions/level-a [post]
func (h *InterventionHandler) CreateLevelA(c *gin.Context) {
	mutate(c, http.StatusCreated, h.service.CreateLevelA)
}

// GetLevelA godoc
// @Summary Get a Level A record
// @Tags Interventions
// @Produce json
// @Param id path string true "Level A ID"
// @Success 200 {object} response.Envelope
// @Router /interventions/level-a/{id} [get]
func (h *InterventionHandler) GetLevelA(c *gin.Context) {
	record, err := h.service.GetLevelA(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// CreateLevelB godoc
// @Summary Open a Level B reset conference
// @Tags Interventions
// @Accept json
// @Produce json
// @Param payload body service.CreateLevelBRequest true "Level B record"
// @Success 201 {object} response.Envelope
// @Router /interventions/level-b [post]
func (h *InterventionHandler) CreateLevelB(c *gin.Context) {
	mutate(c, http.StatusCreated, h.service.CreateLevelB)
}

// GetLevelB godoc
// @Summary Get a Level B conference
// @Tags Interventions
// @Produce json
// @Param id path string true "Level B ID"
// @Success 200 {object} response.Envelope
// @Router /interventions/level-b/{id} [get]
func (h *InterventionHandler) GetLevelB(c *gin.Context) {
	record, err := h.service.GetLevelB(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// CompleteLevelBStep godoc
// @Summary Complete one of the seven conference steps
// @Tags Interventions
// @Accept json
// @Produce json
// @Param id path string true "Level B ID"
// @Param step path int true "Step number (1-7)"
// @Param payload body service.LevelBStepRequest true "Step payload"
// @Success 200 {object} response.Envelope
// @Router /interventions/level-b/{id}/steps/{step} [post]
func (h *InterventionHandler) CompleteLevelBStep(c *gin.Context) {
	step, ok := intParam(c, "step")
	if !ok {
		return
	}
	id := c.Param("id")
	mutate(c, http.StatusOK, func(ctx context.Context, req service.LevelBStepRequest, actorID string) (*models.LevelBIntervention, error) {
		return h.service.CompleteLevelBStep(ctx, id, step, req, actorID)
	})
}

// RecordLevelBDailyRate godoc
// @Summary Record a monitoring day success rate
// @Tags Interventions
// @Accept json
// @Produce json
// @Param id path string true "Level B ID"
// @Param payload body service.DailyRateRequest true "Daily rate"
// @Success 200 {object} response.Envelope
// @Router /interventions/level-b/{id}/daily-rates [post]
func (h *InterventionHandler) RecordLevelBDailyRate(c *gin.Context) {
	id := c.Param("id")
	mutate(c, http.StatusOK, func(ctx context.Context, req service.DailyRateRequest, actorID string) (*models.LevelBIntervention, error) {
		return h.service.RecordLevelBDailyRate(ctx, id, req, actorID)
	})
}

// CloseLevelB godoc
// @Summary Close Level B monitoring, optionally escalating to Level C
// @Tags Interventions
// @Accept json
// @Produce json
// @Param id path string true "Level B ID"
// @Param payload body service.CloseLevelBRequest true "Close payload"
// @Success 200 {object} response.Envelope
// @Router /interventions/level-b/{id}/close [post]
func (h *InterventionHandler) CloseLevelB(c *gin.Context) {
	id := c.Param("id")
	mutate(c, http.StatusOK, func(ctx context.Context, req service.CloseLevelBRequest, actorID string) (*service.LevelBCloseResult, error) {
		return h.service.CloseLevelBMonitoring(ctx, id, req, actorID)
	})
}

// CancelLevelB godoc
// @Summary Cancel an open Level B conference
// @Tags Interventions
// @Accept json
// @Produce json
// @Param id path string true "Level B ID"
// @Param payload body service.CancelRequest true "Cancel reason"
// @Success 200 {object} response.Envelope
// @Router /interventions/level-b/{id}/cancel [post]
func (h *InterventionHandler) CancelLevelB(c *gin.Context) {
	id := c.Param("id")
	mutate(c, http.StatusOK, func(ctx context.Context, req service.CancelRequest, actorID string) (*models.LevelBIntervention, error) {
		return h.service.CancelLevelB(ctx, id, req, actorID)
	})
}

// CreateLevelC godoc
// @Summary Open a Level C case
// @Tags Interventions
// @Accept json
// @Produce json
// @Param payload body service.CreateLevelCRequest true "Level C case"
// @Success 201 {object} response.Envelope
// @Router /interventions/level-c [post]
func (h *InterventionHandler) CreateLevelC(c *gin.Context) {
	mutate(c, http.StatusCreated, h.service.CreateLevelC)
}

// GetLevelC godoc
// @Summary Get a Level C case
// @Tags Interventions
// @Produce json
// @Param id path string true "Level C ID"
// @Success 200 {object} response.Envelope
// @Router /interventions/level-c/{id} [get]
func (h *InterventionHandler) GetLevelC(c *gin.Context) {
	record, err := h.service.GetLevelC(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// SubmitContextPacket godoc
// @Summary Submit the case context packet
// @Tags Interventions
// @Accept json
// @Produce json
// @Param id path string true "Level C ID"
// @Param payload body service.ContextPacketRequest true "Context packet"
// @Success 200 {object} response.Envelope
// @Router /interventions/level-c/{id}/context-packet [post]
func (h *InterventionHandler) SubmitContextPacket(c *gin.Context) {
	id := c.Param("id")
	mutate(c, http.StatusOK, func(ctx context.Context, req service.ContextPacketRequest, actorID string) (*models.LevelCCase, error) {
		return h.service.SubmitContextPacket(ctx, id, req, actorID)
	})
}

// RecordAdminResponse godoc
// @Summary Record the administrative response
// @Tags Interventions
// @Accept json
// @Produce json
// @Param id path string true "Level C ID"
// @Param payload body service.AdminResponseRequest true "Admin response"
// @Success 200 {object} response.Envelope
// @Router /interventions/level-c/{id}/admin-response [post]
func (h *InterventionHandler) RecordAdminResponse(c *gin.Context) {
	id := c.Param("id")
	mutate(c, http.StatusOK, func(ctx context.Context, req service.AdminResponseRequest, actorID string) (*models.LevelCCase, error) {
		return h.service.RecordAdminResponse(ctx, id, req, actorID)
	})
}

// SubmitSupportPlan godoc
// @Summary Submit the support plan and re-entry checklist
// @Tags Interventions
// @Accept json
// @Produce json
// @Param id path string true "Level C ID"
// @Param payload body service.SupportPlanRequest true "Support plan"
// @Success 200 {object} response.Envelope
// @Router /interventions/level-c/{id}/support-plan [post]
func (h *InterventionHandler) SubmitSupportPlan(c *gin.Context) {
	id := c.Param("id")
	mutate(c, http.StatusOK, func(ctx context.Context, req service.SupportPlanRequest, actorID string) (*models.LevelCCase, error) {
		return h.service.SubmitSupportPlan(ctx, id, req, actorID)
	})
}

// UpdateLevelCChecklistItem godoc
// @Summary Mark a case re-entry checklist item
// @Tags Interventions
// @Accept json
// @Produce json
// @Param id path string true "Level C ID"
// @Param index path int true "Checklist index"
// @Param payload body service.ChecklistItemRequest true "Checklist update"
// @Success 200 {object} response.Envelope
// @Router /interventions/level-c/{id}/checklist/{index} [post]
func (h *InterventionHandler) UpdateLevelCChecklistItem(c *gin.Context) {
	index, ok := intParam(c, "index")
	if !ok {
		return
	}
	id := c.Param("id")
	mutate(c, http.StatusOK, func(ctx context.Context, req service.ChecklistItemRequest, actorID string) (*models.LevelCCase, error) {
		return h.service.UpdateLevelCChecklistItem(ctx, id, index, req, actorID)
	})
}

// StartLevelCMonitoring godoc
// @Summary Start case monitoring
// @Tags Interventions
// @Accept json
// @Produce json
// @Param id path string true "Level C ID"
// @Param payload body service.StartMonitoringRequest false "Monitoring window"
// @Success 200 {object} response.Envelope
// @Router /interventions/level-c/{id}/monitoring [post]
func (h *InterventionHandler) StartLevelCMonitoring(c *gin.Context) {
	id := c.Param("id")
	mutate(c, http.StatusOK, func(ctx context.Context, req service.StartMonitoringRequest, actorID string) (*models.LevelCCase, error) {
		return h.service.StartLevelCMonitoring(ctx, id, req, actorID)
	})
}

// LogLevelCCheckIn godoc
// @Summary Log a monitoring check-in
// @Tags Interventions
// @Accept json
// @Produce json
// @Param id path string true "Level C ID"
// @Param payload body service.CheckInRequest true "Check-in"
// @Success 200 {object} response.Envelope
// @Router /interventions/level-c/{id}/check-ins [post]
func (h *InterventionHandler) LogLevelCCheckIn(c *gin.Context) {
	id := c.Param("id")
	mutate(c, http.StatusOK, func(ctx context.Context, req service.CheckInRequest, actorID string) (*models.LevelCCase, error) {
		return h.service.LogLevelCCheckIn(ctx, id, req, actorID)
	})
}

// CloseLevelC godoc
// @Summary Close a Level C case
// @Tags Interventions
// @Accept json
// @Produce json
// @Param id path string true "Level C ID"
// @Param payload body service.CloseLevelCRequest true "Outcome"
// @Success 200 {object} response.Envelope
// @Router /interventions/level-c/{id}/close [post]
func (h *InterventionHandler) CloseLevelC(c *gin.Context) {
	id := c.Param("id")
	mutate(c, http.StatusOK, func(ctx context.Context, req service.CloseLevelCRequest, actorID string) (*models.LevelCCase, error) {
		return h.service.CloseLevelC(ctx, id, req, actorID)
	})
}
