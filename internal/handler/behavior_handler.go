package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/house-points-api/internal/models"
	"github.com/noah-isme/house-points-api/internal/service"
	"github.com/noah-isme/house-points-api/pkg/response"
	"github.com/noah-isme/house-points-api/pkg/timeutil"
)

type behaviorService interface {
	List(ctx context.Context, req service.BehaviorListRequest) ([]models.BehaviorEvent, *models.Pagination, error)
	Create(ctx context.Context, req service.CreateBehaviorEventRequest, actorID string) (*models.BehaviorEvent, error)
}

// BehaviorHandler exposes the merit/demerit event log.
type BehaviorHandler struct {
	service behaviorService
}

// NewBehaviorHandler constructs the handler.
func NewBehaviorHandler(service behaviorService) *BehaviorHandler {
	return &BehaviorHandler{service: service}
}

// List godoc
// @Summary List behaviour events
// @Tags Behavior
// @Produce json
// @Param student_id query string false "Student ID"
// @Param date_from query string false "From date (YYYY-MM-DD)"
// @Param date_to query string false "To date (YYYY-MM-DD)"
// @Param kind query string false "merit or demerit, comma separated"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /behavior-events [get]
func (h *BehaviorHandler) List(c *gin.Context) {
	from, err := queryDate(c, "date_from")
	if err != nil {
		response.Error(c, err)
		return
	}
	to, err := queryDate(c, "date_to")
	if err != nil {
		response.Error(c, err)
		return
	}
	if to != nil {
		end := timeutil.EndOfDay(*to)
		to = &end
	}
	events, pagination, err := h.service.List(c.Request.Context(), service.BehaviorListRequest{
		StudentID: c.Query("student_id"),
		DateFrom:  from,
		DateTo:    to,
		Kinds:     queryList(c, "kind"),
		Page:      queryInt(c, "page"),
		PageSize:  queryInt(c, "page_size"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, pagination)
}

// Create godoc
// @Summary Record a merit or demerit
// @Tags Behavior
// @Accept json
// @Produce json
// @Param payload body service.CreateBehaviorEventRequest true "Behaviour event"
// @Success 201 {object} response.Envelope
// @Router /behavior-events [post]
func (h *BehaviorHandler) Create(c *gin.Context) {
	claims, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.CreateBehaviorEventRequest
	if !bindJSON(c, &req, "invalid behavior event payload") {
		return
	}
	event, err := h.service.Create(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}
