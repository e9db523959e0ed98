package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/house-points-api/internal/models"
	"github.com/noah-isme/house-points-api/pkg/response"
)

type auditService interface {
	History(ctx context.Context, resource, resourceID string) ([]models.AuditLog, error)
}

// AuditHandler exposes the transition history of intervention records.
type AuditHandler struct {
	service auditService
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(service auditService) *AuditHandler {
	return &AuditHandler{service: service}
}

// History godoc
// @Summary Transition history of one record
// @Tags Audit
// @Produce json
// @Param resource path string true "level_a_interventions, level_b_interventions, level_c_cases or reentry_protocols"
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /audit/{resource}/{id} [get]
func (h *AuditHandler) History(c *gin.Context) {
	logs, err := h.service.History(c.Request.Context(), c.Param("resource"), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil, map[string]interface{}{"count": len(logs)})
}
