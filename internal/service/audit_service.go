package service

import (
	"context"
	"strings"

	"github.com/noah-isme/house-points-api/internal/models"
	appErrors "github.com/noah-isme/house-points-api/pkg/errors"
)

type auditReader interface {
	ListByResource(ctx context.Context, resource, resourceID string) ([]models.AuditLog, error)
}

var auditResources = map[string]bool{
	models.AuditResourceLevelA:  true,
	models.AuditResourceLevelB:  true,
	models.AuditResourceLevelC:  true,
	models.AuditResourceReentry: true,
}

// AuditService reads the transition history written by the intervention and re-entry services.
type AuditService struct {
	repo auditReader
}

// NewAuditService constructs the service.
func NewAuditService(repo auditReader) *AuditService {
	return &AuditService{repo: repo}
}

// History returns the entries of one record, oldest first.
func (s *AuditService) History(ctx context.Context, resource, resourceID string) ([]models.AuditLog, error) {
	resource = strings.TrimSpace(resource)
	if !auditResources[resource] {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown audit resource "+resource)
	}
	if strings.TrimSpace(resourceID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "resource id is required")
	}
	logs, err := s.repo.ListByResource(ctx, resource, resourceID)
	if err != nil {
		return nil, storeError(err, "failed to load audit trail")
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	return logs, nil
}
