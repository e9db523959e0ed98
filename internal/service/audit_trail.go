package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/house-points-api/internal/models"
)

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// auditTrail writes best-effort audit entries for state transitions.
type auditTrail struct {
	store  auditLogger
	logger *zap.Logger
}

func (a auditTrail) record(ctx context.Context, actorID, action, resource, resourceID string, oldValues, newValues interface{}) {
	if a.store == nil {
		return
	}
	entry := &models.AuditLog{
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		OldValues:  marshalAuditValues(oldValues),
		NewValues:  marshalAuditValues(newValues),
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if err := a.store.CreateAuditLog(ctx, entry); err != nil {
		a.logger.Warn("failed to persist audit log",
			zap.String("action", action),
			zap.String("resource_id", resourceID),
			zap.Error(err),
		)
	}
}

func marshalAuditValues(v interface{}) []byte {
	if v == nil {
		return nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return payload
}
