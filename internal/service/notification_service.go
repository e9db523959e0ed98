package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/house-points-api/pkg/mailer"
)

// Template keys understood by NotificationService.
const (
	TemplateWeeklyDigest    = "weekly_digest"
	TemplateQuarterlyReport = "quarterly_report"
)

// NotificationService sends templated email on a best-effort basis.
type NotificationService struct {
	sender    mailer.Sender
	templates map[string]string
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewNotificationService constructs the service. templates maps template keys to provider template ids.
func NewNotificationService(sender mailer.Sender, templates map[string]string, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = mailer.NewLogSender(logger)
	}
	return &NotificationService{sender: sender, templates: templates, metrics: metrics, logger: logger}
}

// SendTemplatedEmail delivers one message. It returns the provider message id and whether the
// provider accepted it. Failures are logged and never returned to the caller.
func (s *NotificationService) SendTemplatedEmail(ctx context.Context, templateKey, recipient string, variables map[string]interface{}) (string, bool) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		s.logger.Warn("skipping email without recipient", zap.String("template", templateKey))
		s.metrics.RecordEmail(templateKey, false)
		return "", false
	}
	templateID := templateKey
	if id, ok := s.templates[templateKey]; ok && id != "" {
		templateID = id
	}

	id, err := s.sender.Send(ctx, mailer.Message{TemplateID: templateID, To: recipient, Data: variables})
	if err != nil {
		s.logger.Warn("failed to send email",
			zap.String("template", templateKey),
			zap.String("recipient", recipient),
			zap.Error(err),
		)
		s.metrics.RecordEmail(templateKey, false)
		return "", false
	}
	s.metrics.RecordEmail(templateKey, true)
	return id, true
}
