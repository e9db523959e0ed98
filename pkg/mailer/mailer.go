// Package mailer dispatches templated transactional email.
package mailer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/noah-isme/house-points-api/pkg/config"
)

const (
	defaultHost     = "https://api.sendgrid.com"
	sendEndpoint    = "/v3/mail/send"
	messageIDHeader = "X-Message-Id"
)

// Message is a single templated email.
type Message struct {
	TemplateID string
	To         string
	ToName     string
	Data       map[string]interface{}
}

// Sender delivers a message and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// New returns a SendGrid sender when an API key is configured, otherwise a
// sender that only logs what would have been sent.
func New(cfg config.MailConfig, logger *zap.Logger) Sender {
	if cfg.SendgridAPIKey == "" {
		return NewLogSender(logger)
	}
	return NewSendGrid(cfg.SendgridAPIKey, cfg.FromName, cfg.FromAddress)
}

// SendGridSender sends dynamic-template mail through the SendGrid v3 API.
type SendGridSender struct {
	key  string
	host string
	from *sgmail.Email
}

// NewSendGrid constructs a SendGrid sender.
func NewSendGrid(key, fromName, fromAddress string) *SendGridSender {
	return &SendGridSender{
		key:  key,
		host: defaultHost,
		from: sgmail.NewEmail(fromName, fromAddress),
	}
}

// Send posts the message and returns the id SendGrid assigned to it.
func (s *SendGridSender) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m, err := s.prepare(msg)
	if err != nil {
		return "", err
	}
	req := sendgrid.GetRequest(s.key, sendEndpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m)

	res, err := sendgrid.API(req)
	if err != nil {
		return "", fmt.Errorf("sendgrid request: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("sendgrid rejected message: status %d: %s", res.StatusCode, res.Body)
	}
	if ids := res.Headers[messageIDHeader]; len(ids) > 0 {
		return ids[0], nil
	}
	return "", nil
}

func (s *SendGridSender) prepare(msg Message) (*sgmail.SGMailV3, error) {
	if msg.To == "" {
		return nil, fmt.Errorf("recipient required")
	}
	if msg.TemplateID == "" {
		return nil, fmt.Errorf("template id required")
	}
	p := sgmail.NewPersonalization()
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.To))
	for key, value := range msg.Data {
		p.SetDynamicTemplateData(key, value)
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.SetTemplateID(msg.TemplateID)
	m.AddPersonalizations(p)
	return m, nil
}

// LogSender records messages in the log instead of delivering them.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a log-only sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send logs the message and returns an empty id.
func (s *LogSender) Send(_ context.Context, msg Message) (string, error) {
	s.logger.Info("email delivery disabled, message logged",
		zap.String("template_id", msg.TemplateID),
		zap.String("to", msg.To),
		zap.Int("variables", len(msg.Data)),
	)
	return "", nil
}
