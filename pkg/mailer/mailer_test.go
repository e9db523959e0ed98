package mailer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/house-points-api/pkg/config"
)

func TestSendGridPrepareBuildsTemplatedMail(t *testing.T) {
	s := NewSendGrid("key", "House Points", "no-reply@example.com")

	m, err := s.prepare(Message{
		TemplateID: "d-123",
		To:         "head@example.com",
		ToName:     "Head Teacher",
		Data:       map[string]interface{}{"participation_rate": 82.5},
	})
	require.NoError(t, err)

	assert.Equal(t, "d-123", m.TemplateID)
	assert.Equal(t, "no-reply@example.com", m.From.Address)
	require.Len(t, m.Personalizations, 1)
	require.Len(t, m.Personalizations[0].To, 1)
	assert.Equal(t, "head@example.com", m.Personalizations[0].To[0].Address)
	assert.Equal(t, 82.5, m.Personalizations[0].DynamicTemplateData["participation_rate"])
}

func TestSendGridPrepareRequiresRecipientAndTemplate(t *testing.T) {
	s := NewSendGrid("key", "House Points", "no-reply@example.com")

	_, err := s.prepare(Message{TemplateID: "d-123"})
	assert.Error(t, err)

	_, err = s.prepare(Message{To: "head@example.com"})
	assert.Error(t, err)
}

func TestNewFallsBackToLogSender(t *testing.T) {
	sender := New(config.MailConfig{}, nil)

	_, ok := sender.(*LogSender)
	require.True(t, ok)

	id, err := sender.Send(context.Background(), Message{TemplateID: "d-1", To: "a@example.com"})
	require.NoError(t, err)
	assert.Empty(t, id)
}
