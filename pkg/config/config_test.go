package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", EnvDevelopment)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, "house_points", cfg.Database.Name)
	assert.Equal(t, 10*time.Minute, cfg.Analytics.CacheTTL)
	assert.Equal(t, 10*time.Minute, cfg.CORS.MaxAge)
	assert.True(t, cfg.Insights.QueueEnabled)
	assert.Empty(t, cfg.Mail.Templates)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://staff.school.test, ,https://admin.school.test")
	t.Setenv("ANALYTICS_CACHE_TTL", "not-a-duration")
	t.Setenv("MAIL_TEMPLATES", "weekly_digest=d-1, broken, quarterly_report = d-2")
	t.Setenv("DIGEST_RECIPIENTS", "head@school.test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"https://staff.school.test", "https://admin.school.test"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 10*time.Minute, cfg.Analytics.CacheTTL)
	assert.Equal(t, map[string]string{"weekly_digest": "d-1", "quarterly_report": "d-2"}, cfg.Mail.Templates)
	assert.Equal(t, []string{"head@school.test"}, cfg.Digest.Recipients)
}

func TestLoadRefusesDevSecretsInProduction(t *testing.T) {
	t.Setenv("ENV", EnvProduction)
	t.Setenv("ENABLE_REPORTS", "true")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "REPORTS_SIGNED_URL_SECRET")

	t.Setenv("JWT_SECRET", "rotated")
	t.Setenv("REPORTS_SIGNED_URL_SECRET", "rotated-too")
	_, err = Load()
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Config{Env: EnvDevelopment, Port: 0, APIPrefix: "api"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT 0 out of range")
	assert.Contains(t, err.Error(), "API_PREFIX")
}
