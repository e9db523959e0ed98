package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/house-points-api/internal/app"
	"github.com/noah-isme/house-points-api/internal/models"
	"github.com/noah-isme/house-points-api/internal/service"
	"github.com/noah-isme/house-points-api/pkg/config"
)

func newTestRouter(t *testing.T) (*gin.Engine, *service.TokenService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tokens := service.NewTokenService(service.TokenConfig{Secret: "test-secret"})
	c := &app.Container{
		Metrics: service.NewMetricsService(),
		Tokens:  tokens,
	}
	cfg := &config.Config{Env: config.EnvProduction, APIPrefix: "/api/v1"}
	r := gin.New()
	registerRoutes(r, cfg, c, zap.NewNop())
	return r, tokens
}

func TestRegisterRoutesExposesSurface(t *testing.T) {
	r, _ := newTestRouter(t)

	registered := map[string]bool{}
	for _, route := range r.Routes() {
		registered[route.Method+" "+route.Path] = true
	}
	for _, want := range []string{
		"GET /health",
		"GET /metrics",
		"POST /api/v1/behavior-events",
		"POST /api/v1/interventions/level-b/:id/steps/:step",
		"POST /api/v1/interventions/level-c/:id/context-packet",
		"GET /api/v1/reentry/script",
		"GET /api/v1/analytics/interventions",
		"DELETE /api/v1/analytics/cache",
		"POST /api/v1/digests/weekly/send",
		"GET /api/v1/audit/:resource/:id",
	} {
		assert.True(t, registered[want], want)
	}
	assert.False(t, registered["GET /docs/*any"], "docs are hidden in production")
	assert.False(t, registered["POST /api/v1/reports/generate"], "reports are disabled without a report service")
}

func TestRoutesRequireTokenAndRole(t *testing.T) {
	r, tokens := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/behavior-events", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, _, err := tokens.Issue("t-1", models.RoleTeacher, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/analytics/cache", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
