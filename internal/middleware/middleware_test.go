package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/house-points-api/internal/models"
	"github.com/noah-isme/house-points-api/internal/service"
	appErrors "github.com/noah-isme/house-points-api/pkg/errors"
	"github.com/noah-isme/house-points-api/pkg/logger"
	"github.com/noah-isme/house-points-api/pkg/middleware/requestid"
)

type validatorStub struct{}

func (validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	switch token {
	case "admin":
		return &models.JWTClaims{UserID: "u-admin", Role: models.RoleAdmin}, nil
	case "teacher":
		return &models.JWTClaims{UserID: "u-teacher", Role: models.RoleTeacher}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

func protectedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(JWT(validatorStub{}))
	r.GET("/cases", RequireRoles(models.CaseManagerRoles...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestJWTAndRoles(t *testing.T) {
	cases := []struct {
		header string
		status int
	}{
		{"", http.StatusUnauthorized},
		{"Token admin", http.StatusUnauthorized},
		{"Bearer nope", http.StatusUnauthorized},
		{"Bearer teacher", http.StatusForbidden},
		{"bearer admin", http.StatusOK},
	}
	router := protectedRouter()
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/cases", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, tc.status, w.Code, tc.header)
	}
}

func TestJWTStoresClaimsAndChallenges(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(JWT(validatorStub{}))
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, Claims(c).UserID+"|"+c.GetString(logger.UserIDKey))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer   ")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")

	req.Header.Set("Authorization", "Bearer admin")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "u-admin|u-admin", w.Body.String())
	assert.Empty(t, w.Header().Get("WWW-Authenticate"))
}

func TestRequireRolesWithoutJWT(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Nil(t, Claims(&gin.Context{}))
}

func TestResponseMetaCarriesRequestIDAndCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(requestid.Middleware(), WithResponseMeta())
	var meta map[string]interface{}
	r.GET("/", func(c *gin.Context) {
		SetCacheHit(c, true)
		MarkProcessed(c, time.Now())
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-1")
	r.ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, meta)
	assert.Equal(t, "req-1", meta["request_id"])
	assert.Equal(t, true, meta[cacheHitKey])
	assert.Contains(t, meta, "processing_time_ms")
}

func TestMetricsSkipsHealthChecks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics, "/health"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/analytics", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/analytics", nil))
	assert.Equal(t, uint64(1), metrics.Snapshot().RequestsTotal)
}
