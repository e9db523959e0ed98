package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, Value(c)) })
	return r
}

func TestMiddlewareGeneratesID(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	_, err := uuid.Parse(w.Body.String())
	require.NoError(t, err)
	assert.Equal(t, w.Body.String(), w.Header().Get(headerKey))
}

func TestMiddlewareKeepsShortCallerID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(headerKey, "trace-123")
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, req)
	assert.Equal(t, "trace-123", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(headerKey, strings.Repeat("x", 100))
	w = httptest.NewRecorder()
	newRouter().ServeHTTP(w, req)
	assert.NotEqual(t, strings.Repeat("x", 100), w.Body.String())
}

func TestMiddlewareReplacesUnsafeCallerID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(headerKey, "abc\" injected=1")
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, req)

	_, err := uuid.Parse(w.Body.String())
	assert.NoError(t, err)
	assert.Empty(t, Value(&gin.Context{}))
}
