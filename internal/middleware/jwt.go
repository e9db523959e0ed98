package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/house-points-api/internal/models"
	appErrors "github.com/noah-isme/house-points-api/pkg/errors"
	"github.com/noah-isme/house-points-api/pkg/logger"
	"github.com/noah-isme/house-points-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

// TokenValidator resolves bearer tokens to claims.
type TokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// JWT requires a valid bearer token and stores its claims on the context.
func JWT(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			deny(c, err)
			return
		}
		claims, err := tokens.ValidateToken(token)
		if err != nil {
			deny(c, err)
			return
		}
		c.Set(ContextUserKey, claims)
		c.Set(logger.UserIDKey, claims.UserID)
		c.Next()
	}
}

// Claims returns the authenticated caller, or nil before JWT has run.
func Claims(c *gin.Context) *models.JWTClaims {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	claims, _ := value.(*models.JWTClaims)
	return claims
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", appErrors.ErrUnauthorized
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
	}
	return token, nil
}

func deny(c *gin.Context, err error) {
	if appErrors.FromError(err).Status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", `Bearer realm="house-points"`)
	}
	response.Error(c, err)
	c.Abort()
}
