package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/house-points-api/internal/models"
	appErrors "github.com/noah-isme/house-points-api/pkg/errors"
)

// RequireRoles admits callers whose role is listed. It must run after JWT.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		claims := Claims(c)
		switch {
		case claims == nil:
			deny(c, appErrors.ErrUnauthorized)
		case !allowed[claims.Role]:
			deny(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(claims.Role)+" may not perform this action"))
		default:
			c.Next()
		}
	}
}
