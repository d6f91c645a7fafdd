package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-optimizer/internal/models"
	appErrors "github.com/noah-isme/course-optimizer/pkg/errors"
	"github.com/noah-isme/course-optimizer/pkg/response"
)

// RequireRoles admits callers whose token carries one of roles. Mount it after JWT.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		claims := Claims(c)
		switch {
		case claims == nil:
			response.Error(c, appErrors.ErrUnauthorized)
		case !allowed[claims.Role]:
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(claims.Role)+" may not call this endpoint"))
		default:
			c.Next()
			return
		}
		c.Abort()
	}
}
