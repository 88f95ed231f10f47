package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/issue-audit-api/internal/models"
	appErrors "github.com/noah-isme/issue-audit-api/pkg/errors"
	"github.com/noah-isme/issue-audit-api/pkg/response"
)

// RequireRoles lets the request through when the token carries one of the roles.
// It must run after JWT.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := CurrentClaims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(claims.Role)+" may not access this resource"))
			return
		}
		c.Next()
	}
}

// RequireAdmin restricts a route to dashboard administrators.
func RequireAdmin() gin.HandlerFunc {
	return RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)
}
