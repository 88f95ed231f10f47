package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/issue-audit-api/internal/dto"
	"github.com/noah-isme/issue-audit-api/internal/models"
	"github.com/noah-isme/issue-audit-api/pkg/middleware/requestid"
)

const contextActorKey = "currentActor"

func setActor(c *gin.Context, actor models.Actor) {
	c.Set(contextActorKey, actor)
}

// CurrentActor returns the actor resolved from the bearer token.
func CurrentActor(c *gin.Context) (models.Actor, bool) {
	value, exists := c.Get(contextActorKey)
	if !exists {
		return models.Actor{}, false
	}
	actor, ok := value.(models.Actor)
	return actor, ok
}

// CurrentClaims returns the verified token claims.
func CurrentClaims(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	claims, _ := value.(*models.JWTClaims)
	return claims
}

// RequestMeta captures the client details stored alongside audit records.
func RequestMeta(c *gin.Context) dto.RequestMeta {
	return dto.RequestMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		RequestID: requestid.Value(c),
	}
}
