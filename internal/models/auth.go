package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims represents the access token payload minted by the external auth layer.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Actor resolves the claims into the tagged actor recorded on audit trails.
func (c *JWTClaims) Actor() Actor {
	if c == nil {
		return Actor{}
	}
	display := c.FullName
	if display == "" {
		display = c.Email
	}
	switch c.Role {
	case RoleSuperAdmin, RoleAdmin:
		return AdminActor(c.UserID, display)
	case RoleSystem:
		label := c.FullName
		if label == "" {
			label = c.UserID
		}
		return SystemActor(label)
	default:
		return UserActor(c.UserID, display)
	}
}
