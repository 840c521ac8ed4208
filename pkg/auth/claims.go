package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Identity is the caller a verified access token speaks for.
type Identity struct {
	UserID uuid.UUID
	Role   enums.Role
}

func (i Identity) IsAdmin() bool { return i.Role == enums.RoleAdmin }

// accessClaims is the token body. The user id travels in sub and the role
// in a private claim.
type accessClaims struct {
	Role enums.Role `json:"role"`
	jwt.RegisteredClaims
}
