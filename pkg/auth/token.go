// Package auth verifies the HS256 access tokens minted by the identity
// service. Storefront never issues tokens to customers itself.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

const clockSkew = 30 * time.Second

var signingMethod = jwt.SigningMethodHS256

// ErrInvalidToken wraps every verification failure.
var ErrInvalidToken = errors.New("invalid access token")

// Verifier checks access tokens against one secret and issuer.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(cfg config.JWTConfig) (*Verifier, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("jwt issuer is required")
	}
	return &Verifier{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{signingMethod.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockSkew),
		),
	}, nil
}

// Verify checks signature, issuer and expiry, then returns who the token
// belongs to.
func (v *Verifier) Verify(raw string) (Identity, error) {
	var claims accessClaims
	if _, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return Identity{}, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}
	if !claims.Role.IsValid() {
		return Identity{}, fmt.Errorf("%w: role %q", ErrInvalidToken, claims.Role)
	}
	return Identity{UserID: userID, Role: claims.Role}, nil
}

// Issue signs a token for id valid for cfg.ExpirationMinutes from now. Used
// by local tooling and tests.
func Issue(cfg config.JWTConfig, now time.Time, id Identity) (string, error) {
	switch {
	case cfg.Secret == "" || cfg.Issuer == "":
		return "", errors.New("jwt secret and issuer are required")
	case cfg.ExpirationMinutes <= 0:
		return "", errors.New("jwt expiration minutes must be positive")
	case id.UserID == uuid.Nil:
		return "", errors.New("user id is required")
	case !id.Role.IsValid():
		return "", fmt.Errorf("invalid role %q", id.Role)
	}

	claims := accessClaims{
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}
