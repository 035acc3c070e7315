package auth

import (
	"context"
	"time"
)

// JWTService issues and validates the bearer tokens that identify job owners.
type JWTService interface {
	// GenerateToken creates a signed JWT access token for ownerID.
	// Returns the token string or an error if token generation fails.
	GenerateToken(ctx context.Context, ownerID string) (string, error)

	// ValidateToken validates the provided access token string and extracts the claims.
	// Returns the claims if the token is valid, or an error if validation fails
	// (expired, invalid signature, etc.).
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims represents the validated content of an access token.
type Claims struct {
	// Subject is the owner id. It may be empty; callers then fall back to
	// the owner given with the request.
	Subject   string    `json:"sub,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}
