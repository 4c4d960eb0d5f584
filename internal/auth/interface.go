package auth

import "github.com/hemantsingh443/allchat-sub000/internal/domain/models"

// JWTVerifier verifies bearer tokens for the auth middleware.
type JWTVerifier interface {
	// VerifyToken validates a JWT token string and returns the parsed claims.
	// Returns domain.ErrUnauthorized if the token is invalid, expired, or has an invalid signature.
	VerifyToken(tokenString string) (*models.AuthClaims, error)

	// Close releases any resources held by the verifier.
	Close() error
}
