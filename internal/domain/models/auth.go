package models

import "github.com/golang-jwt/jwt/v5"

// AuthClaims is the JWT claim set issued by the auth provider (Supabase).
// See: https://supabase.com/docs/guides/auth/jwts
type AuthClaims struct {
	jwt.RegisteredClaims        // sub, iss, aud, exp, iat
	Email                string `json:"email"`
	Role                 string `json:"role"` // "authenticated" or "anon"
	SessionID            string `json:"session_id"`
	IsAnonymous          bool   `json:"is_anonymous"`
}

// GetUserID returns the user ID from the JWT subject claim.
func (c *AuthClaims) GetUserID() string {
	return c.Subject
}
