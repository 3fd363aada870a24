package models

import "github.com/golang-jwt/jwt/v5"

// Claims is the JWT claims structure issued by the auth provider.
type Claims struct {
	jwt.RegisteredClaims        // Standard JWT claims (sub, iss, aud, exp, iat, etc.)
	Email                string `json:"email"`
	Role                 string `json:"role"` // "authenticated" or "anon"
}

// GetUserID returns the principal id from the JWT subject claim.
func (c *Claims) GetUserID() string {
	return c.Subject
}
