package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenConfig controls access tokens minted by the local backend.
type TokenConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// AccessTokenClaims represents the JWT carried in the Authorization header.
type AccessTokenClaims struct {
	CustomerID string `json:"customer_id"`
	Email      string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// ExpiresBefore reports whether the token carries an expiry earlier than t.
func (c *AccessTokenClaims) ExpiresBefore(t time.Time) bool {
	if c == nil || c.ExpiresAt == nil {
		return false
	}
	return c.ExpiresAt.Before(t)
}
