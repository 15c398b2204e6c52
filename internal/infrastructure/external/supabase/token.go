package supabase

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims are the claims GoTrue puts in an access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// ParseAccessToken decodes an access token without verifying its
// signature. The signing secret stays on the server; the client only
// needs sub and exp, and GetUser is the authoritative check.
func ParseAccessToken(token string) (*AccessClaims, error) {
	if token == "" {
		return nil, fmt.Errorf("supabase: empty access token")
	}
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("supabase: decode access token: %w", err)
	}
	return claims, nil
}

// tokenExpired reports whether the token's exp claim is before now+skew.
// Tokens without exp are treated as expired.
func tokenExpired(claims *AccessClaims, skew time.Duration, now time.Time) bool {
	if claims.ExpiresAt == nil {
		return true
	}
	return !now.Add(skew).Before(claims.ExpiresAt.Time)
}
