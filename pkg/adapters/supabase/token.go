package supabase

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aretw0/diary/pkg/core"
)

// tokenClaims is the payload of a GoTrue access token.
type tokenClaims struct {
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	UserMetadata map[string]any `json:"user_metadata"`
	jwt.RegisteredClaims
}

func (c *tokenClaims) user() core.User {
	return gotrueUser{ID: c.Subject, Email: c.Email, UserMetadata: c.UserMetadata}.toUser()
}

// parseToken decodes the claims without verifying the signature; only the
// project holds the signing key and it checks every request anyway.
func parseToken(token string) (*tokenClaims, error) {
	c := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, c); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	return c, nil
}
