// Package auth inspects the personal access tokens handed to the client.
// Tokens are never verified here; the service does that. The client only
// reads what it needs to warn before a request is bound to fail.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrOpaqueToken is returned for tokens that are not JWTs. Storm WS issues
// both kinds.
var ErrOpaqueToken = errors.New("token is not a jwt")

// TokenInfo is what the client can read from a JWT access token.
type TokenInfo struct {
	Subject   string
	Scopes    []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token is past its expiry at now. Tokens
// without an expiry never expire.
func (t TokenInfo) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope,omitempty"`
}

// Inspect parses token without verifying its signature.
func Inspect(token string) (TokenInfo, error) {
	token = StripBearer(token)
	if strings.Count(token, ".") != 2 {
		return TokenInfo{}, ErrOpaqueToken
	}
	claims := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, err
	}
	info := TokenInfo{
		Subject: claims.Subject,
		Scopes:  strings.Fields(claims.Scope),
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

// StripBearer removes a leading "Bearer " so that tokens copied from an
// Authorization header can be used as-is.
func StripBearer(token string) string {
	parts := strings.Fields(token)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return strings.TrimSpace(token)
}
