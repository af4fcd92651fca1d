package security

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of the marketplace access token the client reads.
// The client never holds the signing key, so claims are parsed unverified
// and only used to skip tokens that are already dead.
type Claims struct {
	TokenType string   `json:"token_type,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

var ErrOpaqueToken = errors.New("token is not a jwt")

// InspectToken decodes a bearer token without verifying its signature.
func InspectToken(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if strings.Count(raw, ".") != 2 {
		return nil, ErrOpaqueToken
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// TokenExpired reports whether raw is a JWT whose exp is before now+leeway.
// Opaque tokens and tokens without exp are never considered expired here;
// the server decides for those.
func TokenExpired(raw string, now time.Time, leeway time.Duration) bool {
	claims, err := InspectToken(raw)
	if err != nil || claims.ExpiresAt == nil {
		return false
	}
	return !claims.ExpiresAt.Time.After(now.Add(leeway))
}
