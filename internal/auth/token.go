package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/good12834/shoestore/pkg/errors"
)

// Claims is the subset of the backend's access token claims the client reads.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// tokenInfo is what the session learns from a bearer token.
type tokenInfo struct {
	UserID    string
	ExpiresAt time.Time
}

var parser = jwt.NewParser()

// inspectToken checks the token's shape and, when it is a JWT, its expiry.
// The signature is not verified: the client never holds the signing key and
// the backend re-validates every request. Opaque tokens are accepted as-is.
func inspectToken(raw string, now time.Time) (tokenInfo, error) {
	if raw == "" {
		return tokenInfo{}, apperrors.InvalidInput("token is required")
	}
	if strings.ContainsAny(raw, " \t\r\n") {
		return tokenInfo{}, apperrors.InvalidInput("token must not contain whitespace")
	}
	if strings.Count(raw, ".") != 2 {
		return tokenInfo{}, nil
	}

	var claims Claims
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return tokenInfo{}, nil
	}

	info := tokenInfo{UserID: claims.UserID}
	if info.UserID == "" {
		info.UserID = claims.Subject
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
		if !now.Before(info.ExpiresAt) {
			return tokenInfo{}, apperrors.Unauthorized("token expired")
		}
	}
	return info, nil
}
