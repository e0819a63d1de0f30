package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

const DefaultCookieName = "ubichill_session"

var (
	ErrNoCredentials = errors.New("no credentials presented")
	ErrInvalidToken  = errors.New("invalid token")
)

// Identity is a verified user. UserID is durable across connections.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"name"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Verifier turns a bearer token into an Identity.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) (*Identity, error)
}

// TokenFromHeader extracts a token from the Authorization header, falling
// back to the session cookie.
func TokenFromHeader(h http.Header, cookieName string) string {
	if authz := h.Get("Authorization"); authz != "" {
		scheme, token, ok := strings.Cut(authz, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}

	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	r := http.Request{Header: h}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}

	return ""
}

// VerifyHeader verifies whatever credentials h carries.
func VerifyHeader(ctx context.Context, v Verifier, h http.Header, cookieName string) (*Identity, error) {
	token := TokenFromHeader(h, cookieName)
	if token == "" {
		return nil, ErrNoCredentials
	}
	return v.VerifyToken(ctx, token)
}
