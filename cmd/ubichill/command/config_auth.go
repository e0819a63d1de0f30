package command

import (
	"fmt"
	"log/slog"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/ubichill/internal/auth"
)

type AuthMode string

const (
	AuthModeJWT   AuthMode = "jwt"
	AuthModeGuest AuthMode = "guest"
)

type AuthConfig struct {
	Mode       AuthMode `json:"mode"`
	Secret     string   `json:"secret"`
	Issuer     string   `json:"issuer"`
	CookieName string   `json:"cookie_name"`
}

func (c *AuthConfig) validate() error {
	el := errors.NewErrorList()

	switch c.Mode {
	case AuthModeJWT:
		if c.Secret == "" {
			el.Add(fmt.Errorf("secret is required for jwt mode"))
		}
	case AuthModeGuest:
	case "":
		el.Add(fmt.Errorf("mode is required"))
	default:
		el.Add(fmt.Errorf("unknown mode %q", c.Mode))
	}

	return el.Err()
}

func (c *AuthConfig) cookieName() string {
	if c.CookieName == "" {
		return auth.DefaultCookieName
	}
	return c.CookieName
}

func (c *AuthConfig) buildVerifier() (auth.Verifier, error) {
	switch c.Mode {
	case AuthModeJWT:
		return auth.NewJWTVerifier(c.Secret, c.Issuer)
	case AuthModeGuest:
		slog.Warn("guest authentication enabled, any well formed token is accepted")
		return auth.GuestVerifier{}, nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", c.Mode)
	}
}
