package command

import (
	"fmt"
	"net"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/ubichill/internal/listener"
)

const defaultListenAddr = ":8080"

type ListenerConfig struct {
	Addr           string   `json:"addr"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimit      float64  `json:"rate_limit"`
	RateBurst      int      `json:"rate_burst"`
	MaxMessageSize int64    `json:"max_message_size"`
	WriteTimeout   string   `json:"write_timeout"`
	ConnectionURL  string   `json:"connection_url"`
}

func (c *ListenerConfig) validate() error {
	el := errors.NewErrorList()

	if c.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Addr); err != nil {
			el.Add(fmt.Errorf("invalid addr %q: %w", c.Addr, err))
		}
	}
	if c.RateLimit < 0 {
		el.Add(fmt.Errorf("rate_limit must not be negative"))
	}
	if c.RateBurst < 0 {
		el.Add(fmt.Errorf("rate_burst must not be negative"))
	}
	if c.MaxMessageSize < 0 {
		el.Add(fmt.Errorf("max_message_size must not be negative"))
	}
	_, err := parseOptionalDuration("write_timeout", c.WriteTimeout)
	el.Add(err)

	return el.Err()
}

func (c *ListenerConfig) addr() string {
	if c.Addr == "" {
		return defaultListenAddr
	}
	return c.Addr
}

func (c *ListenerConfig) connectionManagerOpts() []listener.ConnectionManagerOpt {
	opts := []listener.ConnectionManagerOpt{
		listener.WithAllowedOrigins(c.AllowedOrigins),
		listener.WithMaxMessageSize(c.MaxMessageSize),
	}
	if d, err := parseOptionalDuration("write_timeout", c.WriteTimeout); err == nil {
		opts = append(opts, listener.WithWriteTimeout(d))
	}
	return opts
}
