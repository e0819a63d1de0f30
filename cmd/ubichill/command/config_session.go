package command

import (
	"fmt"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/ubichill/internal/instance"
	"github.com/pixil98/ubichill/internal/session"
)

type SessionConfig struct {
	EnforceLocks   bool     `json:"enforce_locks"`
	PluginKinds    []string `json:"plugin_kinds"`
	OutboundBuffer int      `json:"outbound_buffer"`
	IdleTTL        string   `json:"idle_ttl"`
}

func (c *SessionConfig) validate() error {
	el := errors.NewErrorList()

	if c.OutboundBuffer < 0 {
		el.Add(fmt.Errorf("outbound_buffer must not be negative"))
	}
	for i, k := range c.PluginKinds {
		if k == "" {
			el.Add(fmt.Errorf("plugin_kinds[%d] is empty", i))
		}
	}
	_, err := parseOptionalDuration("idle_ttl", c.IdleTTL)
	el.Add(err)

	return el.Err()
}

func (c *SessionConfig) managerOpts() []instance.ManagerOpt {
	var opts []instance.ManagerOpt
	if d, err := parseOptionalDuration("idle_ttl", c.IdleTTL); err == nil && d > 0 {
		opts = append(opts, instance.WithIdleTTL(d))
	}
	return opts
}

func (c *SessionConfig) hubOpts() []session.HubOpt {
	return []session.HubOpt{
		session.WithEnforceLocks(c.EnforceLocks),
		session.WithPluginKinds(c.PluginKinds),
		session.WithOutboundBuffer(c.OutboundBuffer),
	}
}
