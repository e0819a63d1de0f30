package command

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"
)

const defaultTickInterval = 5 * time.Second

type Config struct {
	TickInterval string         `json:"tick_interval"`
	Listener     ListenerConfig `json:"listener"`
	Nats         NatsConfig     `json:"nats"`
	Storage      StorageConfig  `json:"storage"`
	Auth         AuthConfig     `json:"auth"`
	Journal      JournalConfig  `json:"journal"`
	Session      SessionConfig  `json:"session"`
}

func (c *Config) Validate() error {
	el := errors.NewErrorList()

	if c.TickInterval != "" {
		d, err := time.ParseDuration(c.TickInterval)
		if err != nil {
			el.Add(fmt.Errorf("parsing tick_interval: %w", err))
		} else if d < time.Second {
			el.Add(fmt.Errorf("tick_interval must be at least 1 second"))
		}
	}

	el.Add(wrap("listener", c.Listener.validate()))
	el.Add(wrap("nats", c.Nats.validate()))
	el.Add(wrap("storage", c.Storage.validate()))
	el.Add(wrap("auth", c.Auth.validate()))
	el.Add(wrap("journal", c.Journal.validate()))
	el.Add(wrap("session", c.Session.validate()))

	return el.Err()
}

func (c *Config) tickInterval() time.Duration {
	d, err := time.ParseDuration(c.TickInterval)
	if err != nil || d <= 0 {
		return defaultTickInterval
	}
	return d
}

func wrap(section string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", section, err)
}

// parseOptionalDuration returns zero for an empty string.
func parseOptionalDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}
