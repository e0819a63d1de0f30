package command

import (
	"fmt"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/ubichill/internal/messaging"
)

// NatsConfig controls the embedded NATS server carrying instance
// broadcasts. When disabled, broadcasts stay in process.
type NatsConfig struct {
	Enabled      bool   `json:"enabled"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	StartTimeout string `json:"start_timeout"`
	DrainTimeout string `json:"drain_timeout"`
}

func (c *NatsConfig) validate() error {
	el := errors.NewErrorList()

	_, err := parseOptionalDuration("start_timeout", c.StartTimeout)
	el.Add(err)
	_, err = parseOptionalDuration("drain_timeout", c.DrainTimeout)
	el.Add(err)
	if c.Port < -1 || c.Port > 65535 {
		el.Add(fmt.Errorf("port must be between -1 and 65535"))
	}

	return el.Err()
}

func (c *NatsConfig) buildNatsServer() (*messaging.NatsServer, error) {
	var opts []messaging.NatsServerOpt

	d, err := parseOptionalDuration("start_timeout", c.StartTimeout)
	if err != nil {
		return nil, err
	}
	if d > 0 {
		opts = append(opts, messaging.WithStartTimeout(d))
	}
	d, err = parseOptionalDuration("drain_timeout", c.DrainTimeout)
	if err != nil {
		return nil, err
	}
	if d > 0 {
		opts = append(opts, messaging.WithDrainTimeout(d))
	}
	if c.Host != "" {
		opts = append(opts, messaging.WithHost(c.Host))
	}
	if c.Port != 0 {
		opts = append(opts, messaging.WithPort(c.Port))
	}

	return messaging.NewNatsServer(opts...)
}
