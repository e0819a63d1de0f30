package messaging

import (
	"fmt"
	"log/slog"

	"github.com/vmihailenco/msgpack/v5"
)

// Bus is a subject based pub/sub transport.
type Bus interface {
	Subscribe(subject string, handler func(data []byte)) (func(), error)
	Publish(subject string, data []byte) error
}

// Envelope wraps one outbound frame for a group. Frame is already encoded
// for the client; Exclude names a connection that must not receive it.
type Envelope struct {
	Event   string `msgpack:"e"`
	Exclude string `msgpack:"x,omitempty"`
	Frame   []byte `msgpack:"f"`
}

// Publisher fans frames out to instance groups over a Bus.
type Publisher struct {
	bus Bus
}

func NewPublisher(bus Bus) *Publisher {
	return &Publisher{bus: bus}
}

func groupSubject(group string) string {
	return fmt.Sprintf("instance.%s", group)
}

// Publish sends env to every member of group.
func (p *Publisher) Publish(group string, env Envelope) error {
	data, err := msgpack.Marshal(&env)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	return p.bus.Publish(groupSubject(group), data)
}

// Join subscribes connID to group. deliver receives every frame not
// excluded for connID, in publish order.
func (p *Publisher) Join(group, connID string, deliver func(event string, frame []byte)) (func(), error) {
	return p.bus.Subscribe(groupSubject(group), func(data []byte) {
		var env Envelope
		if err := msgpack.Unmarshal(data, &env); err != nil {
			slog.Warn("dropping undecodable envelope", "group", group, "error", err)
			return
		}
		if env.Exclude != "" && env.Exclude == connID {
			return
		}
		deliver(env.Event, env.Frame)
	})
}
