package journal

import "time"

type Kind string

const (
	KindParticipantJoined Kind = "participant.joined"
	KindParticipantLeft   Kind = "participant.left"
	KindInstanceCreated   Kind = "instance.created"
	KindInstanceClosed    Kind = "instance.closed"
)

// Fact is one durable record of something that happened to an instance.
type Fact struct {
	ID           string            `json:"id" msgpack:"id"`
	Kind         Kind              `json:"kind" msgpack:"kind"`
	InstanceID   string            `json:"instanceId" msgpack:"instanceId"`
	UserID       string            `json:"userId,omitempty" msgpack:"userId,omitempty"`
	ConnectionID string            `json:"connectionId,omitempty" msgpack:"connectionId,omitempty"`
	At           time.Time         `json:"at" msgpack:"at"`
	Detail       map[string]string `json:"detail,omitempty" msgpack:"detail,omitempty"`
}
