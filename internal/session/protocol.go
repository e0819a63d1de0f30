package session

import (
	"encoding/json"

	"github.com/pixil98/ubichill/internal/instance"
	"github.com/pixil98/ubichill/internal/presence"
	"github.com/pixil98/ubichill/internal/world"
)

// Inbound events.
const (
	EventAuth            = "auth"
	EventJoin            = "join"
	EventLeave           = "leave"
	EventCursorMove      = "cursor:move"
	EventStatusUpdate    = "status:update"
	EventUserUpdate      = "user:update"
	EventEntityCreate    = "entity:create"
	EventEntityPatch     = "entity:patch"
	EventEntityDelete    = "entity:delete"
	EventEntityEphemeral = "entity:ephemeral"
)

// Outbound events.
const (
	EventAck               = "ack"
	EventError             = "error"
	EventWorldSnapshot     = "world:snapshot"
	EventUsersUpdate       = "users:update"
	EventParticipantJoined = "participant:joined"
	EventParticipantLeft   = "participant:left"
	EventCursorMoved       = "cursor:moved"
	EventStatusChanged     = "status:changed"
	EventUserUpdated       = "user:updated"
	EventEntityCreated     = "entity:created"
	EventEntityPatched     = "entity:patched"
	EventEntityDeleted     = "entity:deleted"
	EventInstanceUpdated   = "instance:updated"
	EventInstanceClosing   = "instance:closing"
)

// request is one inbound frame. Ack is set when the client wants a reply.
type request struct {
	Event string          `json:"event"`
	Ack   *int64          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type frame struct {
	Event string `json:"event"`
	Ack   *int64 `json:"ack,omitempty"`
	Data  any    `json:"data"`
}

func encode(event string, ack *int64, data any) ([]byte, error) {
	return json.Marshal(frame{Event: event, Ack: ack, Data: data})
}

type authRequest struct {
	Token string `json:"token"`
}

type authReply struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId,omitempty"`
	Error   string `json:"error,omitempty"`
}

type joinRequest struct {
	WorldID     string  `json:"worldId"`
	InstanceID  string  `json:"instanceId,omitempty"`
	DisplayName *string `json:"displayName,omitempty"`
}

type joinReply struct {
	Success       bool   `json:"success"`
	ParticipantID string `json:"participantId,omitempty"`
	InstanceID    string `json:"instanceId,omitempty"`
	Error         string `json:"error,omitempty"`
}

type leaveReply struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type createReply struct {
	Success bool          `json:"success"`
	Entity  *world.Entity `json:"entity,omitempty"`
	Error   string        `json:"error,omitempty"`
}

type snapshot struct {
	Entities             []world.Entity       `json:"entities"`
	AvailablePluginKinds []string             `json:"availablePluginKinds"`
	ActivePlugins        []string             `json:"activePlugins"`
	Environment          instance.Environment `json:"environment"`
}

type cursorMove struct {
	Position presence.Position `json:"position"`
	State    *string           `json:"state,omitempty"`
}

type cursorMoved struct {
	ParticipantID string                `json:"participantId"`
	Position      presence.Position     `json:"position"`
	State         *presence.CursorState `json:"state,omitempty"`
}

type statusChanged struct {
	ParticipantID string          `json:"participantId"`
	Status        presence.Status `json:"status"`
}

type entityPatch struct {
	EntityID string      `json:"entityId"`
	Patch    world.Patch `json:"patch"`
}

type entityEphemeral struct {
	EntityID string          `json:"entityId"`
	Data     json.RawMessage `json:"data"`
}

type instanceUpdated struct {
	InstanceID   string          `json:"instanceId"`
	CurrentUsers int             `json:"currentUsers"`
	MaxUsers     int             `json:"maxUsers"`
	Status       instance.Status `json:"status"`
}
