package presence

import (
	"maps"
	"time"
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

type CursorState string

const (
	CursorDefault    CursorState = "default"
	CursorPointer    CursorState = "pointer"
	CursorText       CursorState = "text"
	CursorWait       CursorState = "wait"
	CursorHelp       CursorState = "help"
	CursorNotAllowed CursorState = "not-allowed"
	CursorMove       CursorState = "move"
	CursorGrabbing   CursorState = "grabbing"
)

// Statuses lists every recognized participant status.
var Statuses = []Status{StatusOnline, StatusAway, StatusBusy, StatusOffline}

// CursorStates lists every recognized cursor state.
var CursorStates = []CursorState{
	CursorDefault, CursorPointer, CursorText, CursorWait,
	CursorHelp, CursorNotAllowed, CursorMove, CursorGrabbing,
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Participant is one joined connection. ConnectionID is the transport
// assigned key; PersistentUserID is the verified identity behind it.
type Participant struct {
	ConnectionID     string         `json:"id"`
	PersistentUserID string         `json:"userId"`
	DisplayName      string         `json:"name"`
	AvatarURL        string         `json:"avatarUrl,omitempty"`
	Avatar           map[string]any `json:"avatar,omitempty"`
	Status           Status         `json:"status"`
	Position         Position       `json:"position"`
	CursorState      CursorState    `json:"cursorState,omitempty"`
	IsMenuOpen       bool           `json:"isMenuOpen,omitempty"`
	LastActiveAt     int64          `json:"lastActiveAt"`
}

func (p Participant) clone() Participant {
	c := p
	c.Avatar = maps.Clone(p.Avatar)
	return c
}

// ProfilePatch holds the only participant fields a client may change
// through a profile update. Nil fields are left untouched.
type ProfilePatch struct {
	AvatarURL   *string        `json:"avatarUrl,omitempty"`
	Avatar      map[string]any `json:"avatar,omitempty"`
	CursorState *CursorState   `json:"cursorState,omitempty"`
	IsMenuOpen  *bool          `json:"isMenuOpen,omitempty"`
}

func (pp ProfilePatch) apply(p *Participant) {
	if pp.AvatarURL != nil {
		p.AvatarURL = *pp.AvatarURL
	}
	if pp.Avatar != nil {
		p.Avatar = maps.Clone(pp.Avatar)
	}
	if pp.CursorState != nil {
		p.CursorState = *pp.CursorState
	}
	if pp.IsMenuOpen != nil {
		p.IsMenuOpen = *pp.IsMenuOpen
	}
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}
