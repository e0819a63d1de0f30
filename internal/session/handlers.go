package session

import (
	"context"
	"log/slog"

	"github.com/pixil98/ubichill/internal/presence"
	"github.com/pixil98/ubichill/internal/validate"
	"github.com/pixil98/ubichill/internal/world"
)

type handler struct {
	fn func(ctx context.Context, s *Session, req request) error
	// failure builds the ack payload for a failed request. Events without
	// one report failures with an error event.
	failure func(msg string) any
	// member events are refused before decoding when the session has not
	// joined an instance.
	member bool
}

var handlers = map[string]handler{
	EventAuth: {
		fn:      handleAuth,
		failure: func(msg string) any { return authReply{Error: msg} },
	},
	EventJoin: {
		fn:      handleJoin,
		failure: func(msg string) any { return joinReply{Error: msg} },
	},
	EventLeave: {
		fn:      handleLeave,
		failure: func(msg string) any { return leaveReply{Error: msg} },
	},
	EventEntityCreate: {
		fn:      handleEntityCreate,
		failure: func(msg string) any { return createReply{Error: msg} },
		member:  true,
	},
	EventCursorMove:      {fn: handleCursorMove, member: true},
	EventStatusUpdate:    {fn: handleStatusUpdate, member: true},
	EventUserUpdate:      {fn: handleUserUpdate, member: true},
	EventEntityPatch:     {fn: handleEntityPatch, member: true},
	EventEntityDelete:    {fn: handleEntityDelete, member: true},
	EventEntityEphemeral: {fn: handleEntityEphemeral, member: true},
}

// joined runs fn under the lock of the instance s belongs to. The
// membership and the instance itself are re-checked once the lock is held,
// since a close tears the entity partition down before evicting members.
func joined(s *Session, fn func(instanceID string) error) error {
	instanceID := s.instance()
	if instanceID == "" {
		return ErrNotJoined
	}

	lock := s.hub.lockFor(instanceID)
	lock.Lock()
	defer lock.Unlock()

	if s.instance() != instanceID {
		return ErrNotJoined
	}
	if _, ok := s.hub.instances.Get(instanceID); !ok {
		return ErrNotJoined
	}
	return fn(instanceID)
}

func handleCursorMove(ctx context.Context, s *Session, req request) error {
	var in cursorMove
	if err := decode(req, &in); err != nil {
		return err
	}
	if err := validate.Position(in.Position); err != nil {
		return err
	}
	var state *presence.CursorState
	if in.State != nil {
		cs, err := validate.CursorState(*in.State)
		if err != nil {
			return err
		}
		state = &cs
	}

	return joined(s, func(instanceID string) error {
		if !s.hub.participants.UpdatePosition(s.id, in.Position, state) {
			return nil
		}
		s.hub.broadcast(ctx, instanceID, EventCursorMoved, cursorMoved{
			ParticipantID: s.id,
			Position:      in.Position,
			State:         state,
		}, s.id)
		return nil
	})
}

func handleStatusUpdate(ctx context.Context, s *Session, req request) error {
	var in string
	if err := decode(req, &in); err != nil {
		return err
	}
	status, err := validate.Status(in)
	if err != nil {
		return err
	}

	return joined(s, func(instanceID string) error {
		if !s.hub.participants.UpdateStatus(s.id, status) {
			return nil
		}
		s.hub.broadcast(ctx, instanceID, EventStatusChanged, statusChanged{
			ParticipantID: s.id,
			Status:        status,
		}, s.id)
		return nil
	})
}

type profileUpdate struct {
	AvatarURL   *string        `json:"avatarUrl"`
	Avatar      map[string]any `json:"avatar"`
	CursorState *string        `json:"cursorState"`
	IsMenuOpen  *bool          `json:"isMenuOpen"`
}

func handleUserUpdate(ctx context.Context, s *Session, req request) error {
	var in profileUpdate
	if err := decode(req, &in); err != nil {
		return err
	}

	patch := presence.ProfilePatch{
		AvatarURL:  in.AvatarURL,
		Avatar:     in.Avatar,
		IsMenuOpen: in.IsMenuOpen,
	}
	if in.CursorState != nil {
		cs, err := validate.CursorState(*in.CursorState)
		if err != nil {
			return err
		}
		patch.CursorState = &cs
	}

	return joined(s, func(instanceID string) error {
		p, ok := s.hub.participants.UpdateProfile(s.id, patch)
		if !ok {
			return nil
		}
		s.hub.broadcast(ctx, instanceID, EventUserUpdated, p, "")
		return nil
	})
}

func handleEntityCreate(ctx context.Context, s *Session, req request) error {
	var in world.Entity
	if err := decode(req, &in); err != nil {
		return err
	}
	in.ID = ""
	if err := validate.Entity(in); err != nil {
		return err
	}

	return joined(s, func(instanceID string) error {
		e := s.hub.entities.Create(instanceID, in)
		s.reply(req, createReply{Success: true, Entity: &e})
		s.hub.broadcast(ctx, instanceID, EventEntityCreated, e, "")

		slog.DebugContext(ctx, "entity created", "instanceId", instanceID, "entityId", e.ID, "type", e.Type)
		return nil
	})
}

func handleEntityPatch(ctx context.Context, s *Session, req request) error {
	var in entityPatch
	if err := decode(req, &in); err != nil {
		return err
	}
	if err := validate.EntityID(in.EntityID); err != nil {
		return err
	}
	if err := validate.Patch(in.Patch); err != nil {
		return err
	}

	return joined(s, func(instanceID string) error {
		_, found, err := s.hub.entities.Update(instanceID, in.EntityID, func(current world.Entity) (world.Patch, error) {
			if err := s.hub.checkLock(current, s.id); err != nil {
				return world.Patch{}, err
			}
			return in.Patch, nil
		})
		if err != nil {
			return err
		}
		if !found {
			return ErrEntityNotFound
		}

		s.hub.broadcast(ctx, instanceID, EventEntityPatched, in, s.id)
		return nil
	})
}

func handleEntityDelete(ctx context.Context, s *Session, req request) error {
	var entityID string
	if err := decode(req, &entityID); err != nil {
		return err
	}
	if err := validate.EntityID(entityID); err != nil {
		return err
	}

	return joined(s, func(instanceID string) error {
		if s.hub.enforceLocks {
			current, ok := s.hub.entities.Get(instanceID, entityID)
			if !ok {
				return ErrEntityNotFound
			}
			if err := s.hub.checkLock(current, s.id); err != nil {
				return err
			}
		}

		if !s.hub.entities.Delete(instanceID, entityID) {
			return ErrEntityNotFound
		}
		s.hub.broadcast(ctx, instanceID, EventEntityDeleted, entityID, "")
		return nil
	})
}

func handleEntityEphemeral(ctx context.Context, s *Session, req request) error {
	var in entityEphemeral
	if err := decode(req, &in); err != nil {
		return err
	}
	if err := validate.EntityID(in.EntityID); err != nil {
		return err
	}

	return joined(s, func(instanceID string) error {
		s.hub.broadcast(ctx, instanceID, EventEntityEphemeral, in, s.id)
		return nil
	})
}

// checkLock rejects writes to an entity locked by someone other than
// holder. It only applies when lock enforcement is on.
func (h *Hub) checkLock(e world.Entity, holder string) error {
	if !h.enforceLocks || e.LockedBy == nil || *e.LockedBy == holder {
		return nil
	}
	return ErrEntityLocked
}

// releaseLock clears holder's lock on the entity. It returns nil when the
// entity is gone or no longer held by holder.
func (h *Hub) releaseLock(instanceID, entityID, holder string) (*world.Patch, error) {
	var applied *world.Patch
	_, _, err := h.entities.Update(instanceID, entityID, func(current world.Entity) (world.Patch, error) {
		if !current.IsLockedBy(holder) {
			return world.Patch{}, nil
		}
		p := world.ReleasePatch(current)
		applied = &p
		return p, nil
	})
	return applied, err
}
