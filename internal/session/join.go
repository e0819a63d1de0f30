package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/pixil98/ubichill/internal/auth"
	"github.com/pixil98/ubichill/internal/instance"
	"github.com/pixil98/ubichill/internal/journal"
	"github.com/pixil98/ubichill/internal/presence"
	"github.com/pixil98/ubichill/internal/validate"
)

func handleAuth(ctx context.Context, s *Session, req request) error {
	var in authRequest
	if err := decode(req, &in); err != nil {
		return err
	}
	if s.instance() != "" {
		return ErrAlreadyJoined
	}
	if s.hub.verifier == nil {
		return ErrAuthRequired
	}

	id, err := s.hub.verifier.VerifyToken(ctx, in.Token)
	if err != nil {
		return err
	}
	s.setIdentity(id)

	slog.DebugContext(ctx, "session authenticated", "connectionId", s.id, "userId", id.UserID)
	s.reply(req, authReply{Success: true, UserID: id.UserID})
	return nil
}

func handleJoin(ctx context.Context, s *Session, req request) error {
	var in joinRequest
	if err := decode(req, &in); err != nil {
		return err
	}

	id := s.currentIdentity()
	if id == nil {
		return ErrAuthRequired
	}
	if s.instance() != "" {
		return ErrAlreadyJoined
	}

	requested := id.DisplayName
	if in.DisplayName != nil {
		requested = *in.DisplayName
	}
	name, err := validate.DisplayName(requested)
	if err != nil {
		return err
	}

	key := in.WorldID
	if in.InstanceID != "" {
		key = in.InstanceID
	}
	if err := validate.InstanceKey(key); err != nil {
		return err
	}

	return s.hub.join(ctx, s, id, name, in, req)
}

// join admits s into an instance. Nothing is registered unless every step
// succeeds.
func (h *Hub) join(ctx context.Context, s *Session, id *auth.Identity, name string, in joinRequest, req request) error {
	inst, lock, err := h.reserve(ctx, id, in)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	leaveGroup, err := h.publisher.Join(inst.ID, s.id, s.deliver)
	if err != nil {
		if _, uerr := h.instances.UpdateUserCount(inst.ID, -1); uerr != nil {
			slog.WarnContext(ctx, "releasing reserved slot", "instanceId", inst.ID, "error", uerr)
		}
		return err
	}

	participant := h.participants.Add(s.id, inst.ID, presence.Participant{
		PersistentUserID: id.UserID,
		DisplayName:      name,
		AvatarURL:        id.AvatarURL,
		Status:           presence.StatusOnline,
		CursorState:      presence.CursorDefault,
	})
	s.attach(inst.ID, leaveGroup)

	s.reply(req, joinReply{Success: true, ParticipantID: s.id, InstanceID: inst.ID})

	s.emit(EventUsersUpdate, h.participants.ParticipantsIn(inst.ID))

	var active []string
	if tmpl, ok := h.instances.Templates().Template(inst.TemplateID); ok {
		active = tmpl.DependencyNames()
	}
	if active == nil {
		active = []string{}
	}
	s.emit(EventWorldSnapshot, snapshot{
		Entities:             h.entities.Snapshot(inst.ID),
		AvailablePluginKinds: h.availablePlugins(),
		ActivePlugins:        active,
		Environment:          h.instances.Environment(inst.TemplateID),
	})

	h.broadcast(ctx, inst.ID, EventParticipantJoined, participant, s.id)
	h.broadcast(ctx, inst.ID, EventInstanceUpdated, instanceUpdated{
		InstanceID:   inst.ID,
		CurrentUsers: inst.CurrentUsers,
		MaxUsers:     inst.MaxUsers,
		Status:       inst.Status,
	}, "")

	h.record(journal.Fact{
		Kind:         journal.KindParticipantJoined,
		InstanceID:   inst.ID,
		UserID:       id.UserID,
		ConnectionID: s.id,
		Detail:       map[string]string{"name": name},
	})

	slog.InfoContext(ctx, "participant joined",
		"connectionId", s.id, "userId", id.UserID, "instanceId", inst.ID, "users", inst.CurrentUsers)

	return nil
}

// reserve finds or creates the instance to join and takes a slot in it.
// On success the instance lock is held and returned.
func (h *Hub) reserve(ctx context.Context, id *auth.Identity, in joinRequest) (instance.Instance, *sync.Mutex, error) {
	if in.InstanceID != "" {
		return h.admit(in.InstanceID)
	}

	for _, candidate := range h.instances.FindByTemplate(in.WorldID) {
		if candidate.Status != instance.StatusActive {
			continue
		}
		inst, lock, err := h.admit(candidate.ID)
		if err == nil {
			return inst, lock, nil
		}
		if !errors.Is(err, instance.ErrFull) && !errors.Is(err, instance.ErrNotFound) {
			return instance.Instance{}, nil, err
		}
	}

	created, err := h.instances.Create(ctx, in.WorldID, id.UserID, instance.Settings{})
	if err != nil {
		return instance.Instance{}, nil, err
	}
	h.record(journal.Fact{
		Kind:       journal.KindInstanceCreated,
		InstanceID: created.ID,
		UserID:     id.UserID,
		Detail:     map[string]string{"worldId": created.TemplateID},
	})

	return h.admit(created.ID)
}

func (h *Hub) admit(instanceID string) (instance.Instance, *sync.Mutex, error) {
	lock := h.lockFor(instanceID)
	lock.Lock()

	inst, err := h.instances.Admit(instanceID)
	if err != nil {
		if errors.Is(err, instance.ErrNotFound) {
			h.dropLock(instanceID)
		}
		lock.Unlock()
		return instance.Instance{}, nil, err
	}
	return inst, lock, nil
}

func handleLeave(ctx context.Context, s *Session, req request) error {
	if s.instance() == "" {
		return ErrNotJoined
	}
	s.hub.leave(ctx, s)
	s.reply(req, leaveReply{Success: true})
	return nil
}

// leave removes s from its instance: presence goes first, then any locks it
// held are released and the rest of the group is told. It is a no-op for a
// session that never joined.
func (h *Hub) leave(ctx context.Context, s *Session) {
	instanceID := s.instance()
	if instanceID == "" {
		return
	}

	lock := h.lockFor(instanceID)
	lock.Lock()
	defer lock.Unlock()

	// An eviction may have raced us to the lock.
	if s.instance() != instanceID {
		return
	}
	if leaveGroup := s.detach(); leaveGroup != nil {
		leaveGroup()
	}

	participant, _, ok := h.participants.Remove(s.id)
	if !ok {
		return
	}

	for _, e := range h.entities.FindLockedBy(instanceID, s.id) {
		released, err := h.releaseLock(instanceID, e.ID, s.id)
		if err != nil || released == nil {
			continue
		}
		h.broadcast(ctx, instanceID, EventEntityPatched, entityPatch{EntityID: e.ID, Patch: *released}, "")
	}

	h.broadcast(ctx, instanceID, EventParticipantLeft, s.id, s.id)

	count, err := h.instances.UpdateUserCount(instanceID, -1)
	switch {
	case err != nil:
		slog.DebugContext(ctx, "instance already gone", "instanceId", instanceID, "error", err)
	case count > 0:
		if inst, ok := h.instances.Get(instanceID); ok {
			h.broadcast(ctx, instanceID, EventInstanceUpdated, instanceUpdated{
				InstanceID:   inst.ID,
				CurrentUsers: inst.CurrentUsers,
				MaxUsers:     inst.MaxUsers,
				Status:       inst.Status,
			}, "")
		}
	}

	h.record(journal.Fact{
		Kind:         journal.KindParticipantLeft,
		InstanceID:   instanceID,
		UserID:       participant.PersistentUserID,
		ConnectionID: s.id,
	})

	slog.InfoContext(ctx, "participant left",
		"connectionId", s.id, "userId", participant.PersistentUserID, "instanceId", instanceID, "users", count)
}
