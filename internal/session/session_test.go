package session

import (
	"encoding/json"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pixil98/go-testutil"

	"github.com/pixil98/ubichill/internal/instance"
	"github.com/pixil98/ubichill/internal/journal"
	"github.com/pixil98/ubichill/internal/presence"
	"github.com/pixil98/ubichill/internal/world"
)

func strPtr(s string) *string { return &s }

func TestJoin_Rejected(t *testing.T) {
	tests := map[string]struct {
		token  string
		req    joinRequest
		expErr string
	}{
		"empty display name": {
			token:  "carol",
			req:    joinRequest{WorldID: "room", DisplayName: strPtr("")},
			expErr: "name is required",
		},
		"blank display name": {
			token:  "carol",
			req:    joinRequest{WorldID: "room", DisplayName: strPtr("   ")},
			expErr: "name is required",
		},
		"display name too long": {
			token:  "carol",
			req:    joinRequest{WorldID: "room", DisplayName: strPtr(strings.Repeat("a", 51))},
			expErr: "name must be at most 50 characters",
		},
		"bad world key": {
			token: "carol",
			req:   joinRequest{WorldID: "room one!", DisplayName: strPtr("Carol")},
		},
		"missing world": {
			token: "carol",
			req:   joinRequest{DisplayName: strPtr("Carol")},
		},
		"unknown world": {
			token:  "carol",
			req:    joinRequest{WorldID: "nowhere", DisplayName: strPtr("Carol")},
			expErr: "world not found",
		},
		"unknown instance": {
			token:  "carol",
			req:    joinRequest{InstanceID: "inst-99", DisplayName: strPtr("Carol")},
			expErr: "instance not found",
		},
		"not authenticated": {
			req:    joinRequest{WorldID: "room", DisplayName: strPtr("Carol")},
			expErr: "auth required",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			observer, joined := h.joinAs("alice", "Alice", joinRequest{WorldID: "room"})

			c := h.connect(tt.token)
			reply := decodeInto[joinReply](t, c.request(EventJoin, tt.req))

			testutil.AssertEqual(t, "success", reply.Success, false)
			if reply.Error == "" {
				t.Error("expected an error message")
			}
			if tt.expErr != "" {
				testutil.AssertEqual(t, "error", reply.Error, tt.expErr)
			}
			testutil.AssertEqual(t, "registered", h.registry.Count(), 1)
			testutil.AssertEqual(t, "snapshot sent", len(c.all(EventWorldSnapshot)), 0)

			h.hub.mu.Lock()
			_, leaked := h.hub.locks["inst-99"]
			h.hub.mu.Unlock()
			testutil.AssertEqual(t, "lock for unknown instance", leaked, false)

			// A later valid join proves the observer saw nothing before it.
			h.joinAs("dave", "Dave", joinRequest{InstanceID: joined.InstanceID})
			observer.waitFor(func(r received) bool {
				return r.Event == EventParticipantJoined && strings.Contains(string(r.Data), "guest-dave")
			})
			testutil.AssertEqual(t, "joined broadcasts", len(observer.all(EventParticipantJoined)), 1)
		})
	}
}

func TestJoin_Success(t *testing.T) {
	h := newHarness(t)

	a := h.connect("alice")
	reply := decodeInto[joinReply](t, a.request(EventJoin, joinRequest{WorldID: "room", DisplayName: strPtr("  Alice  ")}))
	testutil.AssertEqual(t, "reply", reply, joinReply{Success: true, ParticipantID: "conn-1", InstanceID: "inst-1"})

	users := decodeInto[[]presence.Participant](t, a.waitEvent(EventUsersUpdate).Data)
	testutil.AssertEqual(t, "users", len(users), 1)
	testutil.AssertEqual(t, "user id", users[0].PersistentUserID, "guest-alice")
	testutil.AssertEqual(t, "connection id", users[0].ConnectionID, "conn-1")
	testutil.AssertEqual(t, "name", users[0].DisplayName, "Alice")
	testutil.AssertEqual(t, "status", users[0].Status, presence.StatusOnline)

	snap := decodeInto[snapshot](t, a.waitEvent(EventWorldSnapshot).Data)
	testutil.AssertEqual(t, "entities", len(snap.Entities), 1)
	testutil.AssertEqual(t, "seeded type", snap.Entities[0].Type, "pen:tray")
	assertDeepEqual(t, "available", snap.AvailablePluginKinds, []string{"pen:pen", "avatar"})
	assertDeepEqual(t, "active", snap.ActivePlugins, []string{"pen:pen"})
	testutil.AssertEqual(t, "environment", snap.Environment, instance.DefaultEnvironment())

	b, replyB := h.joinAs("bob", "Bob", joinRequest{WorldID: "room"})
	testutil.AssertEqual(t, "same instance", replyB.InstanceID, "inst-1")

	joined := decodeInto[presence.Participant](t, a.waitEvent(EventParticipantJoined).Data)
	testutil.AssertEqual(t, "joined id", joined.ConnectionID, "conn-2")
	testutil.AssertEqual(t, "joined user", joined.PersistentUserID, "guest-bob")

	updated := a.waitFor(func(r received) bool {
		return r.Event == EventInstanceUpdated && decodeInto[instanceUpdated](t, r.Data).CurrentUsers == 2
	})
	testutil.AssertEqual(t, "max users", decodeInto[instanceUpdated](t, updated.Data).MaxUsers, 10)

	usersB := decodeInto[[]presence.Participant](t, b.waitEvent(EventUsersUpdate).Data)
	testutil.AssertEqual(t, "users seen by bob", len(usersB), 2)
	testutil.AssertEqual(t, "join order", usersB[0].ConnectionID, "conn-1")
	testutil.AssertEqual(t, "bob told of himself", len(b.all(EventParticipantJoined)), 0)

	inst, _ := h.instances.Get("inst-1")
	testutil.AssertEqual(t, "current users", inst.CurrentUsers, 2)
	assertDeepEqual(t, "journal", h.journal.kinds(), []journal.Kind{
		journal.KindInstanceCreated,
		journal.KindParticipantJoined,
		journal.KindParticipantJoined,
	})
}

func TestJoin_DisplayNameFallsBackToIdentity(t *testing.T) {
	h := newHarness(t)
	c := h.connect("alice")

	reply := decodeInto[joinReply](t, c.request(EventJoin, joinRequest{WorldID: "room"}))
	testutil.AssertEqual(t, "success", reply.Success, true)

	p, _ := h.registry.Get(reply.ParticipantID)
	testutil.AssertEqual(t, "name", p.DisplayName, "Guest")
}

func TestJoin_AlreadyJoined(t *testing.T) {
	h := newHarness(t)
	a, _ := h.joinAs("alice", "Alice", joinRequest{WorldID: "room"})

	reply := decodeInto[joinReply](t, a.request(EventJoin, joinRequest{WorldID: "room", DisplayName: strPtr("Alice")}))
	testutil.AssertEqual(t, "error", reply.Error, "already joined")

	inst, _ := h.instances.Get("inst-1")
	testutil.AssertEqual(t, "current users", inst.CurrentUsers, 1)
}

func TestJoin_Capacity(t *testing.T) {
	h := newHarness(t)

	_, first := h.joinAs("alice", "Alice", joinRequest{WorldID: "duo"})
	h.joinAs("bob", "Bob", joinRequest{WorldID: "duo"})

	inst, _ := h.instances.Get(first.InstanceID)
	testutil.AssertEqual(t, "status", inst.Status, instance.StatusFull)
	testutil.AssertEqual(t, "listed", len(h.instances.List(instance.Filter{})), 0)
	testutil.AssertEqual(t, "listed with full", len(h.instances.List(instance.Filter{IncludeFull: true})), 1)

	c := h.connect("carol")
	reply := decodeInto[joinReply](t, c.request(EventJoin, joinRequest{InstanceID: first.InstanceID, DisplayName: strPtr("Carol")}))
	testutil.AssertEqual(t, "error", reply.Error, "instance is full")

	// Joining by world opens a fresh instance instead.
	reply = decodeInto[joinReply](t, c.request(EventJoin, joinRequest{WorldID: "duo", DisplayName: strPtr("Carol")}))
	testutil.AssertEqual(t, "success", reply.Success, true)
	if reply.InstanceID == first.InstanceID {
		t.Error("expected a new instance")
	}
}

func TestCursorMove(t *testing.T) {
	tests := map[string]struct {
		data   any
		expErr string
	}{
		"valid": {
			data: map[string]any{"position": map[string]any{"x": 10, "y": 20}, "state": "pointer"},
		},
		"out of range": {
			data:   map[string]any{"position": map[string]any{"x": 1e9, "y": 20}},
			expErr: "position must be between -10000 and 100000",
		},
		"bad cursor state": {
			data:   map[string]any{"position": map[string]any{"x": 1, "y": 2}, "state": "dancing"},
			expErr: "cursor state must be one of: default, pointer, text, wait, help, not-allowed, move, grabbing",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			a, _ := h.joinAs("alice", "Alice", joinRequest{WorldID: "room"})
			b, _ := h.joinAs("bob", "Bob", joinRequest{WorldID: "room"})

			a.send(EventCursorMove, tt.data)

			if tt.expErr != "" {
				got := decodeInto[string](t, a.waitEvent(EventError).Data)
				testutil.AssertEqual(t, "error", got, tt.expErr)
				p, _ := h.registry.Get("conn-1")
				testutil.AssertEqual(t, "position untouched", p.Position, presence.Position{})
				return
			}

			moved := decodeInto[cursorMoved](t, b.waitEvent(EventCursorMoved).Data)
			testutil.AssertEqual(t, "participant", moved.ParticipantID, "conn-1")
			testutil.AssertEqual(t, "position", moved.Position, presence.Position{X: 10, Y: 20})
			testutil.AssertEqual(t, "state", *moved.State, presence.CursorPointer)

			p, _ := h.registry.Get("conn-1")
			testutil.AssertEqual(t, "stored position", p.Position, presence.Position{X: 10, Y: 20})

			a.request(EventLeave, nil)
			testutil.AssertEqual(t, "sender excluded", len(a.all(EventCursorMoved)), 0)
		})
	}
}

func TestMemberEvents_RequireJoin(t *testing.T) {
	events := []string{
		EventCursorMove, EventStatusUpdate, EventUserUpdate,
		EventEntityPatch, EventEntityDelete, EventEntityEphemeral,
	}

	for _, event := range events {
		t.Run(event, func(t *testing.T) {
			h := newHarness(t)
			c := h.connect("alice")

			c.send(event, "x")
			got := decodeInto[string](t, c.waitEvent(EventError).Data)
			testutil.AssertEqual(t, "error", got, "join first")
		})
	}

	t.Run(EventEntityCreate, func(t *testing.T) {
		h := newHarness(t)
		c := h.connect("alice")

		reply := decodeInto[createReply](t, c.request(EventEntityCreate, world.Entity{Type: "pen:stroke"}))
		testutil.AssertEqual(t, "error", reply.Error, "join first")
	})
}

func TestStatusUpdate(t *testing.T) {
	tests := map[string]struct {
		status string
		expErr string
	}{
		"away":    {status: "away"},
		"offline": {status: "offline"},
		"unknown": {status: "sleeping", expErr: "status must be one of: online, away, busy, offline"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			a, _ := h.joinAs("alice", "Alice", joinRequest{WorldID: "room"})
			b, _ := h.joinAs("bob", "Bob", joinRequest{WorldID: "room"})

			a.send(EventStatusUpdate, tt.status)

			if tt.expErr != "" {
				got := decodeInto[string](t, a.waitEvent(EventError).Data)
				testutil.AssertEqual(t, "error", got, tt.expErr)
				return
			}

			changed := decodeInto[statusChanged](t, b.waitEvent(EventStatusChanged).Data)
			testutil.AssertEqual(t, "changed", changed, statusChanged{ParticipantID: "conn-1", Status: presence.Status(tt.status)})

			p, _ := h.registry.Get("conn-1")
			testutil.AssertEqual(t, "stored", p.Status, presence.Status(tt.status))
		})
	}
}

func TestUserUpdate_BroadcastsToEveryone(t *testing.T) {
	h := newHarness(t)
	a, _ := h.joinAs("alice", "Alice", joinRequest{WorldID: "room"})
	b, _ := h.joinAs("bob", "Bob", joinRequest{WorldID: "room"})

	a.send(EventUserUpdate, map[string]any{
		"avatarUrl":  "https://example.com/a.png",
		"isMenuOpen": true,
		"userId":     "someone-else",
		"name":       "Mallory",
	})

	for name, c := range map[string]*client{"sender": a, "other": b} {
		p := decodeInto[presence.Participant](t, c.waitEvent(EventUserUpdated).Data)
		testutil.AssertEqual(t, name+" avatar", p.AvatarURL, "https://example.com/a.png")
		testutil.AssertEqual(t, name+" menu", p.IsMenuOpen, true)
		testutil.AssertEqual(t, name+" user id", p.PersistentUserID, "guest-alice")
		testutil.AssertEqual(t, name+" name", p.DisplayName, "Alice")
	}
}

func TestEntityLifecycle(t *testing.T) {
	h := newHarness(t)
	a, joined := h.joinAs("alice", "Alice", joinRequest{WorldID: "room"})
	b, _ := h.joinAs("bob", "Bob", joinRequest{WorldID: "room"})

	reply := decodeInto[createReply](t, a.request(EventEntityCreate, map[string]any{
		"id":        "client-chosen",
		"type":      "sticky-note",
		"transform": map[string]any{"x": 0, "y": 10, "w": 100, "h": 100, "scale": 1},
		"data":      map[string]any{"color": "yellow"},
	}))
	testutil.AssertEqual(t, "success", reply.Success, true)
	e := *reply.Entity
	testutil.AssertEqual(t, "server id", e.ID, "ent-2")

	for name, c := range map[string]*client{"sender": a, "other": b} {
		created := decodeInto[world.Entity](t, c.waitEvent(EventEntityCreated).Data)
		testutil.AssertEqual(t, name+" created", created.ID, e.ID)
	}

	a.send(EventEntityPatch, map[string]any{"entityId": e.ID, "patch": map[string]any{"data": map[string]any{"color": "red"}}})
	patched := b.waitEvent(EventEntityPatched)
	testutil.AssertEqual(t, "minimal patch", string(patched.Data), `{"entityId":"ent-2","patch":{"data":{"color":"red"}}}`)

	a.send(EventEntityPatch, map[string]any{"entityId": e.ID, "patch": map[string]any{"transform": map[string]any{"x": 5}}})
	b.waitFor(func(r received) bool {
		return r.Event == EventEntityPatched && strings.Contains(string(r.Data), "transform")
	})

	stored, _ := h.store.Get(joined.InstanceID, e.ID)
	testutil.AssertEqual(t, "data", stored.Data["color"], any("red"))
	testutil.AssertEqual(t, "transform merged", stored.Transform, world.Transform{X: 5, Y: 10, W: 100, H: 100, Scale: 1})

	a.send(EventEntityDelete, e.ID)
	for name, c := range map[string]*client{"sender": a, "other": b} {
		deleted := decodeInto[string](t, c.waitEvent(EventEntityDeleted).Data)
		testutil.AssertEqual(t, name+" deleted", deleted, e.ID)
	}
	_, ok := h.store.Get(joined.InstanceID, e.ID)
	testutil.AssertEqual(t, "gone", ok, false)

	a.send(EventEntityPatch, map[string]any{"entityId": e.ID, "patch": map[string]any{"data": map[string]any{}}})
	testutil.AssertEqual(t, "patch missing", decodeInto[string](t, a.waitEvent(EventError).Data), "entity not found")

	testutil.AssertEqual(t, "sender gets no patch echo", len(a.all(EventEntityPatched)), 0)
}

func TestEntityCreate_Invalid(t *testing.T) {
	h := newHarness(t)
	a, _ := h.joinAs("alice", "Alice", joinRequest{WorldID: "room"})

	reply := decodeInto[createReply](t, a.request(EventEntityCreate, map[string]any{"data": map[string]any{}}))
	testutil.AssertEqual(t, "success", reply.Success, false)
	if reply.Error == "" {
		t.Error("expected an error message")
	}
	testutil.AssertEqual(t, "stored", len(h.store.Snapshot("inst-1")), 1)
}

func TestEntityEphemeral_RelayedNotStored(t *testing.T) {
	h := newHarness(t)
	a, joined := h.joinAs("alice", "Alice", joinRequest{WorldID: "room"})
	b, _ := h.joinAs("bob", "Bob", joinRequest{WorldID: "room"})

	before := h.store.Snapshot(joined.InstanceID)
	a.send(EventEntityEphemeral, map[string]any{"entityId": "ent-1", "data": map[string]any{"points": []int{1, 2, 3}}})

	got := b.waitEvent(EventEntityEphemeral)
	testutil.AssertEqual(t, "relayed", string(got.Data), `{"entityId":"ent-1","data":{"points":[1,2,3]}}`)
	assertDeepEqual(t, "store untouched", h.store.Snapshot(joined.InstanceID), before)
}

func TestDisconnect_ReleasesLocks(t *testing.T) {
	h := newHarness(t)
	a, joined := h.joinAs("alice", "Alice", joinRequest{WorldID: "room"})
	b, _ := h.joinAs("bob", "Bob", joinRequest{WorldID: "room"})

	reply := decodeInto[createReply](t, a.request(EventEntityCreate, map[string]any{
		"type":      "pen:pen",
		"lockedBy":  "conn-1",
		"transform": map[string]any{"x": 40, "y": 50},
		"data":      map[string]any{"isHeld": true, "color": "blue"},
	}))
	held := reply.Entity.ID
	b.waitEvent(EventEntityCreated)

	a.disconnect()

	left := decodeInto[string](t, b.waitEvent(EventParticipantLeft).Data)
	testutil.AssertEqual(t, "left", left, "conn-1")

	releases := b.all(EventEntityPatched)
	testutil.AssertEqual(t, "release broadcasts", len(releases), 1)
	release := decodeInto[struct {
		EntityID string          `json:"entityId"`
		Patch    json.RawMessage `json:"patch"`
	}](t, releases[0].Data)
	testutil.AssertEqual(t, "released entity", release.EntityID, held)
	testutil.AssertEqual(t, "release patch", string(release.Patch), `{"lockedBy":null,"data":{"color":"blue","isHeld":false}}`)

	stored, _ := h.store.Get(joined.InstanceID, held)
	testutil.AssertEqual(t, "lock cleared", stored.LockedBy == nil, true)
	testutil.AssertEqual(t, "held flag", stored.Data["isHeld"], any(false))
	testutil.AssertEqual(t, "position kept", stored.Transform.X, 40.0)

	_, ok := h.registry.Get("conn-1")
	testutil.AssertEqual(t, "presence removed", ok, false)
	inst, _ := h.instances.Get(joined.InstanceID)
	testutil.AssertEqual(t, "current users", inst.CurrentUsers, 1)
}

func TestOccupancyLifecycle(t *testing.T) {
	h := newHarness(t)
	a, joined := h.joinAs("alice", "Alice", joinRequest{WorldID: "duo"})
	b, _ := h.joinAs("bob", "Bob", joinRequest{WorldID: "duo"})

	a.disconnect()
	_, ok := h.instances.Get(joined.InstanceID)
	testutil.AssertEqual(t, "alive with one member", ok, true)

	b.disconnect()
	_, ok = h.instances.Get(joined.InstanceID)
	testutil.AssertEqual(t, "removed when empty", ok, false)
	testutil.AssertEqual(t, "entities cleared", len(h.store.Snapshot(joined.InstanceID)), 0)

	testutil.AssertEqual(t, "closed fact", slices.Contains(h.journal.kinds(), journal.KindInstanceClosed), true)
}

func TestLockEnforcement(t *testing.T) {
	tests := map[string]struct {
		enforce bool
		expErr  string
	}{
		"advisory by default": {},
		"enforced": {
			enforce: true,
			expErr:  "entity is locked by another participant",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, WithEnforceLocks(tt.enforce))
			a, joined := h.joinAs("alice", "Alice", joinRequest{WorldID: "room"})
			b, _ := h.joinAs("bob", "Bob", joinRequest{WorldID: "room"})

			reply := decodeInto[createReply](t, a.request(EventEntityCreate, map[string]any{"type": "pen:pen", "lockedBy": "conn-1"}))
			id := reply.Entity.ID

			b.send(EventEntityPatch, map[string]any{"entityId": id, "patch": map[string]any{"data": map[string]any{"color": "red"}}})
			b.send(EventEntityDelete, id)

			if tt.expErr == "" {
				a.waitEvent(EventEntityDeleted)
				return
			}

			b.waitFor(func(r received) bool { return len(b.all(EventError)) == 2 })
			for _, r := range b.all(EventError) {
				testutil.AssertEqual(t, "error", decodeInto[string](t, r.Data), tt.expErr)
			}
			stored, ok := h.store.Get(joined.InstanceID, id)
			testutil.AssertEqual(t, "still there", ok, true)
			testutil.AssertEqual(t, "data untouched", len(stored.Data), 0)

			// The holder itself may still write.
			a.send(EventEntityDelete, id)
			b.waitEvent(EventEntityDeleted)
		})
	}
}

func TestInstanceClose_EvictsMembers(t *testing.T) {
	h := newHarness(t)
	a, joined := h.joinAs("alice", "Alice", joinRequest{WorldID: "room"})
	b, _ := h.joinAs("bob", "Bob", joinRequest{WorldID: "room"})

	err := h.instances.Close(joined.InstanceID, "guest-bob")
	testutil.AssertEqual(t, "non leader", err, instance.ErrNotLeader, cmpopts.EquateErrors())

	if err := h.instances.Close(joined.InstanceID, "guest-alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "second close", h.instances.Close(joined.InstanceID, "guest-alice"), instance.ErrNotFound, cmpopts.EquateErrors())

	for name, c := range map[string]*client{"leader": a, "member": b} {
		reason := decodeInto[string](t, c.waitEvent(EventInstanceClosing).Data)
		testutil.AssertEqual(t, name+" reason", reason, string(instance.ReasonClosedByLeader))
	}
	testutil.AssertEqual(t, "presence cleared", h.registry.Count(), 0)

	// Evicted sessions are back to authenticated and may join again.
	reply := decodeInto[joinReply](t, a.request(EventJoin, joinRequest{WorldID: "room", DisplayName: strPtr("Alice")}))
	testutil.AssertEqual(t, "rejoin", reply.Success, true)
	testutil.AssertEqual(t, "new instance", reply.InstanceID, "inst-2")
}

func TestInstanceClose_PendingWriteDoesNotRecreatePartition(t *testing.T) {
	h := newHarness(t)
	a, joined := h.joinAs("alice", "Alice", joinRequest{WorldID: "room"})
	id := joined.InstanceID

	lock := h.hub.lockFor(id)
	lock.Lock()

	a.nextAck++
	ack := a.nextAck
	a.conn.in <- mustFrame(t, EventEntityCreate, &ack, map[string]any{"type": "sticky-note"})
	time.Sleep(20 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- h.instances.Close(id, "guest-alice") }()

	deadline := time.Now().Add(waitTimeout)
	for len(h.store.Snapshot(id)) > 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	lock.Unlock()

	if err := <-closed; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reply := a.waitFor(func(r received) bool {
		return r.Event == EventAck && r.Ack != nil && *r.Ack == ack
	})
	created := decodeInto[createReply](t, reply.Data)
	testutil.AssertEqual(t, "success", created.Success, false)
	testutil.AssertEqual(t, "error", created.Error, ErrNotJoined.Message)

	testutil.AssertEqual(t, "partition entities", len(h.store.Snapshot(id)), 0)
	testutil.AssertEqual(t, "store entities", h.store.Count(), 0)
	testutil.AssertEqual(t, "created broadcasts", len(a.all(EventEntityCreated)), 0)
}

func TestAuthEvent(t *testing.T) {
	h := newHarness(t)
	c := h.connect("")

	reply := decodeInto[joinReply](t, c.request(EventJoin, joinRequest{WorldID: "room", DisplayName: strPtr("Bob")}))
	testutil.AssertEqual(t, "before auth", reply.Error, "auth required")

	bad := decodeInto[authReply](t, c.request(EventAuth, authRequest{Token: "not valid!"}))
	testutil.AssertEqual(t, "bad token", bad, authReply{Error: "invalid token"})

	ok := decodeInto[authReply](t, c.request(EventAuth, authRequest{Token: "bob"}))
	testutil.AssertEqual(t, "good token", ok, authReply{Success: true, UserID: "guest-bob"})

	reply = decodeInto[joinReply](t, c.request(EventJoin, joinRequest{WorldID: "room", DisplayName: strPtr("Bob")}))
	testutil.AssertEqual(t, "after auth", reply.Success, true)
}

func TestLeaveEvent(t *testing.T) {
	h := newHarness(t)
	a, joined := h.joinAs("alice", "Alice", joinRequest{WorldID: "room"})
	b, _ := h.joinAs("bob", "Bob", joinRequest{WorldID: "room"})

	reply := decodeInto[leaveReply](t, a.request(EventLeave, nil))
	testutil.AssertEqual(t, "left", reply, leaveReply{Success: true})
	b.waitEvent(EventParticipantLeft)

	again := decodeInto[leaveReply](t, a.request(EventLeave, nil))
	testutil.AssertEqual(t, "not joined", again.Error, "join first")

	rejoin := decodeInto[joinReply](t, a.request(EventJoin, joinRequest{InstanceID: joined.InstanceID, DisplayName: strPtr("Alice")}))
	testutil.AssertEqual(t, "rejoined", rejoin.Success, true)
	testutil.AssertEqual(t, "same participant id", rejoin.ParticipantID, "conn-1")
}

func TestMalformedFrames(t *testing.T) {
	tests := map[string]struct {
		frame  string
		expErr string
	}{
		"not json":        {frame: "{nope", expErr: "malformed message"},
		"no event":        {frame: `{"data":1}`, expErr: "malformed message"},
		"unknown event":   {frame: `{"event":"teleport"}`, expErr: "unknown event: teleport"},
		"wrong data type": {frame: `{"event":"auth","data":"x"}`, expErr: "malformed message"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			c := h.connect("alice")

			c.raw(tt.frame)
			testutil.AssertEqual(t, "error", decodeInto[string](t, c.waitEvent(EventError).Data), tt.expErr)

			// The connection stays usable.
			reply := decodeInto[joinReply](t, c.request(EventJoin, joinRequest{WorldID: "room", DisplayName: strPtr("Alice")}))
			testutil.AssertEqual(t, "join after error", reply.Success, true)
		})
	}
}

func TestHub_Count(t *testing.T) {
	h := newHarness(t)
	a, _ := h.joinAs("alice", "Alice", joinRequest{WorldID: "room"})
	testutil.AssertEqual(t, "open", h.hub.Count(), 1)

	a.disconnect()
	testutil.AssertEqual(t, "closed", h.hub.Count(), 0)
}
