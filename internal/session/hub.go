package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/pixil98/ubichill/internal/auth"
	"github.com/pixil98/ubichill/internal/instance"
	"github.com/pixil98/ubichill/internal/journal"
	"github.com/pixil98/ubichill/internal/messaging"
	"github.com/pixil98/ubichill/internal/metrics"
	"github.com/pixil98/ubichill/internal/presence"
	"github.com/pixil98/ubichill/internal/world"
)

const DefaultOutboundBuffer = 256

// Conn is one client transport. ReadMessage blocks until a frame arrives or
// the connection fails; Close must unblock it.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Journal takes facts without blocking.
type Journal interface {
	Record(f journal.Fact) bool
}

// Hub wires client sessions to the shared stores. Mutations of an instance
// and the broadcasts they trigger happen under that instance's lock so
// every member sees them in commit order.
type Hub struct {
	entities     *world.Store
	participants *presence.Registry
	instances    *instance.Manager
	publisher    *messaging.Publisher
	verifier     auth.Verifier

	journal      Journal
	metrics      *metrics.Metrics
	enforceLocks bool
	pluginKinds  []string
	outbound     int
	cookieName   string
	newID        func() string

	mu       sync.Mutex
	sessions map[string]*Session
	locks    map[string]*sync.Mutex
}

func NewHub(entities *world.Store, participants *presence.Registry, instances *instance.Manager, publisher *messaging.Publisher, verifier auth.Verifier, opts ...HubOpt) *Hub {
	h := &Hub{
		entities:     entities,
		participants: participants,
		instances:    instances,
		publisher:    publisher,
		verifier:     verifier,
		pluginKinds:  []string{},
		outbound:     DefaultOutboundBuffer,
		cookieName:   auth.DefaultCookieName,
		newID:        uuid.NewString,
		sessions:     make(map[string]*Session),
		locks:        make(map[string]*sync.Mutex),
	}

	for _, opt := range opts {
		opt(h)
	}

	instances.OnClose(h.instanceClosed)

	return h
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Serve runs a session for conn until the client goes away or ctx ends.
// header carries the handshake credentials, if any.
func (h *Hub) Serve(ctx context.Context, conn Conn, header http.Header) error {
	s := newSession(h, h.newID(), conn)

	if h.verifier != nil && header != nil {
		id, err := auth.VerifyHeader(ctx, h.verifier, header, h.cookieName)
		switch {
		case err == nil:
			s.setIdentity(id)
		case errors.Is(err, auth.ErrNoCredentials):
		default:
			slog.WarnContext(ctx, "rejecting handshake credentials", "connectionId", s.id, "error", err)
		}
	}

	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()

	slog.DebugContext(ctx, "session opened", "connectionId", s.id, "authenticated", s.authenticated())

	defer func() {
		h.leave(ctx, s)

		h.mu.Lock()
		delete(h.sessions, s.id)
		h.mu.Unlock()

		slog.DebugContext(ctx, "session closed", "connectionId", s.id)
	}()

	return s.run(ctx)
}

func (h *Hub) lockFor(instanceID string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.locks[instanceID]
	if !ok {
		l = &sync.Mutex{}
		h.locks[instanceID] = l
	}
	return l
}

// dropLock forgets the lock of an instance that no longer exists. Ids are
// never reused, so a late holder of the old mutex cannot race a new one.
func (h *Hub) dropLock(instanceID string) {
	h.mu.Lock()
	delete(h.locks, instanceID)
	h.mu.Unlock()
}

// broadcast publishes data to every member of instanceID except exclude.
func (h *Hub) broadcast(ctx context.Context, instanceID, event string, data any, exclude string) {
	payload, err := encode(event, nil, data)
	if err != nil {
		slog.ErrorContext(ctx, "encoding broadcast", "event", event, "error", err)
		return
	}

	err = h.publisher.Publish(instanceID, messaging.Envelope{Event: event, Exclude: exclude, Frame: payload})
	if err != nil {
		slog.ErrorContext(ctx, "publishing broadcast", "event", event, "instanceId", instanceID, "error", err)
		return
	}
	h.metrics.Broadcast(event)
}

func (h *Hub) record(f journal.Fact) {
	if h.journal != nil {
		h.journal.Record(f)
	}
}

// instanceClosed runs after the manager removed an instance. Instances that
// emptied out were torn down by the last leave, which still holds the
// instance lock, so only leader and idle closes evict members here.
func (h *Hub) instanceClosed(inst instance.Instance, reason instance.CloseReason) {
	h.record(journal.Fact{
		Kind:       journal.KindInstanceClosed,
		InstanceID: inst.ID,
		UserID:     inst.LeaderID,
		Detail:     map[string]string{"reason": string(reason)},
	})

	if reason != instance.ReasonEmpty {
		h.evict(inst, reason)
	}

	h.dropLock(inst.ID)
}

func (h *Hub) evict(inst instance.Instance, reason instance.CloseReason) {
	lock := h.lockFor(inst.ID)
	lock.Lock()
	defer lock.Unlock()

	h.mu.Lock()
	members := make([]*Session, 0)
	for _, s := range h.sessions {
		if s.instance() == inst.ID {
			members = append(members, s)
		}
	}
	h.mu.Unlock()

	for _, s := range members {
		leaveGroup := s.detach()
		if leaveGroup != nil {
			leaveGroup()
		}
		h.participants.Remove(s.id)
		s.emit(EventInstanceClosing, string(reason))

		slog.Info("evicted participant", "connectionId", s.id, "instanceId", inst.ID, "reason", reason)
	}
}

func (h *Hub) availablePlugins() []string {
	return slices.Clone(h.pluginKinds)
}
