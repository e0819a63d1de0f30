package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pixil98/ubichill/internal/auth"
	"github.com/pixil98/ubichill/internal/instance"
	"github.com/pixil98/ubichill/internal/journal"
	"github.com/pixil98/ubichill/internal/messaging"
	"github.com/pixil98/ubichill/internal/presence"
	"github.com/pixil98/ubichill/internal/world"
)

const waitTimeout = 5 * time.Second

type fakeConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu  sync.Mutex
	out [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = append(c.out, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) frames() []received {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]received, 0, len(c.out))
	for _, raw := range c.out {
		var r received
		_ = json.Unmarshal(raw, &r)
		out = append(out, r)
	}
	return out
}

type received struct {
	Event string          `json:"event"`
	Ack   *int64          `json:"ack"`
	Data  json.RawMessage `json:"data"`
}

type client struct {
	t       *testing.T
	conn    *fakeConn
	done    chan error
	nextAck int64
}

func (c *client) send(event string, data any) {
	c.t.Helper()
	c.conn.in <- mustFrame(c.t, event, nil, data)
}

// request sends event with an ack id and waits for the matching ack.
func (c *client) request(event string, data any) json.RawMessage {
	c.t.Helper()
	c.nextAck++
	id := c.nextAck
	c.conn.in <- mustFrame(c.t, event, &id, data)

	r := c.waitFor(func(r received) bool {
		return r.Event == EventAck && r.Ack != nil && *r.Ack == id
	})
	return r.Data
}

func (c *client) raw(msg string) {
	c.conn.in <- []byte(msg)
}

// waitFor blocks until a frame matching match has been written.
func (c *client) waitFor(match func(received) bool) received {
	c.t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		for _, r := range c.conn.frames() {
			if match(r) {
				return r
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	c.t.Fatalf("timed out waiting for frame; got %v", c.events())
	return received{}
}

func (c *client) waitEvent(event string) received {
	c.t.Helper()
	return c.waitFor(func(r received) bool { return r.Event == event })
}

func (c *client) all(event string) []received {
	out := make([]received, 0)
	for _, r := range c.conn.frames() {
		if r.Event == event {
			out = append(out, r)
		}
	}
	return out
}

func (c *client) events() []string {
	out := make([]string, 0)
	for _, r := range c.conn.frames() {
		out = append(out, r.Event)
	}
	return out
}

// disconnect drops the transport and waits for the session to clean up.
func (c *client) disconnect() {
	c.t.Helper()
	c.conn.Close()
	select {
	case <-c.done:
	case <-time.After(waitTimeout):
		c.t.Fatal("session did not end")
	}
}

func assertDeepEqual(t *testing.T, name string, got, exp any) {
	t.Helper()
	if !reflect.DeepEqual(got, exp) {
		t.Errorf("%s: got %v, expected %v", name, got, exp)
	}
}

func mustFrame(t *testing.T, event string, ack *int64, data any) []byte {
	t.Helper()
	b, err := json.Marshal(request{Event: event, Ack: ack, Data: mustJSON(t, data)})
	if err != nil {
		t.Fatalf("encoding frame: %v", err)
	}
	return b
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("encoding payload: %v", err)
	}
	return b
}

func decodeInto[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decoding %s: %v", raw, err)
	}
	return v
}

type templates map[string]*instance.Template

func (f templates) Template(id string) (*instance.Template, bool) {
	t, ok := f[id]
	return t, ok
}

func (f templates) Templates() []*instance.Template {
	out := make([]*instance.Template, 0, len(f))
	for _, t := range f {
		out = append(out, t)
	}
	return out
}

type memoryJournal struct {
	mu    sync.Mutex
	facts []journal.Fact
}

func (j *memoryJournal) Record(f journal.Fact) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.facts = append(j.facts, f)
	return true
}

func (j *memoryJournal) kinds() []journal.Kind {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]journal.Kind, 0, len(j.facts))
	for _, f := range j.facts {
		out = append(out, f.Kind)
	}
	return out
}

type harness struct {
	t         *testing.T
	ctx       context.Context
	hub       *Hub
	store     *world.Store
	registry  *presence.Registry
	instances *instance.Manager
	journal   *memoryJournal
}

func newHarness(t *testing.T, opts ...HubOpt) *harness {
	t.Helper()

	tmpls := templates{
		"room": {
			ID:          "room",
			Version:     "1.0.0",
			Capacity:    instance.Capacity{Default: 10, Max: 20},
			Environment: instance.DefaultEnvironment(),
			Dependencies: []instance.Dependency{
				{Name: "pen:pen"},
			},
			InitialEntities: []instance.InitialEntity{
				{Kind: "pen:tray", Transform: instance.InitialTransform{X: 10, Y: 20}},
			},
		},
		"duo": {
			ID:          "duo",
			Version:     "1.0.0",
			Capacity:    instance.Capacity{Default: 2, Max: 2},
			Environment: instance.DefaultEnvironment(),
		},
	}

	var connSeq, entitySeq atomic.Int64
	store := world.NewStore(world.WithIDGenerator(func() string {
		return fmt.Sprintf("ent-%d", entitySeq.Add(1))
	}))
	registry := presence.NewRegistry()
	var instSeq atomic.Int64
	mgr := instance.NewManager(tmpls, store, instance.WithIDGenerator(func() string {
		return fmt.Sprintf("inst-%d", instSeq.Add(1))
	}))
	j := &memoryJournal{}

	opts = append([]HubOpt{
		WithJournal(j),
		WithPluginKinds([]string{"pen:pen", "avatar"}),
		WithIDGenerator(func() string { return fmt.Sprintf("conn-%d", connSeq.Add(1)) }),
	}, opts...)

	hub := NewHub(store, registry, mgr, messaging.NewPublisher(messaging.NewLocalBus()), auth.GuestVerifier{}, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return &harness{
		t:         t,
		ctx:       ctx,
		hub:       hub,
		store:     store,
		registry:  registry,
		instances: mgr,
		journal:   j,
	}
}

// connect opens a session authenticated as token, or anonymous when token
// is empty.
func (h *harness) connect(token string) *client {
	h.t.Helper()
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	c := &client{t: h.t, conn: newFakeConn(), done: make(chan error, 1)}
	go func() { c.done <- h.hub.Serve(h.ctx, c.conn, header) }()
	h.t.Cleanup(func() { c.conn.Close() })
	return c
}

// joinAs connects token and joins worldID, returning the client and its
// join reply.
func (h *harness) joinAs(token, name string, req joinRequest) (*client, joinReply) {
	h.t.Helper()
	c := h.connect(token)
	if req.DisplayName == nil {
		req.DisplayName = &name
	}
	reply := decodeInto[joinReply](h.t, c.request(EventJoin, req))
	if !reply.Success {
		h.t.Fatalf("join failed: %s", reply.Error)
	}
	c.waitEvent(EventWorldSnapshot)
	return c, reply
}
