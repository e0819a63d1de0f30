package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pixil98/ubichill/internal/auth"
)

// Session is the protocol state of one client connection.
type Session struct {
	hub  *Hub
	id   string
	conn Conn

	out      chan []byte
	done     chan struct{}
	doneOnce sync.Once

	mu         sync.Mutex
	identity   *auth.Identity
	instanceID string
	leaveGroup func()
}

func newSession(h *Hub, id string, conn Conn) *Session {
	return &Session{
		hub:  h,
		id:   id,
		conn: conn,
		out:  make(chan []byte, h.outbound),
		done: make(chan struct{}),
	}
}

// ID returns the transport assigned connection id, which is also the
// participant id once joined.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) run(ctx context.Context) error {
	defer s.close()

	go s.writeLoop(ctx)

	inputChan := make(chan []byte)
	inputErrChan := make(chan error, 1)
	go func() {
		defer close(inputChan)
		for {
			msg, err := s.conn.ReadMessage()
			if err != nil {
				inputErrChan <- err
				return
			}
			select {
			case inputChan <- msg:
			case <-s.done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-s.done:
			return nil

		case msg, ok := <-inputChan:
			if !ok {
				select {
				case err := <-inputErrChan:
					slog.DebugContext(ctx, "connection read ended", "connectionId", s.id, "error", err)
				default:
				}
				return nil
			}
			s.dispatch(ctx, msg)
		}
	}
}

func (s *Session) writeLoop(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.out:
			if err := s.conn.WriteMessage(msg); err != nil {
				slog.DebugContext(ctx, "writing to connection", "connectionId", s.id, "error", err)
				s.close()
				return
			}
		}
	}
}

func (s *Session) close() {
	s.doneOnce.Do(func() {
		close(s.done)
		if err := s.conn.Close(); err != nil {
			slog.Debug("closing connection", "connectionId", s.id, "error", err)
		}
	})
}

// send queues an encoded frame. A client that cannot keep up is dropped.
func (s *Session) send(msg []byte) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.out <- msg:
	default:
		slog.Warn("outbound queue full, dropping connection", "connectionId", s.id)
		s.close()
	}
}

// deliver receives group broadcasts.
func (s *Session) deliver(_ string, msg []byte) {
	s.send(msg)
}

func (s *Session) emit(event string, data any) {
	msg, err := encode(event, nil, data)
	if err != nil {
		slog.Error("encoding event", "event", event, "error", err)
		return
	}
	s.send(msg)
}

func (s *Session) reply(req request, data any) {
	if req.Ack == nil {
		return
	}
	msg, err := encode(EventAck, req.Ack, data)
	if err != nil {
		slog.Error("encoding ack", "event", req.Event, "error", err)
		return
	}
	s.send(msg)
}

func (s *Session) setIdentity(id *auth.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = id
}

func (s *Session) currentIdentity() *auth.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func (s *Session) authenticated() bool {
	return s.currentIdentity() != nil
}

func (s *Session) instance() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instanceID
}

func (s *Session) attach(instanceID string, leaveGroup func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instanceID = instanceID
	s.leaveGroup = leaveGroup
}

// detach clears the joined instance and hands back the group subscription
// so the caller can cancel it.
func (s *Session) detach() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	leave := s.leaveGroup
	s.instanceID = ""
	s.leaveGroup = nil
	return leave
}

func (s *Session) dispatch(ctx context.Context, raw []byte) {
	var req request
	if err := json.Unmarshal(raw, &req); err != nil || req.Event == "" {
		s.hub.metrics.EventRejected(ErrMalformed.Reason)
		s.emit(EventError, ErrMalformed.Message)
		return
	}

	s.hub.metrics.EventReceived(req.Event)

	h, ok := handlers[req.Event]
	if !ok {
		ue := NewUserError("unknown_event", fmt.Sprintf("unknown event: %s", req.Event))
		s.hub.metrics.EventRejected(ue.Reason)
		s.emit(EventError, ue.Message)
		return
	}

	var err error
	if h.member && s.instance() == "" {
		err = ErrNotJoined
	} else {
		err = h.fn(ctx, s, req)
	}
	if err == nil {
		return
	}

	ue := clientError(err)
	if ue == errInternal {
		slog.ErrorContext(ctx, "handling event", "event", req.Event, "connectionId", s.id, "error", err)
	} else {
		slog.DebugContext(ctx, "rejected event", "event", req.Event, "connectionId", s.id, "reason", ue.Reason, "error", err)
	}
	s.hub.metrics.EventRejected(ue.Reason)

	if h.failure != nil && req.Ack != nil {
		s.reply(req, h.failure(ue.Message))
		return
	}
	s.emit(EventError, ue.Message)
}

func decode(req request, v any) error {
	if len(req.Data) == 0 {
		return ErrMalformed
	}
	if err := json.Unmarshal(req.Data, v); err != nil {
		return ErrMalformed
	}
	return nil
}
