package listener

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pixil98/ubichill/internal/session"
)

// Sessions runs one client session per upgraded connection.
type Sessions interface {
	Serve(ctx context.Context, conn session.Conn, header http.Header) error
}

// ConnectionManager upgrades HTTP requests to websockets and hands them to
// the session layer. Connections outlive the request context, so they run
// under the manager's own context until Stop.
type ConnectionManager struct {
	sessions     Sessions
	upgrader     websocket.Upgrader
	origins      []string
	maxMessage   int64
	writeTimeout time.Duration

	mu          sync.Mutex
	stopped     bool
	wg          sync.WaitGroup
	connCtx     context.Context
	cancelConns context.CancelFunc
}

func NewConnectionManager(sessions Sessions, opts ...ConnectionManagerOpt) *ConnectionManager {
	connCtx, cancel := context.WithCancel(context.Background())
	m := &ConnectionManager{
		sessions:     sessions,
		maxMessage:   DefaultMaxMessageSize,
		writeTimeout: DefaultWriteTimeout,
		connCtx:      connCtx,
		cancelConns:  cancel,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     m.checkOrigin,
	}

	return m
}

func (m *ConnectionManager) checkOrigin(r *http.Request) bool {
	if len(m.origins) == 0 || slices.Contains(m.origins, "*") {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.ContainsFunc(m.origins, func(o string) bool {
		return strings.EqualFold(o, origin)
	})
}

func (m *ConnectionManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !m.track() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer m.wg.Done()

	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		slog.DebugContext(r.Context(), "websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	conn := newWSConn(ws, m.maxMessage, m.writeTimeout)
	defer func() {
		_ = conn.Close()
	}()

	if err := m.sessions.Serve(m.connCtx, conn, r.Header); err != nil {
		slog.WarnContext(m.connCtx, "client session", "remote", r.RemoteAddr, "error", err)
	}
}

// track registers a connection unless the manager has been stopped. Stop
// takes the same lock, so no Add can overlap its Wait.
func (m *ConnectionManager) track() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return false
	}
	m.wg.Add(1)
	return true
}

// Stop ends every open session and waits for them to unwind.
func (m *ConnectionManager) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.cancelConns()
	m.mu.Unlock()

	m.wg.Wait()
}
