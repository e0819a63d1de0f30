package httpapi

import (
	"net/http"
	"time"

	"github.com/pixil98/ubichill/internal/journal"
)

type ServerOpt func(*Server)

func WithCookieName(name string) ServerOpt {
	return func(s *Server) {
		s.cookieName = name
	}
}

func WithConnections(c Counter) ServerOpt {
	return func(s *Server) {
		s.connections = c
	}
}

// WithWebsocket mounts h on /ws.
func WithWebsocket(h http.Handler) ServerOpt {
	return func(s *Server) {
		s.ws = h
	}
}

// WithMetrics mounts h on /metrics.
func WithMetrics(h http.Handler) ServerOpt {
	return func(s *Server) {
		s.metrics = h
	}
}

func WithJournal(j Journal) ServerOpt {
	return func(s *Server) {
		s.journal = j
	}
}

// WithHistory exposes recent journal facts on /api/journal.
func WithHistory(r journal.Reader) ServerOpt {
	return func(s *Server) {
		s.history = r
	}
}

func WithAllowedOrigins(origins []string) ServerOpt {
	return func(s *Server) {
		s.origins = origins
	}
}

// WithRateLimit limits each client address to rps requests per second on
// the /api routes. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) ServerOpt {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = newIPLimiter(rps, burst)
	}
}

func WithClock(now func() time.Time) ServerOpt {
	return func(s *Server) {
		s.now = now
	}
}
