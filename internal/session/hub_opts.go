package session

import "github.com/pixil98/ubichill/internal/metrics"

type HubOpt func(*Hub)

func WithJournal(j Journal) HubOpt {
	return func(h *Hub) {
		h.journal = j
	}
}

func WithMetrics(m *metrics.Metrics) HubOpt {
	return func(h *Hub) {
		h.metrics = m
	}
}

// WithEnforceLocks makes the server reject patches and deletes from anyone
// other than the participant holding an entity's lock.
func WithEnforceLocks(enforce bool) HubOpt {
	return func(h *Hub) {
		h.enforceLocks = enforce
	}
}

// WithPluginKinds sets the plugin kinds advertised in world snapshots.
func WithPluginKinds(kinds []string) HubOpt {
	return func(h *Hub) {
		if kinds != nil {
			h.pluginKinds = kinds
		}
	}
}

// WithOutboundBuffer sets how many frames may wait for a slow client before
// it is disconnected.
func WithOutboundBuffer(n int) HubOpt {
	return func(h *Hub) {
		if n > 0 {
			h.outbound = n
		}
	}
}

func WithCookieName(name string) HubOpt {
	return func(h *Hub) {
		if name != "" {
			h.cookieName = name
		}
	}
}

func WithIDGenerator(fn func() string) HubOpt {
	return func(h *Hub) {
		h.newID = fn
	}
}
