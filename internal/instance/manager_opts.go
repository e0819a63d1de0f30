package instance

import "time"

const DefaultIdleTTL = 5 * time.Minute

type ManagerOpt func(*Manager)

// WithIdleTTL sets how long an empty instance survives before Tick reaps
// it. Zero disables reaping.
func WithIdleTTL(d time.Duration) ManagerOpt {
	return func(m *Manager) {
		m.idleTTL = d
	}
}

func WithClock(now func() time.Time) ManagerOpt {
	return func(m *Manager) {
		m.now = now
	}
}

func WithIDGenerator(fn func() string) ManagerOpt {
	return func(m *Manager) {
		m.newID = fn
	}
}
