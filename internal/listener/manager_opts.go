package listener

import "time"

type ConnectionManagerOpt func(*ConnectionManager)

// WithAllowedOrigins restricts upgrades to the given Origin values. An
// empty list or "*" accepts any origin.
func WithAllowedOrigins(origins []string) ConnectionManagerOpt {
	return func(m *ConnectionManager) {
		m.origins = origins
	}
}

func WithMaxMessageSize(n int64) ConnectionManagerOpt {
	return func(m *ConnectionManager) {
		if n > 0 {
			m.maxMessage = n
		}
	}
}

func WithWriteTimeout(d time.Duration) ConnectionManagerOpt {
	return func(m *ConnectionManager) {
		if d > 0 {
			m.writeTimeout = d
		}
	}
}
