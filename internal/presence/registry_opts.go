package presence

import "time"

type RegistryOpt func(*Registry)

// WithClock sets the time source used for lastActiveAt stamps.
func WithClock(now func() time.Time) RegistryOpt {
	return func(r *Registry) {
		r.now = now
	}
}
