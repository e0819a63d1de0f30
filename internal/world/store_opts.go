package world

type StoreOpt func(*Store)

// WithIDGenerator replaces the uuid generator used for new entity ids.
func WithIDGenerator(fn func() string) StoreOpt {
	return func(s *Store) {
		s.newID = fn
	}
}
