package presence

import (
	"sort"
	"sync"
	"time"
)

// Registry tracks which connection occupies which instance along with each
// participant's live cursor and status. Updates for unknown connections are
// silently ignored; they are late events racing a disconnect.
type Registry struct {
	mu        sync.RWMutex
	byConn    map[string]*Participant
	instances map[string]string // connectionId -> instance key
	joinSeq   map[string]uint64
	seq       uint64

	now func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOpt) *Registry {
	r := &Registry{
		byConn:    make(map[string]*Participant),
		instances: make(map[string]string),
		joinSeq:   make(map[string]uint64),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Add registers p in instanceKey, replacing any stale entry for connID.
func (r *Registry) Add(connID, instanceKey string, p Participant) Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	p = p.clone()
	p.ConnectionID = connID
	if p.LastActiveAt == 0 {
		p.LastActiveAt = millis(r.now())
	}

	r.seq++
	r.byConn[connID] = &p
	r.instances[connID] = instanceKey
	r.joinSeq[connID] = r.seq

	return p.clone()
}

// Remove unregisters connID, returning the removed record and the instance
// it was in so the caller can clean up.
func (r *Registry) Remove(connID string) (Participant, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byConn[connID]
	if !ok {
		return Participant{}, "", false
	}
	key := r.instances[connID]

	delete(r.byConn, connID)
	delete(r.instances, connID)
	delete(r.joinSeq, connID)

	return p.clone(), key, true
}

// Get returns the participant registered for connID.
func (r *Registry) Get(connID string) (Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byConn[connID]
	if !ok {
		return Participant{}, false
	}
	return p.clone(), true
}

// InstanceOf returns the instance key connID is mapped to.
func (r *Registry) InstanceOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.instances[connID]
	return key, ok
}

// ParticipantsIn returns every participant mapped to instanceKey in join order.
func (r *Registry) ParticipantsIn(instanceKey string) []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]string, 0)
	for connID, key := range r.instances {
		if key == instanceKey {
			conns = append(conns, connID)
		}
	}
	sort.Slice(conns, func(i, j int) bool { return r.joinSeq[conns[i]] < r.joinSeq[conns[j]] })

	out := make([]Participant, 0, len(conns))
	for _, connID := range conns {
		out = append(out, r.byConn[connID].clone())
	}
	return out
}

// UpdatePosition moves the participant's cursor. A nil state keeps the current one.
func (r *Registry) UpdatePosition(connID string, pos Position, state *CursorState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byConn[connID]
	if !ok {
		return false
	}

	p.Position = pos
	if state != nil {
		p.CursorState = *state
	}
	p.LastActiveAt = millis(r.now())
	return true
}

func (r *Registry) UpdateStatus(connID string, status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byConn[connID]
	if !ok {
		return false
	}

	p.Status = status
	p.LastActiveAt = millis(r.now())
	return true
}

// UpdateProfile applies the whitelisted fields of patch and returns the
// canonical record.
func (r *Registry) UpdateProfile(connID string, patch ProfilePatch) (Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byConn[connID]
	if !ok {
		return Participant{}, false
	}

	patch.apply(p)
	p.LastActiveAt = millis(r.now())
	return p.clone(), true
}

// Count returns the number of registered participants.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// CountIn returns the number of participants mapped to instanceKey.
func (r *Registry) CountIn(instanceKey string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, key := range r.instances {
		if key == instanceKey {
			n++
		}
	}
	return n
}

// InstanceCount returns the number of distinct instances with at least one participant.
func (r *Registry) InstanceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, key := range r.instances {
		seen[key] = struct{}{}
	}
	return len(seen)
}
