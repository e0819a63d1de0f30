package world

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Store holds the entities of every instance, one partition per instance key.
// Each partition has its own lock, so operations on different instances
// never contend.
type Store struct {
	mu         sync.RWMutex
	partitions map[string]*partition

	newID func() string
}

type partition struct {
	mu       sync.Mutex
	seq      uint64
	entities map[string]*record
}

type record struct {
	seq    uint64
	entity Entity
}

// NewStore creates an empty entity store.
func NewStore(opts ...StoreOpt) *Store {
	s := &Store{
		partitions: make(map[string]*partition),
		newID:      uuid.NewString,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// getPartition returns the partition for key. When create is false a
// missing partition yields nil.
func (s *Store) getPartition(key string, create bool) *partition {
	s.mu.RLock()
	p, ok := s.partitions[key]
	s.mu.RUnlock()
	if ok || !create {
		return p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok = s.partitions[key]; ok {
		return p
	}
	p = &partition{entities: make(map[string]*record)}
	s.partitions[key] = p
	slog.Debug("entity partition created", "instance", key)
	return p
}

// Create inserts e under a freshly generated id and returns the stored copy.
// Any id already set on e is ignored.
func (s *Store) Create(key string, e Entity) Entity {
	p := s.getPartition(key, true)

	p.mu.Lock()
	defer p.mu.Unlock()

	e = e.Clone()
	e.ID = s.newID()
	for {
		if _, taken := p.entities[e.ID]; !taken {
			break
		}
		e.ID = s.newID()
	}

	p.seq++
	p.entities[e.ID] = &record{seq: p.seq, entity: e}
	slog.Debug("entity created", "instance", key, "entity", e.ID, "type", e.Type)

	return e.Clone()
}

// Patch merges patch into the entity with the given id. The second return
// value is false when the entity does not exist.
func (s *Store) Patch(key, id string, patch Patch) (Entity, bool) {
	p := s.getPartition(key, false)
	if p == nil {
		return Entity{}, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.entities[id]
	if !ok {
		slog.Debug("patch target not found", "instance", key, "entity", id)
		return Entity{}, false
	}

	patch.Apply(&r.entity)
	return r.entity.Clone(), true
}

// Update applies fn to the entity with the given id while holding the
// partition lock. If fn returns a non-nil error the entity is left unchanged
// and the error is returned.
func (s *Store) Update(key, id string, fn func(current Entity) (Patch, error)) (Entity, bool, error) {
	p := s.getPartition(key, false)
	if p == nil {
		return Entity{}, false, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.entities[id]
	if !ok {
		return Entity{}, false, nil
	}

	patch, err := fn(r.entity.Clone())
	if err != nil {
		return Entity{}, true, err
	}

	patch.Apply(&r.entity)
	return r.entity.Clone(), true, nil
}

// Delete removes the entity. It returns false if the entity was absent.
func (s *Store) Delete(key, id string) bool {
	p := s.getPartition(key, false)
	if p == nil {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.entities[id]; !ok {
		return false
	}
	delete(p.entities, id)
	slog.Debug("entity deleted", "instance", key, "entity", id)
	return true
}

// Get returns a copy of the entity with the given id.
func (s *Store) Get(key, id string) (Entity, bool) {
	p := s.getPartition(key, false)
	if p == nil {
		return Entity{}, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.entities[id]
	if !ok {
		return Entity{}, false
	}
	return r.entity.Clone(), true
}

// Snapshot returns copies of every entity in the partition, oldest first.
func (s *Store) Snapshot(key string) []Entity {
	p := s.getPartition(key, false)
	if p == nil {
		return []Entity{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.sorted(func(Entity) bool { return true })
}

// FindLockedBy returns every entity in the partition whose lock is held by holder.
func (s *Store) FindLockedBy(key, holder string) []Entity {
	p := s.getPartition(key, false)
	if p == nil {
		return []Entity{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.sorted(func(e Entity) bool { return e.IsLockedBy(holder) })
}

// Clear drops the whole partition.
func (s *Store) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.partitions[key]; ok {
		delete(s.partitions, key)
		slog.Debug("entity partition cleared", "instance", key)
	}
}

// Count returns the number of entities across all partitions.
func (s *Store) Count() int {
	s.mu.RLock()
	parts := make([]*partition, 0, len(s.partitions))
	for _, p := range s.partitions {
		parts = append(parts, p)
	}
	s.mu.RUnlock()

	total := 0
	for _, p := range parts {
		p.mu.Lock()
		total += len(p.entities)
		p.mu.Unlock()
	}
	return total
}

// sorted must be called with p.mu held.
func (p *partition) sorted(keep func(Entity) bool) []Entity {
	recs := make([]*record, 0, len(p.entities))
	for _, r := range p.entities {
		if keep(r.entity) {
			recs = append(recs, r)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })

	out := make([]Entity, len(recs))
	for i, r := range recs {
		out[i] = r.entity.Clone()
	}
	return out
}
