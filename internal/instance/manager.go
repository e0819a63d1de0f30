package instance

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pixil98/ubichill/internal/world"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusFull    Status = "full"
	StatusClosing Status = "closing"
)

type CloseReason string

const (
	ReasonClosedByLeader CloseReason = "closed by leader"
	ReasonEmpty          CloseReason = "empty"
	ReasonIdle           CloseReason = "idle"
)

type Access struct {
	Type string   `json:"type"`
	Tags []string `json:"tags"`
}

type Settings struct {
	MaxUsers int
	Access   Access
}

// Instance is one live occupancy of a template. Values handed out by the
// Manager are copies.
type Instance struct {
	ID           string    `json:"id"`
	TemplateID   string    `json:"worldId"`
	LeaderID     string    `json:"leaderId"`
	Status       Status    `json:"status"`
	CurrentUsers int       `json:"currentUsers"`
	MaxUsers     int       `json:"maxUsers"`
	Access       Access    `json:"access"`
	CreatedAt    time.Time `json:"createdAt"`

	emptySince time.Time
}

func (i *Instance) copy() Instance {
	c := *i
	c.Access.Tags = slices.Clone(i.Access.Tags)
	return c
}

func (i *Instance) recomputeStatus() {
	if i.CurrentUsers >= i.MaxUsers {
		i.Status = StatusFull
	} else {
		i.Status = StatusActive
	}
}

// Partitions is the entity store surface the manager needs to seed and
// tear down an instance's entities.
type Partitions interface {
	Create(key string, e world.Entity) world.Entity
	Clear(key string)
}

type CloseHook func(inst Instance, reason CloseReason)

type Filter struct {
	Tag         string
	IncludeFull bool
}

// Manager owns every live instance. A single mutex covers the instance map
// so count checks and removals happen atomically.
type Manager struct {
	mu        sync.Mutex
	instances map[string]*Instance

	templates TemplateSource
	entities  Partitions
	hooks     []CloseHook

	idleTTL time.Duration
	now     func() time.Time
	newID   func() string
}

func NewManager(templates TemplateSource, entities Partitions, opts ...ManagerOpt) *Manager {
	m := &Manager{
		instances: make(map[string]*Instance),
		templates: templates,
		entities:  entities,
		idleTTL:   DefaultIdleTTL,
		now:       time.Now,
		newID:     func() string { return ulid.Make().String() },
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// OnClose registers fn to run after an instance is removed for any reason.
func (m *Manager) OnClose(fn CloseHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

func (m *Manager) Templates() TemplateSource {
	return m.templates
}

// Create starts a new instance of templateID led by leaderID and seeds its
// entities from the template.
func (m *Manager) Create(ctx context.Context, templateID, leaderID string, s Settings) (Instance, error) {
	tmpl, ok := m.templates.Template(templateID)
	if !ok {
		return Instance{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, templateID)
	}

	maxUsers := s.MaxUsers
	if maxUsers <= 0 {
		maxUsers = tmpl.Capacity.Default
	}
	maxUsers = min(maxUsers, tmpl.Capacity.Max)

	access := Access{Type: s.Access.Type, Tags: slices.Clone(s.Access.Tags)}
	if access.Type == "" {
		access.Type = "public"
	}
	if access.Tags == nil {
		access.Tags = []string{}
	}

	now := m.now()
	inst := &Instance{
		ID:         m.newID(),
		TemplateID: tmpl.ID,
		LeaderID:   leaderID,
		Status:     StatusActive,
		MaxUsers:   maxUsers,
		Access:     access,
		CreatedAt:  now,
		emptySince: now,
	}

	seeds := tmpl.SeedEntities()
	for _, e := range seeds {
		m.entities.Create(inst.ID, e)
	}

	m.mu.Lock()
	m.instances[inst.ID] = inst
	out := inst.copy()
	m.mu.Unlock()

	slog.InfoContext(ctx, "instance created",
		"instanceId", inst.ID, "worldId", tmpl.ID, "leaderId", leaderID, "maxUsers", maxUsers, "seeded", len(seeds))

	return out, nil
}

// Close removes the instance if requesterID leads it. Concurrent callers
// see exactly one success; the rest get ErrNotFound.
func (m *Manager) Close(id, requesterID string) error {
	m.mu.Lock()
	inst, ok := m.instances[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if inst.LeaderID != requesterID {
		m.mu.Unlock()
		return ErrNotLeader
	}
	removed := m.removeLocked(inst)
	hooks := slices.Clone(m.hooks)
	m.mu.Unlock()

	m.teardown(removed, ReasonClosedByLeader, hooks)
	return nil
}

// UpdateUserCount adjusts the occupancy of id by delta, clamping at zero.
// An instance whose count reaches zero is removed under the same lock.
func (m *Manager) UpdateUserCount(id string, delta int) (int, error) {
	m.mu.Lock()
	inst, ok := m.instances[id]
	if !ok {
		m.mu.Unlock()
		return 0, ErrNotFound
	}

	inst.CurrentUsers = max(0, inst.CurrentUsers+delta)
	inst.recomputeStatus()
	count := inst.CurrentUsers

	if count > 0 {
		inst.emptySince = time.Time{}
		m.mu.Unlock()
		return count, nil
	}

	removed := m.removeLocked(inst)
	hooks := slices.Clone(m.hooks)
	m.mu.Unlock()

	m.teardown(removed, ReasonEmpty, hooks)
	return 0, nil
}

// Admit reserves a slot in id for a joining participant.
func (m *Manager) Admit(id string) (Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[id]
	if !ok {
		return Instance{}, ErrNotFound
	}
	if inst.CurrentUsers >= inst.MaxUsers {
		return Instance{}, ErrFull
	}

	inst.CurrentUsers++
	inst.emptySince = time.Time{}
	inst.recomputeStatus()

	return inst.copy(), nil
}

func (m *Manager) Get(id string) (Instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[id]
	if !ok {
		return Instance{}, false
	}
	return inst.copy(), true
}

// List returns joinable instances, oldest first. Full instances are only
// included when the filter asks for them.
func (m *Manager) List(f Filter) []Instance {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		if inst.Status == StatusClosing {
			continue
		}
		if inst.Status == StatusFull && !f.IncludeFull {
			continue
		}
		if f.Tag != "" && !slices.ContainsFunc(inst.Access.Tags, func(t string) bool {
			return strings.Contains(t, f.Tag)
		}) {
			continue
		}
		out = append(out, inst.copy())
	}

	sortOldestFirst(out)
	return out
}

// FindByTemplate returns every instance of templateID, oldest first.
func (m *Manager) FindByTemplate(templateID string) []Instance {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Instance, 0)
	for _, inst := range m.instances {
		if inst.TemplateID == templateID {
			out = append(out, inst.copy())
		}
	}

	sortOldestFirst(out)
	return out
}

// Environment returns the environment of templateID, or the defaults when
// the template is unknown.
func (m *Manager) Environment(templateID string) Environment {
	tmpl, ok := m.templates.Template(templateID)
	if !ok {
		return DefaultEnvironment()
	}
	return tmpl.Environment
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.instances)
}

// Tick reaps instances that have had no participants for longer than the
// idle TTL.
func (m *Manager) Tick(ctx context.Context) error {
	if m.idleTTL <= 0 {
		return nil
	}

	now := m.now()

	m.mu.Lock()
	var reaped []Instance
	for _, inst := range m.instances {
		if inst.CurrentUsers > 0 || inst.emptySince.IsZero() {
			continue
		}
		if now.Sub(inst.emptySince) < m.idleTTL {
			continue
		}
		reaped = append(reaped, m.removeLocked(inst))
	}
	hooks := slices.Clone(m.hooks)
	m.mu.Unlock()

	for _, inst := range reaped {
		slog.InfoContext(ctx, "reaping idle instance", "instanceId", inst.ID)
		m.teardown(inst, ReasonIdle, hooks)
	}

	return nil
}

func (m *Manager) removeLocked(inst *Instance) Instance {
	inst.Status = StatusClosing
	delete(m.instances, inst.ID)
	return inst.copy()
}

func (m *Manager) teardown(inst Instance, reason CloseReason, hooks []CloseHook) {
	m.entities.Clear(inst.ID)
	slog.Info("instance closed", "instanceId", inst.ID, "reason", reason)

	for _, h := range hooks {
		h(inst, reason)
	}
}

func sortOldestFirst(list []Instance) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
