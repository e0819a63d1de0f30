package world

import (
	"maps"

	"github.com/mitchellh/copystructure"
)

// Transform holds the position, size and orientation of an entity.
type Transform struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	W        float64 `json:"w"`
	H        float64 `json:"h"`
	Scale    float64 `json:"scale"`
	Rotation float64 `json:"rotation"`
}

// TransformPatch is a partial Transform. Nil fields are left untouched.
type TransformPatch struct {
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Z        *float64 `json:"z,omitempty"`
	W        *float64 `json:"w,omitempty"`
	H        *float64 `json:"h,omitempty"`
	Scale    *float64 `json:"scale,omitempty"`
	Rotation *float64 `json:"rotation,omitempty"`
}

// Apply merges the set fields of p into t.
func (p *TransformPatch) Apply(t *Transform) {
	if p == nil {
		return
	}
	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&t.X, p.X)
	set(&t.Y, p.Y)
	set(&t.Z, p.Z)
	set(&t.W, p.W)
	set(&t.H, p.H)
	set(&t.Scale, p.Scale)
	set(&t.Rotation, p.Rotation)
}

// Values returns every numeric field that is set, keyed by its JSON name.
func (p *TransformPatch) Values() map[string]float64 {
	vals := map[string]float64{}
	if p == nil {
		return vals
	}
	add := func(name string, v *float64) {
		if v != nil {
			vals[name] = *v
		}
	}
	add("x", p.X)
	add("y", p.Y)
	add("z", p.Z)
	add("w", p.W)
	add("h", p.H)
	add("scale", p.Scale)
	add("rotation", p.Rotation)
	return vals
}

// Entity is a synchronized object living inside one instance. Type and Data
// belong to the plugin that owns the entity and are never interpreted here.
type Entity struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	OwnerID   *string        `json:"ownerId"`
	LockedBy  *string        `json:"lockedBy"`
	Transform Transform      `json:"transform"`
	Data      map[string]any `json:"data"`
}

// Clone returns a copy of e that shares no mutable state with it, nested
// data included.
func (e Entity) Clone() Entity {
	c := e
	c.OwnerID = clonePtr(e.OwnerID)
	c.LockedBy = clonePtr(e.LockedBy)
	c.Data = cloneData(e.Data)
	return c
}

// IsLockedBy reports whether holder currently holds the advisory lock on e.
func (e Entity) IsLockedBy(holder string) bool {
	return e.LockedBy != nil && *e.LockedBy == holder
}

// Patch is a partial update to an entity. Top-level fields replace the
// stored value; Transform is merged field by field.
type Patch struct {
	OwnerID   Optional[string]         `json:"ownerId,omitzero"`
	LockedBy  Optional[string]         `json:"lockedBy,omitzero"`
	Transform *TransformPatch          `json:"transform,omitempty"`
	Data      Optional[map[string]any] `json:"data,omitzero"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return !p.OwnerID.Set && !p.LockedBy.Set && p.Transform == nil && !p.Data.Set
}

// Apply merges p into e.
func (p Patch) Apply(e *Entity) {
	if p.OwnerID.Set {
		e.OwnerID = p.OwnerID.Ptr()
	}
	if p.LockedBy.Set {
		e.LockedBy = p.LockedBy.Ptr()
	}
	p.Transform.Apply(&e.Transform)
	if p.Data.Set {
		e.Data = cloneData(p.Data.Value)
	}
}

// ReleasePatch builds the patch that drops the lock on e, clearing the
// isHeld flag in its data while keeping every other field.
func ReleasePatch(e Entity) Patch {
	data := cloneData(e.Data)
	if _, ok := data["isHeld"]; ok {
		data["isHeld"] = false
	}
	return Patch{
		LockedBy: Null[string](),
		Data:     Some(data),
	}
}

// cloneData deep copies an opaque data blob. Data decoded from JSON only
// holds maps, slices and scalars, which copystructure always handles.
func cloneData(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	c, err := copystructure.Copy(m)
	if err != nil {
		return maps.Clone(m)
	}
	return c.(map[string]any)
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
