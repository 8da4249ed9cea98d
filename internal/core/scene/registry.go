package scene

import (
	"fmt"
	"strings"

	"github.com/nslaift/nslaift/internal/backend"
)

// SlotTable counts the occupied slots of one backend table (camera entry
// points or light programs) and reports every change.
type SlotTable struct {
	n    int
	push func(n int)
}

// NewSlotTable returns an empty table. push, if set, receives the new slot
// count after every change.
func NewSlotTable(push func(n int)) *SlotTable {
	return &SlotTable{push: push}
}

func (s *SlotTable) Len() int { return s.n }

func (s *SlotTable) set(n int) {
	s.n = n
	if s.push != nil {
		s.push(n)
	}
}

// Registry is the ordered collection of one entity category. Cameras and
// lights get a dense slot equal to their registration index.
type Registry struct {
	category Category
	entities []*Entity
	slots    *SlotTable
	active   *Entity
	backend  backend.Backend

	// resolve widens name collision checks to the whole scene.
	resolve func(name string) *Entity
}

// NewRegistry builds an empty registry. slots may be nil for categories
// without a backend table.
func NewRegistry(category Category, b backend.Backend, slots *SlotTable) *Registry {
	return &Registry{category: category, backend: b, slots: slots}
}

func (r *Registry) Category() Category { return r.category }
func (r *Registry) Len() int           { return len(r.entities) }

// All returns the entities in registration order.
func (r *Registry) All() []*Entity {
	out := make([]*Entity, len(r.entities))
	copy(out, r.entities)
	return out
}

// Get returns the entity at index i.
func (r *Registry) Get(i int) (*Entity, bool) {
	if i < 0 || i >= len(r.entities) {
		return nil, false
	}
	return r.entities[i], true
}

// IndexOf finds an entity by case-insensitive name, -1 if absent.
func (r *Registry) IndexOf(name string) int {
	for i, e := range r.entities {
		if strings.EqualFold(e.name, name) {
			return i
		}
	}
	return -1
}

// IndexOfEntity returns the registration index of e, -1 if absent.
func (r *Registry) IndexOfEntity(e *Entity) int {
	for i, x := range r.entities {
		if x == e {
			return i
		}
	}
	return -1
}

// Lookup finds an entity by case-insensitive name.
func (r *Registry) Lookup(name string) (*Entity, bool) {
	i := r.IndexOf(name)
	if i < 0 {
		return nil, false
	}
	return r.entities[i], true
}

// Add registers e and returns its index. Re-adding the same entity returns
// the existing index. An empty name is replaced by one derived from the
// entity id.
func (r *Registry) Add(e *Entity) (int, error) {
	if e.category != r.category {
		return -1, fmt.Errorf("%w: %s into %s registry", ErrWrongCategory, e.category, r.category)
	}
	if i := r.IndexOfEntity(e); i >= 0 {
		return i, nil
	}
	name := e.name
	if name == "" {
		name = syntheticName(e)
	}
	if r.nameTaken(name, e) {
		return -1, fmt.Errorf("%w: %s", ErrNameTaken, name)
	}

	e.name = name
	r.entities = append(r.entities, e)
	e.owner = r
	idx := len(r.entities) - 1
	if r.category.packed() {
		e.slot = idx
		e.Invalidate()
	}
	if r.slots != nil {
		r.slots.set(len(r.entities))
	}
	if r.category == CategoryCamera && r.active == nil {
		r.active = e
	}
	return idx, nil
}

// Remove releases the entity's backend resources and drops it. Packed
// slots above it shift down by one.
func (r *Registry) Remove(e *Entity) error {
	idx := r.IndexOfEntity(e)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, e.name)
	}
	if e.handle != backend.NoHandle && r.backend != nil {
		if err := r.backend.ReleaseEntityResources(e.handle); err != nil {
			return fmt.Errorf("%w: release %s: %w", ErrBackend, e.name, err)
		}
	}
	r.detach(idx)
	return nil
}

// RemoveByName removes the entity with the given case-insensitive name.
func (r *Registry) RemoveByName(name string) error {
	e, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return r.Remove(e)
}

// detach drops the entity at idx without touching the backend.
func (r *Registry) detach(idx int) {
	e := r.entities[idx]
	copy(r.entities[idx:], r.entities[idx+1:])
	r.entities[len(r.entities)-1] = nil
	r.entities = r.entities[:len(r.entities)-1]

	if r.category.packed() {
		for _, x := range r.entities[idx:] {
			x.slot--
			x.Invalidate()
		}
	}
	if r.slots != nil {
		r.slots.set(len(r.entities))
	}
	if r.active == e {
		r.active = nil
		if len(r.entities) > 0 && r.category == CategoryCamera {
			r.active = r.entities[0]
		}
	}
	e.owner = nil
	e.slot = -1
	e.handle = backend.NoHandle
	e.cacheValid = false
}

// Active returns the active camera, nil when the registry is empty or does
// not hold cameras.
func (r *Registry) Active() *Entity { return r.active }

// SetActive makes the entity at index i active.
func (r *Registry) SetActive(i int) error {
	e, ok := r.Get(i)
	if !ok {
		return fmt.Errorf("%w: index %d", ErrNotFound, i)
	}
	r.active = e
	return nil
}

func (r *Registry) nameTaken(name string, self *Entity) bool {
	if r.resolve != nil {
		if other := r.resolve(name); other != nil && other != self {
			return true
		}
	}
	if i := r.IndexOf(name); i >= 0 && r.entities[i] != self {
		return true
	}
	return false
}

func syntheticName(e *Entity) string {
	return e.category.String() + "-" + e.id.String()
}
