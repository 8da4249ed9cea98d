package scene

import (
	"fmt"
	"strconv"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/nslaift/nslaift/internal/backend"
	"github.com/nslaift/nslaift/internal/core/transform"
)

// ID identifies an entity for the lifetime of its scene. IDs are never reused.
type ID uint64

func (id ID) String() string { return strconv.FormatUint(uint64(id), 10) }

// Category selects the registry an entity lives in.
type Category uint8

const (
	CategoryCamera Category = iota + 1
	CategoryObject
	CategoryLight
)

func (c Category) String() string {
	switch c {
	case CategoryCamera:
		return "camera"
	case CategoryObject:
		return "object"
	case CategoryLight:
		return "light"
	default:
		return "unknown"
	}
}

// packed reports whether entities of this category occupy a dense backend slot.
func (c Category) packed() bool {
	return c == CategoryCamera || c == CategoryLight
}

// Behavior is the kind-specific part of an entity.
type Behavior interface {
	// ApplyAction handles the actions local to the kind. Returning
	// Unrecognized passes the action on to the generic entity handler.
	ApplyAction(e *Entity, action, params string) Status
	// Params snapshots the kind state pushed to the backend on refresh.
	Params(e *Entity) backend.Params
}

// Entity is a named, transformable member of a scene.
type Entity struct {
	id       ID
	name     string
	kind     string
	category Category

	transform  mgl64.Mat4
	cacheValid bool
	visible    bool

	material *Material
	parent   *Entity

	slot     int
	handle   backend.Handle
	behavior Behavior
	owner    *Registry
}

func newEntity(id ID, name, kind string, category Category, b Behavior) *Entity {
	e := &Entity{
		id:        id,
		name:      name,
		kind:      kind,
		category:  category,
		transform: transform.Identity(),
		visible:   true,
		slot:      -1,
		behavior:  b,
	}
	if category == CategoryObject {
		e.material = NewMaterial()
	}
	return e
}

func (e *Entity) ID() ID                 { return e.id }
func (e *Entity) Name() string           { return e.name }
func (e *Entity) Kind() string           { return e.kind }
func (e *Entity) Category() Category     { return e.category }
func (e *Entity) Matrix() mgl64.Mat4     { return e.transform }
func (e *Entity) CacheValid() bool       { return e.cacheValid }
func (e *Entity) Visible() bool          { return e.visible }
func (e *Entity) Material() *Material    { return e.material }
func (e *Entity) Parent() *Entity        { return e.parent }
func (e *Entity) Handle() backend.Handle { return e.handle }
func (e *Entity) Behavior() Behavior     { return e.behavior }

// Slot is the packed backend index of a camera (its entry point) or light.
// Objects report -1.
func (e *Entity) Slot() int { return e.slot }

// SetParent records a weak hierarchy link. Transforms are not inherited.
func (e *Entity) SetParent(p *Entity) { e.parent = p }

// Invalidate marks the backend copy of this entity as stale.
func (e *Entity) Invalidate() { e.cacheValid = false }

// Reset restores the identity transform.
func (e *Entity) Reset() {
	e.transform = transform.Identity()
	e.Invalidate()
}

// Translate moves the entity in world space.
func (e *Entity) Translate(x, y, z float64) {
	e.transform = transform.Translation(x, y, z).Mul4(e.transform)
	e.Invalidate()
}

// Move moves the entity along its own axes.
func (e *Entity) Move(x, y, z float64) {
	e.transform = e.transform.Mul4(transform.Translation(x, y, z))
	e.Invalidate()
}

// SetPosition replaces the translation and keeps rotation and scale.
func (e *Entity) SetPosition(x, y, z float64) {
	e.transform = transform.WithPosition(e.transform, mgl64.Vec3{x, y, z})
	e.Invalidate()
}

// Spin rotates the entity about its own axes.
func (e *Entity) Spin(rx, ry, rz float64) {
	e.transform = e.transform.Mul4(transform.Rotation(rx, ry, rz))
	e.Invalidate()
}

// Rotate rotates the entity about the world axes.
func (e *Entity) Rotate(rx, ry, rz float64) {
	e.transform = transform.Rotation(rx, ry, rz).Mul4(e.transform)
	e.Invalidate()
}

// Transform left-multiplies m onto the current transform.
func (e *Entity) Transform(m mgl64.Mat4) {
	e.transform = m.Mul4(e.transform)
	e.Invalidate()
}

// SetTransformationMatrix replaces the whole transform with m.
func (e *Entity) SetTransformationMatrix(m mgl64.Mat4) {
	e.transform = m
	e.Invalidate()
}

// SetVisible toggles whether the entity is drawn.
func (e *Entity) SetVisible(v bool) {
	e.visible = v
	e.Invalidate()
}

// Position is the world-space translation of the transform.
func (e *Entity) Position() mgl64.Vec3 {
	return transform.Position(e.transform)
}

// RefreshCache pushes the transform, its inverse and the kind parameters
// to the backend. It does nothing while the cache is valid.
func (e *Entity) RefreshCache(b backend.Backend) error {
	if e.cacheValid {
		return nil
	}
	inv, ok := transform.Invert(e.transform)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSingularTransform, e.name)
	}
	if err := b.BindTransform(e.handle, e.transform, inv); err != nil {
		return fmt.Errorf("%w: bind transform of %s: %w", ErrBackend, e.name, err)
	}
	if e.behavior != nil {
		if err := b.BindParameters(e.handle, e.behavior.Params(e)); err != nil {
			return fmt.Errorf("%w: bind parameters of %s: %w", ErrBackend, e.name, err)
		}
	}
	if e.category == CategoryObject {
		if err := b.MarkAccelerationDirty(e.handle); err != nil {
			return fmt.Errorf("%w: mark %s dirty: %w", ErrBackend, e.name, err)
		}
	}
	e.cacheValid = true
	return nil
}

// materialParams is the material snapshot for geometric kinds.
func (e *Entity) materialParams() backend.MaterialParams {
	if e.material == nil {
		return NewMaterial().Params()
	}
	return e.material.Params()
}
