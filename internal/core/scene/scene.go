// Package scene implements the render scene graph: entities and their
// transform caches, the per-category registries, the action dispatcher and
// the orchestrator that sequences cache refreshes and renders against a
// backend.
//
// A Scene is not safe for concurrent use. Callers serialize access; the
// protocol executor does this for network clients.
package scene

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/nslaift/nslaift/internal/backend"
	"github.com/nslaift/nslaift/internal/core/events/bus"
	"github.com/nslaift/nslaift/internal/core/observability/log"
	"github.com/nslaift/nslaift/internal/imageout"
)

// Config wires a scene to its collaborators. Backend is required; the rest
// default to no-op implementations.
type Config struct {
	Backend    backend.Backend
	Sink       imageout.Sink
	Kinds      *KindTable
	Bus        bus.EventBus
	Logger     log.Log
	Background mgl64.Vec3
}

type Scene struct {
	backend backend.Backend
	sink    imageout.Sink
	kinds   *KindTable
	bus     bus.EventBus
	logger  log.Log

	cameras *Registry
	objects *Registry
	lights  *Registry

	nextID      ID
	background  mgl64.Vec3
	missDirty   bool
	accelDirty  bool
	renderCount uint64
}

func New(cfg Config) (*Scene, error) {
	if cfg.Backend == nil {
		return nil, errors.New("scene: backend is required")
	}
	if cfg.Sink == nil {
		cfg.Sink = imageout.Discard
	}
	if cfg.Kinds == nil {
		cfg.Kinds = DefaultKinds()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}

	s := &Scene{
		backend:    cfg.Backend,
		sink:       cfg.Sink,
		kinds:      cfg.Kinds,
		bus:        cfg.Bus,
		logger:     cfg.Logger.With(log.String("component", "scene")),
		background: cfg.Background,
		missDirty:  true,
	}
	s.cameras = NewRegistry(CategoryCamera, cfg.Backend, NewSlotTable(cfg.Backend.SetEntryPointCount))
	s.objects = NewRegistry(CategoryObject, cfg.Backend, nil)
	s.lights = NewRegistry(CategoryLight, cfg.Backend, NewSlotTable(cfg.Backend.SetLightCount))
	for _, r := range s.registries() {
		r.resolve = s.FindEntity
	}
	return s, nil
}

func (s *Scene) Cameras() *Registry { return s.cameras }
func (s *Scene) Objects() *Registry { return s.objects }
func (s *Scene) Lights() *Registry  { return s.lights }
func (s *Scene) Kinds() *KindTable  { return s.kinds }

func (s *Scene) RenderCount() uint64         { return s.renderCount }
func (s *Scene) BackgroundColor() mgl64.Vec3 { return s.background }

func (s *Scene) registries() []*Registry {
	return []*Registry{s.cameras, s.objects, s.lights}
}

func (s *Scene) registryFor(c Category) *Registry {
	switch c {
	case CategoryCamera:
		return s.cameras
	case CategoryLight:
		return s.lights
	default:
		return s.objects
	}
}

// FindEntity resolves a name across cameras, objects and lights, in that
// order. It returns nil when nothing matches.
func (s *Scene) FindEntity(name string) *Entity {
	for _, r := range s.registries() {
		if e, ok := r.Lookup(name); ok {
			return e
		}
	}
	return nil
}

// CreateEntity builds an entity of the given kind and registers it. Non-empty
// params are applied through the kind's creation action before any backend
// resources exist.
func (s *Scene) CreateEntity(name, kind, params string) (*Entity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	if s.FindEntity(name) != nil {
		return nil, fmt.Errorf("%w: %s", ErrNameTaken, name)
	}
	spec, ok := s.kinds.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	s.nextID++
	e := newEntity(s.nextID, name, spec.Name, spec.Category, spec.New())
	if strings.TrimSpace(params) != "" && spec.CreateAction != "" {
		if st := e.ApplyAction(spec.CreateAction, params); st != Handled {
			return nil, fmt.Errorf("%w: create %s %s: %q", st.Err(), spec.Name, name, params)
		}
	}

	reg := s.registryFor(spec.Category)
	idx, err := reg.Add(e)
	if err != nil {
		return nil, err
	}
	h, err := s.backend.CreateEntityResources(e.behavior.Params(e))
	if err != nil {
		reg.detach(idx)
		return nil, fmt.Errorf("%w: create resources for %s: %w", ErrBackend, name, err)
	}
	e.handle = h
	if spec.Category == CategoryObject {
		s.accelDirty = true
	}

	s.logger.Debug("Entity created",
		log.String("name", e.name),
		log.String("kind", e.kind),
		log.Int("index", idx),
	)
	s.publish(EventEntityCreated, entityEvent(e))
	return e, nil
}

// Manipulate applies a named action to the entity called name.
func (s *Scene) Manipulate(name, action, params string) error {
	e := s.FindEntity(name)
	if e == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s.ManipulateEntity(e, action, params)
}

func (s *Scene) ManipulateEntity(e *Entity, action, params string) error {
	st := e.ApplyAction(action, params)
	if err := st.Err(); err != nil {
		return fmt.Errorf("%w: %s on %s", err, action, e.name)
	}
	return nil
}

// SetMaterial switches the material type of a geometric entity.
func (s *Scene) SetMaterial(name, materialType string) error {
	return s.Manipulate(name, "setMaterialType", materialType)
}

// DeleteEntity tears down the backend resources of name and removes it.
func (s *Scene) DeleteEntity(name string) error {
	e := s.FindEntity(name)
	if e == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err := s.registryFor(e.category).Remove(e); err != nil {
		return err
	}
	s.forget(e)

	s.logger.Debug("Entity deleted", log.String("name", e.name), log.String("kind", e.kind))
	s.publish(EventEntityDeleted, entityEvent(e))
	return nil
}

// forget clears every weak link to a removed entity.
func (s *Scene) forget(e *Entity) {
	for _, r := range s.registries() {
		for _, x := range r.entities {
			if x.parent == e {
				x.parent = nil
			}
		}
	}
	if e.category == CategoryObject {
		s.accelDirty = true
	}
}

// RefreshCaches brings the backend up to date with every stale entity,
// cameras first, then objects, then lights.
func (s *Scene) RefreshCaches() error {
	if s.cameras.Len() == 0 || s.lights.Len() == 0 {
		return ErrNotRenderable
	}
	for _, r := range s.registries() {
		for _, e := range r.entities {
			if err := e.RefreshCache(s.backend); err != nil {
				return err
			}
		}
	}
	if s.accelDirty {
		if err := s.backend.MarkAccelerationDirty(backend.RootHandle); err != nil {
			return fmt.Errorf("%w: mark top level dirty: %w", ErrBackend, err)
		}
		s.accelDirty = false
	}
	if s.missDirty {
		s.backend.SetMissColor(s.background)
		s.missDirty = false
	}
	if err := s.backend.ValidateContext(); err != nil {
		return fmt.Errorf("%w: validate: %w", ErrBackend, err)
	}
	return nil
}

// Render refreshes caches and then, camera by camera in registration order,
// resizes the output, launches iterations frames and hands the framebuffer
// to the image sink. ctx is only consulted between cameras.
func (s *Scene) Render(ctx context.Context, iterations int) error {
	if iterations < 1 {
		return fmt.Errorf("%w: iterations %d", ErrBadParameters, iterations)
	}
	if err := s.RefreshCaches(); err != nil {
		return err
	}

	start := time.Now()
	counter := s.renderCount
	for _, cam := range s.cameras.entities {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, ok := cam.behavior.(Resolution)
		if !ok {
			return fmt.Errorf("%w: camera %s has no resolution", ErrBadParameters, cam.name)
		}
		w, h := res.Resolution()
		if err := s.backend.ResizeOutput(w, h); err != nil {
			return fmt.Errorf("%w: resize output for %s: %w", ErrBackend, cam.name, err)
		}
		for i := 0; i < iterations; i++ {
			if err := s.backend.LaunchFrame(cam.slot, w, h); err != nil {
				return fmt.Errorf("%w: launch %s: %w", ErrBackend, cam.name, err)
			}
		}
		fb, err := s.backend.ReadFramebuffer()
		if err != nil {
			return fmt.Errorf("%w: read framebuffer of %s: %w", ErrBackend, cam.name, err)
		}
		if err = s.sink.WriteFrame(imageout.Frame{Camera: cam.name, Counter: counter, Buffer: fb}); err != nil {
			return fmt.Errorf("write frame of %s: %w", cam.name, err)
		}
	}
	s.renderCount++

	elapsed := time.Since(start)
	s.logger.Info("Scene rendered",
		log.Uint64("counter", counter),
		log.Int("cameras", s.cameras.Len()),
		log.Int("iterations", iterations),
		log.Duration("elapsed", elapsed),
	)
	s.publish(EventSceneRendered, RenderEvent{
		Counter:    counter,
		Cameras:    s.cameras.Len(),
		Iterations: iterations,
		Elapsed:    elapsed,
	})
	return nil
}

// SetBackgroundColor stores c and schedules a miss color push.
func (s *Scene) SetBackgroundColor(c mgl64.Vec3) {
	s.background = c
	s.missDirty = true
}

// Clear removes every entity. Backend release failures are collected; the
// entities are dropped regardless.
func (s *Scene) Clear() error {
	var all error
	for _, r := range s.registries() {
		for r.Len() > 0 {
			idx := r.Len() - 1
			e := r.entities[idx]
			if e.handle != backend.NoHandle {
				if err := s.backend.ReleaseEntityResources(e.handle); err != nil {
					all = errors.Join(all, fmt.Errorf("%w: release %s: %w", ErrBackend, e.name, err))
				}
			}
			r.detach(idx)
		}
	}
	s.accelDirty = true
	s.logger.Debug("Scene cleared")
	s.publish(EventSceneCleared, nil)
	return all
}

// Close clears the scene and closes the backend.
func (s *Scene) Close() error {
	return errors.Join(s.Clear(), s.backend.Close())
}

// Stats is a snapshot of registry sizes.
type Stats struct {
	Cameras int
	Objects int
	Lights  int
	Renders uint64
}

func (s *Scene) Stats() Stats {
	return Stats{
		Cameras: s.cameras.Len(),
		Objects: s.objects.Len(),
		Lights:  s.lights.Len(),
		Renders: s.renderCount,
	}
}
