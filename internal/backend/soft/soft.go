// Package soft is a CPU sphere tracer implementing backend.Backend. Objects
// are signed distance fields from sdfx evaluated in their local frames;
// frames are accumulated over successive launches with jittered samples.
package soft

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/nslaift/nslaift/internal/backend"
	"github.com/nslaift/nslaift/internal/core/observability/log"
)

const Name = "soft"

func init() {
	backend.Register(Name, func(opts backend.Options) (backend.Backend, error) {
		return New(opts), nil
	})
}

var _ backend.Backend = (*Backend)(nil)

type resource struct {
	params     backend.Params
	world, inv mgl64.Mat4
	bound      bool

	// objects only
	shape     *shape
	shapeHash uint64
	stale     bool
}

type Backend struct {
	mu      sync.Mutex
	logger  log.Log
	workers int

	next      backend.Handle
	resources map[backend.Handle]*resource

	entryPoints int
	lightCount  int
	miss        mgl64.Vec3

	// objects visible to the tracer, rebuilt when the root is marked
	objects   []*resource
	rootStale bool

	width, height int
	accum         accumulator
	generation    uint64

	closed bool
}

// New returns an empty backend. opts.Workers bounds the number of rows
// traced concurrently; zero uses GOMAXPROCS.
func New(opts backend.Options) *Backend {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Backend{
		logger:    logger.With(log.String("component", "backend"), log.String("backend", Name)),
		workers:   workers,
		resources: make(map[backend.Handle]*resource),
	}
}

func (b *Backend) Name() string { return Name }

func (b *Backend) lookup(h backend.Handle) (*resource, error) {
	if b.closed {
		return nil, backend.ErrClosed
	}
	r, ok := b.resources[h]
	if !ok {
		return nil, fmt.Errorf("%w: %d", backend.ErrUnknownHandle, h)
	}
	return r, nil
}

func (b *Backend) CreateEntityResources(params backend.Params) (backend.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return backend.NoHandle, backend.ErrClosed
	}
	if err := checkParams(params); err != nil {
		return backend.NoHandle, err
	}
	b.next++
	r := &resource{params: params, world: mgl64.Ident4(), inv: mgl64.Ident4()}
	if isObject(params) {
		r.stale = true
		b.rootStale = true
	}
	b.resources[b.next] = r
	b.generation++
	return b.next, nil
}

func (b *Backend) BindTransform(h backend.Handle, m, inv mgl64.Mat4) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, err := b.lookup(h)
	if err != nil {
		return err
	}
	r.world, r.inv, r.bound = m, inv, true
	b.generation++
	return nil
}

func (b *Backend) BindParameters(h backend.Handle, params backend.Params) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, err := b.lookup(h)
	if err != nil {
		return err
	}
	if err = checkParams(params); err != nil {
		return err
	}
	if params.ResourceKind() != r.params.ResourceKind() {
		return fmt.Errorf("%w: cannot rebind %s as %s", backend.ErrUnsupportedParams, r.params.ResourceKind(), params.ResourceKind())
	}
	r.params = params
	if isObject(params) && fingerprint(params) != r.shapeHash {
		r.stale = true
	}
	b.generation++
	return nil
}

// MarkAccelerationDirty rebuilds the shape of one object, or with
// backend.RootHandle the list of traced objects.
func (b *Backend) MarkAccelerationDirty(h backend.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return backend.ErrClosed
	}
	if h == backend.RootHandle {
		b.rebuildRoot()
		return nil
	}
	r, err := b.lookup(h)
	if err != nil {
		return err
	}
	if !isObject(r.params) {
		return fmt.Errorf("%w: %s has no geometry", backend.ErrUnsupportedParams, r.params.ResourceKind())
	}
	if r.stale {
		s, err := buildShape(r.params)
		if err != nil {
			return err
		}
		r.shape, r.shapeHash, r.stale = s, fingerprint(r.params), false
	}
	b.generation++
	return nil
}

func (b *Backend) rebuildRoot() {
	b.objects = b.objects[:0]
	for _, r := range b.resources {
		if isObject(r.params) {
			b.objects = append(b.objects, r)
		}
	}
	b.rootStale = false
	b.generation++
	b.logger.Debug("Acceleration root rebuilt", log.Int("objects", len(b.objects)))
}

func (b *Backend) ReleaseEntityResources(h backend.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, err := b.lookup(h)
	if err != nil {
		return err
	}
	delete(b.resources, h)
	if isObject(r.params) {
		b.rootStale = true
	}
	b.generation++
	return nil
}

func (b *Backend) SetEntryPointCount(n int) {
	b.mu.Lock()
	b.entryPoints = n
	b.mu.Unlock()
}

func (b *Backend) SetLightCount(n int) {
	b.mu.Lock()
	b.lightCount = n
	b.generation++
	b.mu.Unlock()
}

func (b *Backend) SetMissColor(c mgl64.Vec3) {
	b.mu.Lock()
	b.miss = c
	b.generation++
	b.mu.Unlock()
}

func (b *Backend) ResizeOutput(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: output %dx%d", backend.ErrUnsupportedParams, width, height)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return backend.ErrClosed
	}
	if width != b.width || height != b.height {
		b.width, b.height = width, height
		b.accum.reset(width, height)
	}
	return nil
}

// ValidateContext checks that every slot is backed by a bound resource and
// that no geometry is waiting for an acceleration rebuild.
func (b *Backend) ValidateContext() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return backend.ErrClosed
	}
	if b.rootStale {
		return fmt.Errorf("%w: acceleration root not rebuilt", backend.ErrInvalidContext)
	}
	cameras := make(map[int]bool)
	lights := make(map[int]bool)
	for h, r := range b.resources {
		if !r.bound {
			return fmt.Errorf("%w: resource %d has no transform", backend.ErrInvalidContext, h)
		}
		switch p := r.params.(type) {
		case backend.CameraParams:
			cameras[p.Entry] = true
		case backend.LightParams:
			lights[p.Slot] = true
		default:
			if r.stale {
				return fmt.Errorf("%w: geometry %d not rebuilt", backend.ErrInvalidContext, h)
			}
		}
	}
	for i := 0; i < b.entryPoints; i++ {
		if !cameras[i] {
			return fmt.Errorf("%w: entry point %d has no camera", backend.ErrInvalidContext, i)
		}
	}
	for i := 0; i < b.lightCount; i++ {
		if !lights[i] {
			return fmt.Errorf("%w: light slot %d is empty", backend.ErrInvalidContext, i)
		}
	}
	return nil
}

func (b *Backend) ReadFramebuffer() (*backend.Framebuffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, backend.ErrClosed
	}
	return b.accum.resolve(b.width, b.height), nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.resources = map[backend.Handle]*resource{}
	b.objects = nil
	return nil
}

func isObject(p backend.Params) bool {
	switch p.(type) {
	case backend.SphereParams, backend.CuboidParams, backend.MeshParams:
		return true
	}
	return false
}

func checkParams(p backend.Params) error {
	switch v := p.(type) {
	case backend.CameraParams:
		if v.Width <= 0 || v.Height <= 0 {
			return fmt.Errorf("%w: camera resolution %dx%d", backend.ErrUnsupportedParams, v.Width, v.Height)
		}
	case backend.SphereParams:
		if v.Radius <= 0 {
			return fmt.Errorf("%w: sphere radius %g", backend.ErrUnsupportedParams, v.Radius)
		}
	case backend.CuboidParams:
		for i := 0; i < 3; i++ {
			if v.Min[i] >= v.Max[i] {
				return fmt.Errorf("%w: cuboid bounds %v %v", backend.ErrUnsupportedParams, v.Min, v.Max)
			}
		}
	case backend.MeshParams:
		for i, t := range v.Triangles {
			for _, c := range t {
				if !finite(c) {
					return fmt.Errorf("%w: mesh triangle %d is not finite", backend.ErrUnsupportedParams, i)
				}
			}
		}
	case backend.LightParams:
	case nil:
		return fmt.Errorf("%w: nil params", backend.ErrUnsupportedParams)
	default:
		return fmt.Errorf("%w: %T", backend.ErrUnsupportedParams, p)
	}
	return nil
}

func finite(v mgl64.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
