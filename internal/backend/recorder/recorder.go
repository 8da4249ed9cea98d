// Package recorder provides an in-memory backend that records every call.
// It renders nothing; ReadFramebuffer returns a blank image of the current
// output size.
package recorder

import (
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/nslaift/nslaift/internal/backend"
)

const Name = "recorder"

var _ backend.Backend = (*Recorder)(nil)

func init() {
	backend.Register(Name, func(backend.Options) (backend.Backend, error) {
		return New(), nil
	})
}

// Call is one recorded backend invocation.
type Call struct {
	Method string
	Handle backend.Handle
	Args   []int
}

type Recorder struct {
	mu sync.Mutex

	next       backend.Handle
	params     map[backend.Handle]backend.Params
	transforms map[backend.Handle]mgl64.Mat4
	calls      []Call
	counts     map[string]int
	failures   map[string]error

	entryPoints int
	lights      int
	miss        mgl64.Vec3
	width       int
	height      int
	closed      bool
}

func New() *Recorder {
	return &Recorder{
		params:     make(map[backend.Handle]backend.Params),
		transforms: make(map[backend.Handle]mgl64.Mat4),
		counts:     make(map[string]int),
		failures:   make(map[string]error),
	}
}

// FailOn makes every subsequent call of method return err. A nil err
// clears the failure.
func (r *Recorder) FailOn(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failures, method)
		return
	}
	r.failures[method] = err
}

func (r *Recorder) Count(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[method]
}

// Calls returns a copy of the call log.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Methods returns the method names of the call log in order.
func (r *Recorder) Methods() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.Method
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.counts = make(map[string]int)
}

func (r *Recorder) Params(h backend.Handle) (backend.Params, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.params[h]
	return p, ok
}

func (r *Recorder) Transform(h backend.Handle) (mgl64.Mat4, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.transforms[h]
	return m, ok
}

func (r *Recorder) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.params)
}

func (r *Recorder) EntryPointCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entryPoints
}

func (r *Recorder) LightCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lights
}

func (r *Recorder) MissColor() mgl64.Vec3 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.miss
}

func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// record must be called with r.mu held.
func (r *Recorder) record(method string, h backend.Handle, args ...int) error {
	r.calls = append(r.calls, Call{Method: method, Handle: h, Args: args})
	r.counts[method]++
	if r.closed {
		return backend.ErrClosed
	}
	return r.failures[method]
}

func (r *Recorder) Name() string { return Name }

func (r *Recorder) CreateEntityResources(params backend.Params) (backend.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("CreateEntityResources", backend.NoHandle, int(params.ResourceKind())); err != nil {
		return backend.NoHandle, err
	}
	r.next++
	r.params[r.next] = params
	return r.next, nil
}

func (r *Recorder) BindTransform(h backend.Handle, m, _ mgl64.Mat4) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("BindTransform", h); err != nil {
		return err
	}
	if _, ok := r.params[h]; !ok {
		return fmt.Errorf("%w: %d", backend.ErrUnknownHandle, h)
	}
	r.transforms[h] = m
	return nil
}

func (r *Recorder) BindParameters(h backend.Handle, params backend.Params) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("BindParameters", h); err != nil {
		return err
	}
	if _, ok := r.params[h]; !ok {
		return fmt.Errorf("%w: %d", backend.ErrUnknownHandle, h)
	}
	r.params[h] = params
	return nil
}

func (r *Recorder) MarkAccelerationDirty(h backend.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record("MarkAccelerationDirty", h)
}

func (r *Recorder) ReleaseEntityResources(h backend.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("ReleaseEntityResources", h); err != nil {
		return err
	}
	if _, ok := r.params[h]; !ok {
		return fmt.Errorf("%w: %d", backend.ErrUnknownHandle, h)
	}
	delete(r.params, h)
	delete(r.transforms, h)
	return nil
}

func (r *Recorder) SetEntryPointCount(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.record("SetEntryPointCount", backend.NoHandle, n)
	r.entryPoints = n
}

func (r *Recorder) SetLightCount(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.record("SetLightCount", backend.NoHandle, n)
	r.lights = n
}

func (r *Recorder) SetMissColor(c mgl64.Vec3) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.record("SetMissColor", backend.NoHandle)
	r.miss = c
}

func (r *Recorder) ResizeOutput(width, height int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("ResizeOutput", backend.NoHandle, width, height); err != nil {
		return err
	}
	r.width, r.height = width, height
	return nil
}

func (r *Recorder) LaunchFrame(entry, width, height int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("LaunchFrame", backend.NoHandle, entry, width, height); err != nil {
		return err
	}
	if entry < 0 || entry >= r.entryPoints {
		return fmt.Errorf("%w: entry %d of %d", backend.ErrInvalidContext, entry, r.entryPoints)
	}
	return nil
}

func (r *Recorder) ReadFramebuffer() (*backend.Framebuffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("ReadFramebuffer", backend.NoHandle); err != nil {
		return nil, err
	}
	return backend.NewFramebuffer(r.width, r.height), nil
}

func (r *Recorder) ValidateContext() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record("ValidateContext", backend.NoHandle)
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.record("Close", backend.NoHandle)
	r.closed = true
	return nil
}
