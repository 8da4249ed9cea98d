// Package backend defines the contract between the scene graph and a
// rendering backend. The scene owns entity state and pushes it through this
// interface; the backend owns whatever device or CPU resources back it.
package backend

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/nslaift/nslaift/internal/core/observability/log"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not registered.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrUnknownHandle is returned for handles the backend never issued or already released.
	ErrUnknownHandle = errors.New("backend: unknown handle")

	// ErrUnsupportedParams is returned when a backend cannot build a resource kind.
	ErrUnsupportedParams = errors.New("backend: unsupported parameters")

	// ErrInvalidContext is returned by ValidateContext when the pipeline cannot launch.
	ErrInvalidContext = errors.New("backend: invalid context")

	// ErrClosed is returned for calls on a closed backend.
	ErrClosed = errors.New("backend: closed")
)

// Handle refers to the resources created for one entity.
type Handle uint64

const (
	// NoHandle is never issued by a backend.
	NoHandle Handle = 0
	// RootHandle addresses the top-level acceleration group.
	RootHandle Handle = ^Handle(0)
)

// Backend is the narrow interface the scene drives.
type Backend interface {
	Name() string

	CreateEntityResources(params Params) (Handle, error)
	BindTransform(h Handle, m, inv mgl64.Mat4) error
	BindParameters(h Handle, params Params) error
	MarkAccelerationDirty(h Handle) error
	ReleaseEntityResources(h Handle) error

	SetEntryPointCount(n int)
	SetLightCount(n int)
	SetMissColor(c mgl64.Vec3)

	ResizeOutput(width, height int) error
	LaunchFrame(entry, width, height int) error
	ReadFramebuffer() (*Framebuffer, error)
	ValidateContext() error

	Close() error
}

// Framebuffer is a linear RGBA float image, top row first.
type Framebuffer struct {
	Width  int
	Height int
	Pix    []float32
}

func NewFramebuffer(width, height int) *Framebuffer {
	return &Framebuffer{Width: width, Height: height, Pix: make([]float32, width*height*4)}
}

// At returns the RGBA value of pixel (x, y).
func (f *Framebuffer) At(x, y int) [4]float32 {
	i := (y*f.Width + x) * 4
	return [4]float32{f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3]}
}

func (f *Framebuffer) Set(x, y int, c [4]float32) {
	i := (y*f.Width + x) * 4
	copy(f.Pix[i:i+4], c[:])
}

// Options configures a backend instance.
type Options struct {
	Workers int
	Logger  log.Log
}

// Factory builds a backend.
type Factory func(opts Options) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a backend available by name. Registering a name twice
// replaces the previous factory.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = f
}

// Open builds the backend registered under name.
func Open(name string, opts Options) (Backend, error) {
	registryMu.RLock()
	f, ok := registry[strings.ToLower(name)]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotAvailable, name)
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return f(opts)
}

// Names lists registered backends in lexical order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
