package scene

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nslaift/nslaift/internal/backend"
	"github.com/nslaift/nslaift/internal/backend/recorder"
	"github.com/nslaift/nslaift/internal/core/transform"
)

const eps = 1e-9

func newTestEntity(category Category, b Behavior) *Entity {
	return newEntity(1, "e", "test", category, b)
}

func assertPosition(t *testing.T, want mgl64.Vec3, e *Entity) {
	t.Helper()
	got := e.Position()
	assert.InDeltaSlice(t, want[:], got[:], eps, "want %v, got %v", want, got)
}

func TestTransformAlgebra(t *testing.T) {
	e := newTestEntity(CategoryObject, NewSphere())

	e.Translate(1, 0, 0)
	assertPosition(t, mgl64.Vec3{1, 0, 0}, e)

	e.Move(1, 0, 0)
	assertPosition(t, mgl64.Vec3{2, 0, 0}, e)

	before := e.Matrix()
	e.Spin(0, 0, 0)
	e.Rotate(0, 0, 0)
	after := e.Matrix()
	assert.InDeltaSlice(t, before[:], after[:], eps)
}

func TestMoveIsLocalTranslateIsWorld(t *testing.T) {
	e := newTestEntity(CategoryObject, NewSphere())
	e.Spin(0, 0, 90)

	// local x now points along world y
	e.Move(1, 0, 0)
	assertPosition(t, mgl64.Vec3{0, 1, 0}, e)

	e.Translate(1, 0, 0)
	assertPosition(t, mgl64.Vec3{1, 1, 0}, e)
}

func TestRotateIsWorldSpinIsLocal(t *testing.T) {
	e := newTestEntity(CategoryObject, NewSphere())
	e.SetPosition(1, 0, 0)

	// world rotation swings the position around the origin
	e.Rotate(0, 0, 90)
	assertPosition(t, mgl64.Vec3{0, 1, 0}, e)

	// local rotation keeps it in place
	e.Spin(0, 0, 90)
	assertPosition(t, mgl64.Vec3{0, 1, 0}, e)
}

func TestSetPositionKeepsRotation(t *testing.T) {
	e := newTestEntity(CategoryObject, NewSphere())
	e.Spin(30, 0, 0)
	rot := e.Matrix()

	e.SetPosition(4, 5, 6)
	assertPosition(t, mgl64.Vec3{4, 5, 6}, e)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			assert.InDelta(t, rot.At(r, c), e.Matrix().At(r, c), eps)
		}
	}
}

func TestTransformAndOverwrite(t *testing.T) {
	e := newTestEntity(CategoryObject, NewSphere())
	e.Translate(1, 0, 0)

	e.Transform(transform.Translation(0, 2, 0))
	assertPosition(t, mgl64.Vec3{1, 2, 0}, e)

	e.SetTransformationMatrix(transform.Translation(7, 0, 0))
	assertPosition(t, mgl64.Vec3{7, 0, 0}, e)

	e.Reset()
	assert.Equal(t, mgl64.Ident4(), e.Matrix())
}

func TestDirtyPropagation(t *testing.T) {
	rec := recorder.New()
	mutations := map[string]func(e *Entity){
		"translate":               func(e *Entity) { e.Translate(1, 0, 0) },
		"move":                    func(e *Entity) { e.Move(1, 0, 0) },
		"rotate":                  func(e *Entity) { e.Rotate(0, 10, 0) },
		"spin":                    func(e *Entity) { e.Spin(10, 0, 0) },
		"setPosition":             func(e *Entity) { e.SetPosition(0, 0, 1) },
		"transform":               func(e *Entity) { e.Transform(transform.Translation(0, 1, 0)) },
		"setTransformationMatrix": func(e *Entity) { e.SetTransformationMatrix(transform.Identity()) },
		"reset":                   func(e *Entity) { e.Reset() },
		"setVisible":              func(e *Entity) { e.SetVisible(false) },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			e := newTestEntity(CategoryObject, NewSphere())
			h, err := rec.CreateEntityResources(e.behavior.Params(e))
			require.NoError(t, err)
			e.handle = h

			require.NoError(t, e.RefreshCache(rec))
			require.True(t, e.CacheValid())

			mutate(e)
			assert.False(t, e.CacheValid())

			require.NoError(t, e.RefreshCache(rec))
			assert.True(t, e.CacheValid())
		})
	}
}

func TestRefreshCacheIsIdempotent(t *testing.T) {
	rec := recorder.New()
	e := newTestEntity(CategoryObject, NewSphere())
	h, err := rec.CreateEntityResources(e.behavior.Params(e))
	require.NoError(t, err)
	e.handle = h
	e.Translate(0, 0, 5)

	require.NoError(t, e.RefreshCache(rec))
	require.NoError(t, e.RefreshCache(rec))

	assert.Equal(t, 1, rec.Count("BindTransform"))
	assert.Equal(t, 1, rec.Count("BindParameters"))
	assert.Equal(t, 1, rec.Count("MarkAccelerationDirty"))

	m, ok := rec.Transform(h)
	require.True(t, ok)
	assert.Equal(t, e.Matrix(), m)
}

func TestRefreshCacheOnlyMarksObjectsDirty(t *testing.T) {
	rec := recorder.New()
	e := newTestEntity(CategoryLight, NewPointLight())
	h, err := rec.CreateEntityResources(e.behavior.Params(e))
	require.NoError(t, err)
	e.handle = h

	require.NoError(t, e.RefreshCache(rec))
	assert.Equal(t, 0, rec.Count("MarkAccelerationDirty"))
}

func TestRefreshCacheSingular(t *testing.T) {
	rec := recorder.New()
	e := newTestEntity(CategoryObject, NewSphere())
	e.SetTransformationMatrix(mgl64.Mat4{})

	err := e.RefreshCache(rec)
	assert.ErrorIs(t, err, ErrSingularTransform)
	assert.False(t, e.CacheValid())
	assert.Equal(t, 0, rec.Count("BindTransform"))
}

func TestRefreshCacheBackendFailureStaysDirty(t *testing.T) {
	rec := recorder.New()
	e := newTestEntity(CategoryObject, NewSphere())
	h, err := rec.CreateEntityResources(e.behavior.Params(e))
	require.NoError(t, err)
	e.handle = h
	rec.FailOn("BindParameters", backend.ErrInvalidContext)

	err = e.RefreshCache(rec)
	assert.ErrorIs(t, err, ErrBackend)
	assert.ErrorIs(t, err, backend.ErrInvalidContext)
	assert.False(t, e.CacheValid())
}

func TestParentLink(t *testing.T) {
	parent := newTestEntity(CategoryObject, NewSphere())
	child := newEntity(2, "child", "sphere", CategoryObject, NewSphere())
	child.SetParent(parent)
	assert.Same(t, parent, child.Parent())

	// no transform inheritance
	parent.Translate(1, 0, 0)
	assertPosition(t, mgl64.Vec3{}, child)
}
