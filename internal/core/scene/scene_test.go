package scene

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nslaift/nslaift/internal/backend"
	"github.com/nslaift/nslaift/internal/backend/recorder"
	"github.com/nslaift/nslaift/internal/core/events/bus"
	"github.com/nslaift/nslaift/internal/imageout"
)

type fixture struct {
	scene *Scene
	rec   *recorder.Recorder
	sink  *imageout.Memory
	bus   bus.EventBus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rec := recorder.New()
	sink := &imageout.Memory{}
	b := bus.New()
	s, err := New(Config{Backend: rec, Sink: sink, Bus: b})
	require.NoError(t, err)
	return &fixture{scene: s, rec: rec, sink: sink, bus: b}
}

func TestNewRequiresBackend(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestEndToEndScenario(t *testing.T) {
	f := newFixture(t)
	s := f.scene

	_, err := s.CreateEntity("cam1", "camera", "")
	require.NoError(t, err)
	sphere, err := s.CreateEntity("sphere1", "sphere", "")
	require.NoError(t, err)
	require.NoError(t, s.Manipulate("sphere1", "translate", "0,0,5"))
	_, err = s.CreateEntity("light1", "light", "")
	require.NoError(t, err)

	require.NoError(t, s.RefreshCaches())
	assert.True(t, sphere.CacheValid())
	m, ok := f.rec.Transform(sphere.Handle())
	require.True(t, ok)
	assert.Equal(t, mgl64.Vec3{0, 0, 5}, mgl64.Vec3{m.At(0, 3), m.At(1, 3), m.At(2, 3)})

	f.rec.Reset()
	require.NoError(t, s.Render(context.Background(), 1))

	assert.Equal(t, 1, f.rec.Count("LaunchFrame"))
	assert.Equal(t, 1, f.rec.Count("ReadFramebuffer"))
	assert.Equal(t, 0, f.rec.Count("BindTransform"), "render after refresh re-pushes nothing")
	assert.Equal(t, uint64(1), s.RenderCount())

	frames := f.sink.Frames()
	require.Len(t, frames, 1)
	assert.Equal(t, "cam1", frames[0].Camera)
	assert.Equal(t, uint64(0), frames[0].Counter)
	assert.Equal(t, DefaultCameraWidth, frames[0].Buffer.Width)
}

func TestRefreshCachesRequiresCameraAndLight(t *testing.T) {
	f := newFixture(t)
	s := f.scene

	_, err := s.CreateEntity("sphere1", "sphere", "")
	require.NoError(t, err)
	f.rec.Reset()

	assert.ErrorIs(t, s.RefreshCaches(), ErrNotRenderable)
	assert.ErrorIs(t, s.Render(context.Background(), 1), ErrNotRenderable)

	_, err = s.CreateEntity("cam1", "camera", "")
	require.NoError(t, err)
	f.rec.Reset()
	assert.ErrorIs(t, s.RefreshCaches(), ErrNotRenderable)
	assert.Empty(t, f.rec.Calls(), "no backend call before the precondition holds")
}

func TestRefreshCachesOrderAndIdempotence(t *testing.T) {
	f := newFixture(t)
	s := f.scene
	light, _ := s.CreateEntity("l", "pointlight", "")
	obj, _ := s.CreateEntity("o", "sphere", "")
	c, _ := s.CreateEntity("c", "camera", "")
	f.rec.Reset()

	require.NoError(t, s.RefreshCaches())
	var order []backend.Handle
	for _, call := range f.rec.Calls() {
		if call.Method == "BindTransform" {
			order = append(order, call.Handle)
		}
	}
	assert.Equal(t, []backend.Handle{c.Handle(), obj.Handle(), light.Handle()}, order)
	assert.Equal(t, 1, f.rec.Count("SetMissColor"))
	assert.Equal(t, 1, f.rec.Count("ValidateContext"))

	f.rec.Reset()
	require.NoError(t, s.RefreshCaches())
	assert.Equal(t, 0, f.rec.Count("BindTransform"))
	assert.Equal(t, 0, f.rec.Count("SetMissColor"))
	assert.Equal(t, 1, f.rec.Count("ValidateContext"))
}

func TestCreateEntityErrors(t *testing.T) {
	f := newFixture(t)
	s := f.scene

	_, err := s.CreateEntity("  ", "camera", "")
	assert.ErrorIs(t, err, ErrEmptyName)

	_, err = s.CreateEntity("x", "teapot", "")
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = s.CreateEntity("shared", "camera", "")
	require.NoError(t, err)
	_, err = s.CreateEntity("SHARED", "sphere", "")
	assert.ErrorIs(t, err, ErrNameTaken)
	assert.Equal(t, 0, s.Objects().Len())

	_, err = s.CreateEntity("s", "sphere", "-3")
	assert.ErrorIs(t, err, ErrBadParameters)
	assert.Nil(t, s.FindEntity("s"))

	f.rec.FailOn("CreateEntityResources", errors.New("out of memory"))
	_, err = s.CreateEntity("l", "light", "")
	assert.ErrorIs(t, err, ErrBackend)
	assert.Equal(t, 0, s.Lights().Len())
	assert.Equal(t, 0, f.rec.LightCount())
}

func TestCreateEntityWithParams(t *testing.T) {
	s := newFixture(t).scene

	c, err := s.CreateEntity("cam", "camera", "320x240")
	require.NoError(t, err)
	w, h := c.Behavior().(*Camera).Resolution()
	assert.Equal(t, 320, w)
	assert.Equal(t, 240, h)

	sp, err := s.CreateEntity("ball", "sphere", "0.75")
	require.NoError(t, err)
	assert.Equal(t, 0.75, sp.Behavior().(*Sphere).Radius)

	l, err := s.CreateEntity("sun", "arealight", "1,0.9,0.8")
	require.NoError(t, err)
	assert.Equal(t, mgl64.Vec3{1, 0.9, 0.8}, l.Behavior().(*AreaLight).Color)
	assert.Equal(t, "arealight", l.Kind())
}

func TestFindEntityPrecedence(t *testing.T) {
	f := newFixture(t)
	s := f.scene

	// registries stay unique scene-wide, so inject an object that shares
	// a camera name directly to exercise precedence.
	c, err := s.CreateEntity("dup", "camera", "")
	require.NoError(t, err)
	obj := newEntity(99, "other", "sphere", CategoryObject, NewSphere())
	_, err = s.Objects().Add(obj)
	require.NoError(t, err)
	obj.name = "DUP"

	assert.Same(t, c, s.FindEntity("dup"))
	assert.Nil(t, s.FindEntity("nobody"))
}

func TestManipulateErrors(t *testing.T) {
	s := newFixture(t).scene
	_, err := s.CreateEntity("s", "sphere", "")
	require.NoError(t, err)

	assert.ErrorIs(t, s.Manipulate("missing", "translate", "1,0,0"), ErrNotFound)
	assert.ErrorIs(t, s.Manipulate("s", "warp", "1"), ErrUnknownAction)
	assert.ErrorIs(t, s.Manipulate("s", "translate", "1,0"), ErrBadParameters)
	assert.NoError(t, s.Manipulate("S", "translate", "1,0,0"))
}

func TestRenameThroughSceneRejectsCollision(t *testing.T) {
	s := newFixture(t).scene
	_, _ = s.CreateEntity("cam1", "camera", "")
	_, _ = s.CreateEntity("s", "sphere", "")

	assert.ErrorIs(t, s.Manipulate("s", "setName", "CAM1"), ErrBadParameters)
	require.NoError(t, s.Manipulate("s", "setName", "ball"))
	assert.NotNil(t, s.FindEntity("ball"))
	assert.Nil(t, s.FindEntity("s"))

	// renaming to its own name is allowed
	assert.NoError(t, s.Manipulate("ball", "setName", "Ball"))
}

func TestSetMaterial(t *testing.T) {
	s := newFixture(t).scene
	sp, _ := s.CreateEntity("s", "sphere", "")
	_, _ = s.CreateEntity("c", "camera", "")

	require.NoError(t, s.SetMaterial("s", "normal"))
	assert.Equal(t, MaterialNormal, sp.Material().Type)
	assert.ErrorIs(t, s.SetMaterial("c", "normal"), ErrUnknownAction)
	assert.ErrorIs(t, s.SetMaterial("s", "velvet"), ErrBadParameters)
}

func TestDeleteCameraKeepsEntriesDense(t *testing.T) {
	f := newFixture(t)
	s := f.scene
	for _, n := range []string{"c0", "c1", "c2", "c3"} {
		_, err := s.CreateEntity(n, "camera", "")
		require.NoError(t, err)
	}
	_, _ = s.CreateEntity("l", "light", "")
	require.NoError(t, s.RefreshCaches())

	require.NoError(t, s.DeleteEntity("c1"))
	assert.Equal(t, 3, f.rec.EntryPointCount())
	for i, c := range s.Cameras().All() {
		assert.Equal(t, i, c.Slot())
	}

	// shifted cameras re-push their entry index
	f.rec.Reset()
	require.NoError(t, s.RefreshCaches())
	assert.Equal(t, 2, f.rec.Count("BindParameters"))
	c3 := s.FindEntity("c3")
	p, ok := f.rec.Params(c3.Handle())
	require.True(t, ok)
	assert.Equal(t, 2, p.(backend.CameraParams).Entry)

	assert.ErrorIs(t, s.DeleteEntity("c1"), ErrNotFound)
}

func TestDeleteEntityTearsDownAndFixesParents(t *testing.T) {
	f := newFixture(t)
	s := f.scene
	parent, _ := s.CreateEntity("parent", "sphere", "")
	child, _ := s.CreateEntity("child", "cuboid", "")
	child.SetParent(parent)
	_, _ = s.CreateEntity("c", "camera", "")
	_, _ = s.CreateEntity("l", "light", "")
	require.NoError(t, s.RefreshCaches())
	live := f.rec.Live()

	f.rec.Reset()
	require.NoError(t, s.DeleteEntity("parent"))
	assert.Nil(t, child.Parent())
	assert.Equal(t, live-1, f.rec.Live())
	assert.Equal(t, 1, f.rec.Count("ReleaseEntityResources"))

	// top level group is marked dirty on the next refresh
	require.NoError(t, s.RefreshCaches())
	var rootMarks int
	for _, c := range f.rec.Calls() {
		if c.Method == "MarkAccelerationDirty" && c.Handle == backend.RootHandle {
			rootMarks++
		}
	}
	assert.Equal(t, 1, rootMarks)
}

func TestDeleteEntityBackendFailureKeepsEntity(t *testing.T) {
	f := newFixture(t)
	_, _ = f.scene.CreateEntity("s", "sphere", "")
	f.rec.FailOn("ReleaseEntityResources", errors.New("device lost"))

	assert.ErrorIs(t, f.scene.DeleteEntity("s"), ErrBackend)
	assert.NotNil(t, f.scene.FindEntity("s"))
}

func TestRenderMultipleCameras(t *testing.T) {
	f := newFixture(t)
	s := f.scene
	_, _ = s.CreateEntity("small", "camera", "64x32")
	_, _ = s.CreateEntity("large", "camera", "128x96")
	_, _ = s.CreateEntity("l", "light", "")
	f.rec.Reset()

	require.NoError(t, s.Render(context.Background(), 3))

	var sequence []string
	for _, c := range f.rec.Calls() {
		switch c.Method {
		case "ResizeOutput", "LaunchFrame", "ReadFramebuffer":
			sequence = append(sequence, c.Method)
		}
	}
	assert.Equal(t, []string{
		"ResizeOutput", "LaunchFrame", "LaunchFrame", "LaunchFrame", "ReadFramebuffer",
		"ResizeOutput", "LaunchFrame", "LaunchFrame", "LaunchFrame", "ReadFramebuffer",
	}, sequence)

	var launches [][]int
	for _, c := range f.rec.Calls() {
		if c.Method == "LaunchFrame" {
			launches = append(launches, c.Args)
		}
	}
	assert.Equal(t, []int{0, 64, 32}, launches[0])
	assert.Equal(t, []int{1, 128, 96}, launches[3])

	frames := f.sink.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, "small", frames[0].Camera)
	assert.Equal(t, 64, frames[0].Buffer.Width)
	assert.Equal(t, "large", frames[1].Camera)
	assert.Equal(t, uint64(1), s.RenderCount())

	require.NoError(t, s.Render(context.Background(), 1))
	assert.Equal(t, uint64(1), f.sink.Frames()[2].Counter)
}

func TestRenderRejectsBadIterations(t *testing.T) {
	s := newFixture(t).scene
	assert.ErrorIs(t, s.Render(context.Background(), 0), ErrBadParameters)
}

func TestRenderHonoursCancelledContext(t *testing.T) {
	f := newFixture(t)
	_, _ = f.scene.CreateEntity("c", "camera", "")
	_, _ = f.scene.CreateEntity("l", "light", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, f.scene.Render(ctx, 1), context.Canceled)
	assert.Equal(t, 0, f.rec.Count("LaunchFrame"))
	assert.Equal(t, uint64(0), f.scene.RenderCount())
}

func TestRenderBackendFailure(t *testing.T) {
	f := newFixture(t)
	_, _ = f.scene.CreateEntity("c", "camera", "")
	_, _ = f.scene.CreateEntity("l", "light", "")
	f.rec.FailOn("ValidateContext", backend.ErrInvalidContext)

	err := f.scene.Render(context.Background(), 1)
	assert.ErrorIs(t, err, ErrBackend)
	assert.ErrorIs(t, err, backend.ErrInvalidContext)
	assert.Equal(t, 0, f.rec.Count("LaunchFrame"))
}

func TestBackgroundColor(t *testing.T) {
	f := newFixture(t)
	s := f.scene
	_, _ = s.CreateEntity("c", "camera", "")
	_, _ = s.CreateEntity("l", "light", "")
	require.NoError(t, s.RefreshCaches())

	s.SetBackgroundColor(mgl64.Vec3{0.1, 0.2, 0.3})
	f.rec.Reset()
	require.NoError(t, s.RefreshCaches())
	assert.Equal(t, 1, f.rec.Count("SetMissColor"))
	assert.Equal(t, mgl64.Vec3{0.1, 0.2, 0.3}, f.rec.MissColor())
	assert.Equal(t, mgl64.Vec3{0.1, 0.2, 0.3}, s.BackgroundColor())
}

func TestClearAndClose(t *testing.T) {
	f := newFixture(t)
	s := f.scene
	_, _ = s.CreateEntity("c", "camera", "")
	_, _ = s.CreateEntity("s", "sphere", "")
	_, _ = s.CreateEntity("l", "light", "")

	require.NoError(t, s.Clear())
	assert.Equal(t, Stats{}, s.Stats())
	assert.Equal(t, 0, f.rec.Live())
	assert.Equal(t, 0, f.rec.EntryPointCount())
	assert.Equal(t, 0, f.rec.LightCount())
	assert.Nil(t, s.Cameras().Active())

	// names are free again
	_, err := s.CreateEntity("c", "camera", "")
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.True(t, f.rec.Closed())
}

func TestSceneEvents(t *testing.T) {
	f := newFixture(t)
	var seen []string
	_, err := f.bus.Subscribe(bus.Wildcard, func(e bus.Event) error {
		seen = append(seen, e.Type())
		return nil
	})
	require.NoError(t, err)

	_, _ = f.scene.CreateEntity("c", "camera", "")
	_, _ = f.scene.CreateEntity("l", "light", "")
	require.NoError(t, f.scene.Render(context.Background(), 1))
	require.NoError(t, f.scene.DeleteEntity("l"))
	require.NoError(t, f.scene.Clear())

	assert.Equal(t, []string{
		EventEntityCreated, EventEntityCreated, EventSceneRendered, EventEntityDeleted, EventSceneCleared,
	}, seen)
}

func TestUniquenessAcrossSequences(t *testing.T) {
	s := newFixture(t).scene
	names := []string{"a", "A", "b", "a ", "B", "c", "C"}
	kinds := []string{"camera", "sphere", "light", "cuboid"}
	for i, n := range names {
		_, _ = s.CreateEntity(n, kinds[i%len(kinds)], "")
	}
	seen := map[string]bool{}
	for _, r := range []*Registry{s.Cameras(), s.Objects(), s.Lights()} {
		for _, e := range r.All() {
			key := e.Name()
			for k := range seen {
				assert.False(t, strings.EqualFold(k, key), "%s and %s collide", k, key)
			}
			seen[key] = true
		}
	}
	assert.Len(t, seen, 3)
}

func TestKindTable(t *testing.T) {
	kinds := DefaultKinds()
	for _, alias := range []string{"light", "LightPoint", "light-point", "pointlight"} {
		spec, ok := kinds.Lookup(alias)
		require.True(t, ok, alias)
		assert.Equal(t, "pointlight", spec.Name)
	}
	assert.Equal(t, []string{"arealight", "camera", "cuboid", "mesh", "pointlight", "sphere"}, kinds.Names())

	assert.Error(t, kinds.Register(KindSpec{Name: "", New: func() Behavior { return NewSphere() }, Category: CategoryObject}))
	assert.Error(t, kinds.Register(KindSpec{Name: "x", Category: CategoryObject}))
	assert.Error(t, kinds.Register(KindSpec{Name: "x", New: func() Behavior { return NewSphere() }}))

	require.NoError(t, kinds.Register(KindSpec{Name: "ball", Category: CategoryObject, New: func() Behavior { return NewSphere() }}))
	s, err := New(Config{Backend: recorder.New(), Kinds: kinds})
	require.NoError(t, err)
	e, err := s.CreateEntity("b", "BALL", "")
	require.NoError(t, err)
	assert.Equal(t, CategoryObject, e.Category())
}
