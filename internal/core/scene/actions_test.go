package scene

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nslaift/nslaift/internal/backend"
)

// resetOverride claims the generic "reset" action for itself.
type resetOverride struct {
	calls int
}

func (r *resetOverride) ApplyAction(_ *Entity, action, _ string) Status {
	if action == "reset" {
		r.calls++
		return Handled
	}
	return Unrecognized
}

func (r *resetOverride) Params(*Entity) backend.Params { return backend.SphereParams{} }

func TestBaseActions(t *testing.T) {
	e := newTestEntity(CategoryObject, NewSphere())

	require.Equal(t, Handled, e.ApplyAction("translate", " 0.3, 0.0, 2.0"))
	assertPosition(t, mgl64.Vec3{0.3, 0, 2}, e)

	require.Equal(t, Handled, e.ApplyAction("MOVE", "1,0,0"))
	assertPosition(t, mgl64.Vec3{1.3, 0, 2}, e)

	require.Equal(t, Handled, e.ApplyAction("setPosition", "0,0,5"))
	assertPosition(t, mgl64.Vec3{0, 0, 5}, e)

	require.Equal(t, Handled, e.ApplyAction("spin", "0,0,0"))
	require.Equal(t, Handled, e.ApplyAction("rotate", "0,0,0"))
	assertPosition(t, mgl64.Vec3{0, 0, 5}, e)

	require.Equal(t, Handled, e.ApplyAction("setVisible", "0"))
	assert.False(t, e.Visible())
	require.Equal(t, Handled, e.ApplyAction("visible", "1"))
	assert.True(t, e.Visible())

	require.Equal(t, Handled, e.ApplyAction("transform", "1,0,0,1, 0,1,0,0, 0,0,1,0, 0,0,0,1"))
	assertPosition(t, mgl64.Vec3{1, 0, 5}, e)

	require.Equal(t, Handled, e.ApplyAction("setTransformationMatrix", "1,0,0,9, 0,1,0,0, 0,0,1,0, 0,0,0,1"))
	assertPosition(t, mgl64.Vec3{9, 0, 0}, e)

	require.Equal(t, Handled, e.ApplyAction("reset", ""))
	assert.Equal(t, mgl64.Ident4(), e.Matrix())

	require.Equal(t, Handled, e.ApplyAction("setName", " renamed "))
	assert.Equal(t, "renamed", e.Name())
}

func TestMalformedParametersLeaveStateUnchanged(t *testing.T) {
	e := newTestEntity(CategoryObject, NewSphere())
	e.Translate(1, 2, 3)
	e.cacheValid = true
	before := e.Matrix()

	cases := []struct{ action, params string }{
		{"translate", "1,2"},
		{"move", "a,b,c"},
		{"setPosition", "1,2,3,4"},
		{"spin", ""},
		{"rotate", "1,,3"},
		{"transform", "1,2,3"},
		{"setTransformationMatrix", "1,0,0,0"},
		{"setVisible", "maybe"},
		{"setName", "  "},
		{"radius", "-1"},
		{"radius", "zero"},
		{"setMaterialType", "chrome"},
		{"setMaterialParameter", "color"},
		{"setMaterialParameter", "color;1,2"},
	}
	for _, c := range cases {
		st := e.ApplyAction(c.action, c.params)
		assert.Less(t, int(st), 0, "%s %q", c.action, c.params)
		assert.Equal(t, before, e.Matrix(), c.action)
		assert.True(t, e.CacheValid(), "%s must not invalidate", c.action)
	}
	assert.Equal(t, DefaultSphereRadius, e.Behavior().(*Sphere).Radius)
	assert.Equal(t, MaterialPhong, e.Material().Type)
}

func TestUnknownActionIsPositiveAndHasNoEffect(t *testing.T) {
	e := newTestEntity(CategoryObject, NewSphere())
	e.Translate(1, 0, 0)
	e.cacheValid = true
	before := *e.Behavior().(*Sphere)
	matrix := e.Matrix()

	st := e.ApplyAction("explode", "1,2,3")
	assert.Greater(t, int(st), 0)
	assert.Equal(t, Unrecognized, st)
	assert.Equal(t, matrix, e.Matrix())
	assert.Equal(t, before, *e.Behavior().(*Sphere))
	assert.True(t, e.CacheValid())
}

func TestKindActionShadowsBase(t *testing.T) {
	override := &resetOverride{}
	e := newTestEntity(CategoryObject, override)
	e.Translate(1, 0, 0)

	require.Equal(t, Handled, e.ApplyAction("reset", ""))
	assert.Equal(t, 1, override.calls)
	assertPosition(t, mgl64.Vec3{1, 0, 0}, e)
}

func TestSphereRadius(t *testing.T) {
	e := newTestEntity(CategoryObject, NewSphere())
	require.Equal(t, Handled, e.ApplyAction("radius", "0.5"))
	assert.Equal(t, 0.5, e.Behavior().(*Sphere).Radius)
	require.Equal(t, Handled, e.ApplyAction("setRadius", "2"))
	assert.Equal(t, 2.0, e.Behavior().(*Sphere).Radius)
	assert.False(t, e.CacheValid())
}

func TestCuboidMinMax(t *testing.T) {
	e := newTestEntity(CategoryObject, NewCuboid())
	c := e.Behavior().(*Cuboid)
	assert.Equal(t, mgl64.Vec3{-2, -2, 8}, c.Min)

	require.Equal(t, Handled, e.ApplyAction("setMinMax", "-1,-1,-1, 1,1,1"))
	assert.Equal(t, mgl64.Vec3{-1, -1, -1}, c.Min)
	assert.Equal(t, mgl64.Vec3{1, 1, 1}, c.Max)

	assert.Equal(t, BadParameters, e.ApplyAction("minmax", "1,1,1, 0,2,2"))
	assert.Equal(t, mgl64.Vec3{-1, -1, -1}, c.Min)
}

func TestMaterialActions(t *testing.T) {
	e := newTestEntity(CategoryObject, NewSphere())

	for _, action := range []string{"setMaterialType", "setBRDF", "materialType", "brdf", "setMaterial", "material"} {
		require.Equal(t, Handled, e.ApplyAction(action, "NORMAL"), action)
		assert.Equal(t, MaterialNormal, e.Material().Type)
		require.Equal(t, Handled, e.ApplyAction(action, "phong"), action)
	}

	require.Equal(t, Handled, e.ApplyAction("setMaterialParameter", "color;0.1,0.2,0.3"))
	assert.Equal(t, mgl64.Vec3{0.1, 0.2, 0.3}, e.Material().Color)
	require.Equal(t, Handled, e.ApplyAction("materialParameter", "specExp;8"))
	assert.Equal(t, 8.0, e.Material().SpecularExponent)
	require.Equal(t, Handled, e.ApplyAction("materialParameter", "kd;1,1,1"))
	assert.Equal(t, mgl64.Vec3{1, 1, 1}, e.Material().Diffuse)

	p := e.Behavior().Params(e).(backend.SphereParams)
	assert.Equal(t, 8.0, p.Material.SpecularExponent)
}

func TestMaterialActionsWithoutMaterial(t *testing.T) {
	e := newTestEntity(CategoryLight, NewPointLight())
	assert.Nil(t, e.Material())
	assert.Equal(t, Unrecognized, e.ApplyAction("setMaterialType", "phong"))
	assert.Equal(t, Unrecognized, e.ApplyAction("setMaterialParameter", "color;1,1,1"))
}

func TestCameraActions(t *testing.T) {
	e := newTestEntity(CategoryCamera, NewCamera())
	c := e.Behavior().(*Camera)
	assert.Equal(t, 1280, c.Width)
	assert.Equal(t, 960, c.Height)
	assert.Equal(t, 1136.0, c.Intrinsics.At(0, 0))
	assert.Equal(t, 640.0, c.Intrinsics.At(0, 2))
	assert.Equal(t, 480.0, c.Intrinsics.At(1, 2))
	assert.Equal(t, ProjectionPinhole, c.Projection)

	require.Equal(t, Handled, e.ApplyAction("resolution", "640x480"))
	assert.Equal(t, 640, c.Width)
	assert.Equal(t, 480, c.Height)
	assert.Equal(t, BadParameters, e.ApplyAction("setResolution", "640"))
	assert.Equal(t, 640, c.Width)

	require.Equal(t, Handled, e.ApplyAction("setDistortion", "0.1,0.2,0,0,0.3"))
	require.Equal(t, Handled, e.ApplyAction("setUndistortion", ""))
	assert.Equal(t, [5]float64{-0.1, -0.2, 0, 0, -0.3}, c.Undistortion)
	assert.Equal(t, BadParameters, e.ApplyAction("distortion", "1,2,3"))

	require.Equal(t, Handled, e.ApplyAction("setIntrinsics", "500,0,320,0, 0,500,240,0, 0,0,1,0, 0,0,0,1"))
	assert.Equal(t, 500.0, c.Intrinsics.At(0, 0))

	require.Equal(t, Handled, e.ApplyAction("projectionType", "telecentric"))
	assert.Equal(t, ProjectionTelecentric, c.Projection)
	require.Equal(t, Handled, e.ApplyAction("setProjectionType", "0"))
	assert.Equal(t, ProjectionGeneric, c.Projection)
	assert.Equal(t, BadParameters, e.ApplyAction("setProjectionType", "fisheye"))

	// camera falls back to the base handler
	require.Equal(t, Handled, e.ApplyAction("translate", "0,0,-5"))
	assertPosition(t, mgl64.Vec3{0, 0, -5}, e)
	assert.Equal(t, Unrecognized, e.ApplyAction("radius", "1"))
}

func TestLightChain(t *testing.T) {
	e := newTestEntity(CategoryLight, NewPointLight())
	l := e.Behavior().(*PointLight)

	require.Equal(t, Handled, e.ApplyAction("decayRadius", "0"))
	assert.Equal(t, 1.0, l.DecayRadius)
	require.Equal(t, Handled, e.ApplyAction("setDecayRadius", "3"))
	assert.Equal(t, 3.0, l.DecayRadius)

	// LightSource level
	require.Equal(t, Handled, e.ApplyAction("color", "1,0.5,0"))
	assert.Equal(t, mgl64.Vec3{1, 0.5, 0}, l.Color)
	require.Equal(t, Handled, e.ApplyAction("setPower", "4"))
	assert.Equal(t, 4.0, l.Power)
	assert.Equal(t, BadParameters, e.ApplyAction("power", "-1"))

	// Entity level
	require.Equal(t, Handled, e.ApplyAction("setPosition", "0,5,0"))
	assertPosition(t, mgl64.Vec3{0, 5, 0}, e)

	p := l.Params(e).(backend.LightParams)
	assert.Equal(t, backend.LightPoint, p.Type)
	assert.Equal(t, 4.0, p.Power)
	assert.Equal(t, 3.0, p.DecayRadius)
}

func TestAreaLightActions(t *testing.T) {
	e := newTestEntity(CategoryLight, NewAreaLight())
	a := e.Behavior().(*AreaLight)

	require.Equal(t, Handled, e.ApplyAction("setU", "2,0,0"))
	require.Equal(t, Handled, e.ApplyAction("v", "0,0,2"))
	assert.Equal(t, mgl64.Vec3{2, 0, 0}, a.U)
	assert.Equal(t, mgl64.Vec3{0, 0, 2}, a.V)
	assert.Equal(t, BadParameters, e.ApplyAction("setU", "0,0,0"))
	require.Equal(t, Handled, e.ApplyAction("setColor", "0,1,0"))

	p := a.Params(e).(backend.LightParams)
	assert.Equal(t, backend.LightParallelogram, p.Type)
	assert.Equal(t, mgl64.Vec3{0, 1, 0}, p.Color)
}

func TestStatusErr(t *testing.T) {
	assert.NoError(t, Handled.Err())
	assert.ErrorIs(t, BadParameters.Err(), ErrBadParameters)
	assert.ErrorIs(t, Status(-7).Err(), ErrBadParameters)
	assert.ErrorIs(t, Unrecognized.Err(), ErrUnknownAction)
	assert.Equal(t, "unrecognized", Status(3).String())
}
