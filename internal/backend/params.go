package backend

import (
	"github.com/go-gl/mathgl/mgl64"
)

// Params describes the kind-specific state of one entity.
type Params interface {
	ResourceKind() ResourceKind
}

type ResourceKind uint8

const (
	ResourceCamera ResourceKind = iota + 1
	ResourceSphere
	ResourceCuboid
	ResourceLight
	ResourceMesh
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceCamera:
		return "camera"
	case ResourceSphere:
		return "sphere"
	case ResourceCuboid:
		return "cuboid"
	case ResourceLight:
		return "light"
	case ResourceMesh:
		return "mesh"
	default:
		return "unknown"
	}
}

// Projection codes as understood by the ray generation programs.
const (
	ProjectionGeneric     = 0
	ProjectionPinhole     = 1
	ProjectionTelecentric = 10
)

// CameraParams carries the pinhole model of one camera entry point.
type CameraParams struct {
	Entry        int
	Projection   int
	Width        int
	Height       int
	Intrinsics   mgl64.Mat4
	Distortion   [5]float64
	Undistortion [5]float64
}

func (CameraParams) ResourceKind() ResourceKind { return ResourceCamera }

// MaterialParams is the shading model bound to a geometric object.
type MaterialParams struct {
	Type             string
	Color            mgl64.Vec3
	Diffuse          mgl64.Vec3
	Specular         mgl64.Vec3
	SpecularExponent float64
}

type SphereParams struct {
	Radius   float64
	Visible  bool
	Material MaterialParams
}

func (SphereParams) ResourceKind() ResourceKind { return ResourceSphere }

type CuboidParams struct {
	Min      mgl64.Vec3
	Max      mgl64.Vec3
	Visible  bool
	Material MaterialParams
}

func (CuboidParams) ResourceKind() ResourceKind { return ResourceCuboid }

// MeshParams is a triangle soup in entity space. Source names the file it
// was loaded from and is empty before the first load.
type MeshParams struct {
	Source    string
	Triangles [][3]mgl64.Vec3
	Visible   bool
	Material  MaterialParams
}

func (MeshParams) ResourceKind() ResourceKind { return ResourceMesh }

// Light types as understood by the shading programs.
const (
	LightPoint         = 0
	LightParallelogram = 1
	LightProjector     = 2
)

type LightParams struct {
	Slot        int
	Type        int
	Color       mgl64.Vec3
	Power       float64
	DecayRadius float64
	U           mgl64.Vec3
	V           mgl64.Vec3
}

func (LightParams) ResourceKind() ResourceKind { return ResourceLight }
