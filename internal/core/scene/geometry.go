package scene

import (
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/nslaift/nslaift/internal/backend"
	"github.com/nslaift/nslaift/internal/core/meshio"
	"github.com/nslaift/nslaift/internal/core/transform"
)

const DefaultSphereRadius = 0.1

// Sphere is centered on the entity origin.
type Sphere struct {
	Radius float64
}

func NewSphere() *Sphere {
	return &Sphere{Radius: DefaultSphereRadius}
}

func (s *Sphere) ApplyAction(e *Entity, action, params string) Status {
	switch strings.ToLower(action) {
	case "setradius", "radius":
		r, err := transform.ParseFloat(params)
		if err != nil || r <= 0 {
			return BadParameters
		}
		s.Radius = r
		e.Invalidate()
		return Handled
	}
	return Unrecognized
}

func (s *Sphere) Params(e *Entity) backend.Params {
	return backend.SphereParams{
		Radius:   s.Radius,
		Visible:  e.Visible(),
		Material: e.materialParams(),
	}
}

// Cuboid is an axis aligned box in entity space.
type Cuboid struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

func NewCuboid() *Cuboid {
	return &Cuboid{
		Min: mgl64.Vec3{-2, -2, 8},
		Max: mgl64.Vec3{2, 2, 12},
	}
}

func (c *Cuboid) ApplyAction(e *Entity, action, params string) Status {
	switch strings.ToLower(action) {
	case "setminmax", "minmax", "setbounds", "bounds":
		v, err := transform.ParseFloats(params, transform.DefaultDelimiter, 6)
		if err != nil {
			return BadParameters
		}
		lo := mgl64.Vec3{v[0], v[1], v[2]}
		hi := mgl64.Vec3{v[3], v[4], v[5]}
		for i := 0; i < 3; i++ {
			if lo[i] >= hi[i] {
				return BadParameters
			}
		}
		c.Min, c.Max = lo, hi
		e.Invalidate()
		return Handled
	}
	return Unrecognized
}

func (c *Cuboid) Params(e *Entity) backend.Params {
	return backend.CuboidParams{
		Min:      c.Min,
		Max:      c.Max,
		Visible:  e.Visible(),
		Material: e.materialParams(),
	}
}

// Mesh is a triangle mesh loaded from a PLY file. It draws nothing until
// the first successful load.
type Mesh struct {
	Source    string
	Triangles [][3]mgl64.Vec3
}

func NewMesh() *Mesh {
	return &Mesh{}
}

// ApplyAction handles load_mesh and set_mesh, both taking a PLY path. A
// file that cannot be read leaves the current mesh in place.
func (m *Mesh) ApplyAction(e *Entity, action, params string) Status {
	switch strings.ToLower(action) {
	case "load_mesh", "set_mesh", "loadmesh", "setmesh":
		path := strings.TrimSpace(params)
		if path == "" {
			return BadParameters
		}
		loaded, err := meshio.Load(path)
		if err != nil {
			return BadParameters
		}
		m.Source, m.Triangles = path, loaded.Triangles()
		e.Invalidate()
		return Handled
	}
	return Unrecognized
}

func (m *Mesh) Params(e *Entity) backend.Params {
	return backend.MeshParams{
		Source:    m.Source,
		Triangles: m.Triangles,
		Visible:   e.Visible(),
		Material:  e.materialParams(),
	}
}
