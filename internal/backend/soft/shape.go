package soft

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/nslaift/nslaift/internal/backend"
)

// shape is the local-space distance field of one object together with a
// bounding sphere used to skip exact evaluation far from the surface.
type shape struct {
	field  sdf.SDF3
	center mgl64.Vec3
	radius float64
}

// buildShape returns a nil shape for a mesh with no usable faces.
func buildShape(p backend.Params) (*shape, error) {
	var (
		field sdf.SDF3
		err   error
	)
	switch v := p.(type) {
	case backend.SphereParams:
		field, err = sdf.Sphere3D(v.Radius)
	case backend.CuboidParams:
		size := v.Max.Sub(v.Min)
		center := v.Min.Add(v.Max).Mul(0.5)
		field, err = sdf.Box3D(toV3(size), 0)
		if err == nil {
			field = sdf.Transform3D(field, sdf.Translate3d(toV3(center)))
		}
	case backend.MeshParams:
		mesh := newMeshField(v.Triangles)
		if mesh == nil {
			return nil, nil
		}
		field = mesh
	default:
		return nil, fmt.Errorf("%w: %T has no shape", backend.ErrUnsupportedParams, p)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrUnsupportedParams, err)
	}

	bb := field.BoundingBox()
	lo, hi := fromV3(bb.Min), fromV3(bb.Max)
	return &shape{
		field:  field,
		center: lo.Add(hi).Mul(0.5),
		radius: hi.Sub(lo).Len() * 0.5,
	}, nil
}

// distance returns the signed distance from the local point p, or a lower
// bound of it when the bound already exceeds limit.
func (s *shape) distance(p mgl64.Vec3, limit float64) float64 {
	if bound := p.Sub(s.center).Len() - s.radius; bound > limit {
		return bound
	}
	return s.field.Evaluate(toV3(p))
}

// fingerprint hashes the parameters that determine an object's shape.
// Material or visibility changes keep the fingerprint.
func fingerprint(p backend.Params) uint64 {
	d := xxhash.New()
	buf := make([]byte, 0, 64)
	buf = append(buf, byte(p.ResourceKind()))
	put := func(vs ...float64) {
		for _, v := range vs {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
	}
	switch v := p.(type) {
	case backend.SphereParams:
		put(v.Radius)
	case backend.CuboidParams:
		put(v.Min[0], v.Min[1], v.Min[2], v.Max[0], v.Max[1], v.Max[2])
	case backend.MeshParams:
		_, _ = d.WriteString(v.Source)
		for _, t := range v.Triangles {
			for _, c := range t {
				put(c[0], c[1], c[2])
			}
			_, _ = d.Write(buf)
			buf = buf[:0]
		}
	}
	_, _ = d.Write(buf)
	return d.Sum64()
}

func toV3(v mgl64.Vec3) v3.Vec {
	return v3.Vec{X: v[0], Y: v[1], Z: v[2]}
}

func fromV3(v v3.Vec) mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}
