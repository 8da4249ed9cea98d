package soft

import (
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/dhconnelly/rtreego"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	meshTreeMin = 4
	meshTreeMax = 16
)

// meshNeighbours is the first number of candidate faces fetched per
// evaluation.
const meshNeighbours = 8

const degenerateTolerance = 1e-12

type meshFace struct {
	*sdf.Triangle3
	normal v3.Vec
}

// meshField is the signed distance to a closed triangle mesh. The sign
// comes from the normal of the nearest face, so faces must wind
// counter-clockwise seen from outside.
type meshField struct {
	tree  *rtreego.Rtree
	faces int
	bb    sdf.Box3
}

// newMeshField returns nil when no face is usable.
func newMeshField(triangles [][3]mgl64.Vec3) *meshField {
	objs := make([]rtreego.Spatial, 0, len(triangles))
	var bb sdf.Box3
	for _, t := range triangles {
		tri := &sdf.Triangle3{toV3(t[0]), toV3(t[1]), toV3(t[2])}
		if tri.Degenerate(degenerateTolerance) {
			continue
		}
		n := tri[1].Sub(tri[0]).Cross(tri[2].Sub(tri[0]))
		if n.Length() <= degenerateTolerance {
			continue
		}
		if len(objs) == 0 {
			bb = tri.BoundingBox()
		} else {
			bb = bb.Extend(tri.BoundingBox())
		}
		objs = append(objs, &meshFace{Triangle3: tri, normal: n.Normalize()})
	}
	if len(objs) == 0 {
		return nil
	}
	return &meshField{
		tree:  rtreego.NewTree(3, meshTreeMin, meshTreeMax, objs...),
		faces: len(objs),
		bb:    bb,
	}
}

func (m *meshField) BoundingBox() sdf.Box3 { return m.bb }

// Evaluate widens the neighbour query until no unvisited face can be
// closer than the best one found.
func (m *meshField) Evaluate(p v3.Vec) float64 {
	q := rtreego.Point{p.X, p.Y, p.Z}
	for k := meshNeighbours; ; k *= 2 {
		near := m.tree.NearestNeighbors(k, q)
		best, sign := math.Inf(1), 1.0
		bestAlign := 0.0
		for _, s := range near {
			f, ok := s.(*meshFace)
			if !ok {
				continue
			}
			c := closestOnTriangle(p, f.Triangle3)
			d := p.Sub(c)
			dist := d.Length()
			align := 0.0
			if dist > 0 {
				align = d.Dot(f.normal) / dist
			}
			// faces sharing the closest edge or vertex tie on distance;
			// the one facing p most directly decides the sign
			if dist < best-1e-12 || (dist <= best+1e-12 && math.Abs(align) > math.Abs(bestAlign)) {
				best, bestAlign = dist, align
				if d.Dot(f.normal) < 0 {
					sign = -1
				} else {
					sign = 1
				}
			}
		}
		if len(near) < k || k >= m.faces || boxDistance(p, near[len(near)-1].(*meshFace).BoundingBox()) >= best {
			return sign * best
		}
	}
}

func boxDistance(p v3.Vec, b sdf.Box3) float64 {
	d := b.Min.Sub(p).Max(p.Sub(b.Max)).Max(v3.Vec{})
	return d.Length()
}

// closestOnTriangle is the point of t nearest to p, following the Voronoi
// region walk of Ericson, Real-Time Collision Detection 5.1.5.
func closestOnTriangle(p v3.Vec, t *sdf.Triangle3) v3.Vec {
	a, b, c := t[0], t[1], t[2]
	ab, ac, ap := b.Sub(a), c.Sub(a), p.Sub(a)
	d1, d2 := ab.Dot(ap), ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return a
	}
	bp := p.Sub(b)
	d3, d4 := ab.Dot(bp), ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return b
	}
	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		return a.Add(ab.MulScalar(d1 / (d1 - d3)))
	}
	cp := p.Sub(c)
	d5, d6 := ab.Dot(cp), ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return c
	}
	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		return a.Add(ac.MulScalar(d2 / (d2 - d6)))
	}
	va := d3*d6 - d5*d4
	if va <= 0 && d4-d3 >= 0 && d5-d6 >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return b.Add(c.Sub(b).MulScalar(w))
	}
	denom := 1 / (va + vb + vc)
	v, w := vb*denom, vc*denom
	return a.Add(ab.MulScalar(v)).Add(ac.MulScalar(w))
}
