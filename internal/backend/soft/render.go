package soft

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/sync/errgroup"

	"github.com/nslaift/nslaift/internal/backend"
	"github.com/nslaift/nslaift/internal/core/observability/log"
	"github.com/nslaift/nslaift/internal/core/transform"
)

const (
	maxSteps    = 256
	maxDistance = 1e4
	hitEpsilon  = 1e-4
	normalDelta = 1e-5
)

type launchKey struct {
	entry      int
	generation uint64
}

// accumulator sums per-pixel samples until the scene or camera changes.
type accumulator struct {
	width, height int
	sum           []float64
	samples       int
	key           launchKey
}

func (a *accumulator) reset(width, height int) {
	a.width, a.height = width, height
	if cap(a.sum) >= width*height*3 {
		a.sum = a.sum[:width*height*3]
		clear(a.sum)
	} else {
		a.sum = make([]float64, width*height*3)
	}
	a.samples = 0
}

func (a *accumulator) resolve(width, height int) *backend.Framebuffer {
	fb := backend.NewFramebuffer(width, height)
	if a.samples == 0 || a.width != width || a.height != height {
		return fb
	}
	scale := 1 / float64(a.samples)
	for i := 0; i < width*height; i++ {
		fb.Pix[i*4] = float32(a.sum[i*3] * scale)
		fb.Pix[i*4+1] = float32(a.sum[i*3+1] * scale)
		fb.Pix[i*4+2] = float32(a.sum[i*3+2] * scale)
		fb.Pix[i*4+3] = 1
	}
	return fb
}

type ray struct {
	origin, dir mgl64.Vec3
}

func (r ray) at(t float64) mgl64.Vec3 { return r.origin.Add(r.dir.Mul(t)) }

type camera struct {
	params backend.CameraParams
	world  mgl64.Mat4
}

// ray maps a continuous pixel position to a world-space ray. The camera
// looks down its local +z axis with +y pointing down the image.
func (c camera) ray(u, v float64) ray {
	k := c.params.Intrinsics
	fx, fy := k.At(0, 0), k.At(1, 1)
	if fx == 0 {
		fx = 1
	}
	if fy == 0 {
		fy = 1
	}
	yn := (v - k.At(1, 2)) / fy
	xn := (u - k.At(0, 2) - k.At(0, 1)*yn) / fx
	xn, yn = undistort(c.params.Undistortion, xn, yn)

	if c.params.Projection == backend.ProjectionTelecentric {
		return ray{
			origin: transform.Apply(c.world, mgl64.Vec3{xn, yn, 0}),
			dir:    transform.ApplyDirection(c.world, mgl64.Vec3{0, 0, 1}).Normalize(),
		}
	}
	return ray{
		origin: transform.Position(c.world),
		dir:    transform.ApplyDirection(c.world, mgl64.Vec3{xn, yn, 1}).Normalize(),
	}
}

// undistort applies the radial-tangential model k1, k2, p1, p2, k3 to
// normalized image coordinates.
func undistort(d [5]float64, x, y float64) (float64, float64) {
	if d == ([5]float64{}) {
		return x, y
	}
	k1, k2, p1, p2, k3 := d[0], d[1], d[2], d[3], d[4]
	r2 := x*x + y*y
	radial := 1 + k1*r2 + k2*r2*r2 + k3*r2*r2*r2
	return x*radial + 2*p1*x*y + p2*(r2+2*x*x),
		y*radial + p1*(r2+2*y*y) + 2*p2*x*y
}

type light struct {
	params backend.LightParams
	world  mgl64.Mat4
}

// sample picks a point on the light and its decay radius.
func (l light) sample(rng *rand.Rand) (mgl64.Vec3, float64) {
	pos := transform.Position(l.world)
	if l.params.Type == backend.LightParallelogram {
		u := transform.ApplyDirection(l.world, l.params.U).Mul(rng.Float64())
		v := transform.ApplyDirection(l.world, l.params.V).Mul(rng.Float64())
		pos = pos.Add(u).Add(v)
	}
	decay := l.params.DecayRadius
	if decay <= 0 {
		decay = 1
	}
	return pos, decay
}

type object struct {
	shape    *shape
	inv      mgl64.Mat4
	material backend.MaterialParams
}

type tracer struct {
	objects []object
	lights  []light
	miss    mgl64.Vec3
}

func (t *tracer) distance(p mgl64.Vec3) (float64, int) {
	best, idx := math.Inf(1), -1
	for i := range t.objects {
		o := &t.objects[i]
		if d := o.shape.distance(transform.Apply(o.inv, p), best); d < best {
			best, idx = d, i
		}
	}
	return best, idx
}

func (t *tracer) normal(p mgl64.Vec3) mgl64.Vec3 {
	dx := mgl64.Vec3{normalDelta, 0, 0}
	dy := mgl64.Vec3{0, normalDelta, 0}
	dz := mgl64.Vec3{0, 0, normalDelta}
	d := func(q mgl64.Vec3) float64 { v, _ := t.distance(q); return v }
	n := mgl64.Vec3{
		d(p.Add(dx)) - d(p.Sub(dx)),
		d(p.Add(dy)) - d(p.Sub(dy)),
		d(p.Add(dz)) - d(p.Sub(dz)),
	}
	if n.Len() == 0 {
		return mgl64.Vec3{0, 0, -1}
	}
	return n.Normalize()
}

func (t *tracer) trace(r ray, rng *rand.Rand) mgl64.Vec3 {
	if len(t.objects) == 0 {
		return t.miss
	}
	dist := 0.0
	for i := 0; i < maxSteps && dist < maxDistance; i++ {
		p := r.at(dist)
		d, idx := t.distance(p)
		if idx < 0 {
			break
		}
		if d < hitEpsilon*(1+dist) {
			return t.shade(&t.objects[idx], p, r.dir, rng)
		}
		dist += d
	}
	return t.miss
}

func (t *tracer) shade(o *object, p, dir mgl64.Vec3, rng *rand.Rand) mgl64.Vec3 {
	m := o.material
	n := t.normal(p)
	switch strings.ToLower(m.Type) {
	case "normal":
		return n.Mul(0.5).Add(mgl64.Vec3{0.5, 0.5, 0.5})
	case "blank":
		return m.Color
	}

	var c mgl64.Vec3
	view := dir.Mul(-1)
	albedo := mul(m.Color, m.Diffuse)
	for _, l := range t.lights {
		pos, decay := l.sample(rng)
		toLight := pos.Sub(p)
		d := toLight.Len()
		if d == 0 {
			continue
		}
		toLight = toLight.Mul(1 / d)
		diffuse := n.Dot(toLight)
		if diffuse <= 0 {
			continue
		}
		reflected := n.Mul(2 * diffuse).Sub(toLight)
		specular := math.Pow(math.Max(0, reflected.Dot(view)), m.SpecularExponent)

		atten := l.params.Power / (1 + (d/decay)*(d/decay))
		contrib := albedo.Mul(diffuse).Add(m.Specular.Mul(specular))
		c = c.Add(mul(contrib, l.params.Color).Mul(atten))
	}
	return c
}

func mul(a, b mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

// LaunchFrame traces one jittered sample per pixel from the camera bound to
// entry and adds it to the accumulated frame. Rows are traced in parallel.
func (b *Backend) LaunchFrame(entry, width, height int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return backend.ErrClosed
	}
	if width != b.width || height != b.height {
		return fmt.Errorf("%w: launch %dx%d on %dx%d output", backend.ErrUnsupportedParams, width, height, b.width, b.height)
	}
	if entry < 0 || entry >= b.entryPoints {
		return fmt.Errorf("%w: entry point %d of %d", backend.ErrInvalidContext, entry, b.entryPoints)
	}
	if b.rootStale {
		return fmt.Errorf("%w: acceleration root not rebuilt", backend.ErrInvalidContext)
	}

	cam, ok := b.camera(entry)
	if !ok {
		return fmt.Errorf("%w: entry point %d has no camera", backend.ErrInvalidContext, entry)
	}
	tr := b.snapshot()

	key := launchKey{entry: entry, generation: b.generation}
	if b.accum.key != key || b.accum.width != width || b.accum.height != height {
		b.accum.reset(width, height)
		b.accum.key = key
	}
	sample := b.accum.samples
	sum := b.accum.sum

	var g errgroup.Group
	g.SetLimit(b.workers)
	for y := 0; y < height; y++ {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(uint64(sample), uint64(y)))
			row := sum[y*width*3 : (y+1)*width*3]
			for x := 0; x < width; x++ {
				jx, jy := 0.5, 0.5
				if sample > 0 {
					jx, jy = rng.Float64(), rng.Float64()
				}
				c := tr.trace(cam.ray(float64(x)+jx, float64(y)+jy), rng)
				row[x*3] += c[0]
				row[x*3+1] += c[1]
				row[x*3+2] += c[2]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	b.accum.samples++

	b.logger.Debug("Frame launched",
		log.Int("entry", entry),
		log.Int("width", width),
		log.Int("height", height),
		log.Int("samples", b.accum.samples),
		log.Int("objects", len(tr.objects)),
		log.Int("lights", len(tr.lights)))
	return nil
}

func (b *Backend) camera(entry int) (camera, bool) {
	for _, r := range b.resources {
		if p, ok := r.params.(backend.CameraParams); ok && p.Entry == entry {
			return camera{params: p, world: r.world}, true
		}
	}
	return camera{}, false
}

func (b *Backend) snapshot() *tracer {
	tr := &tracer{miss: b.miss}
	for _, r := range b.objects {
		if r.shape == nil || !visible(r.params) {
			continue
		}
		tr.objects = append(tr.objects, object{shape: r.shape, inv: r.inv, material: material(r.params)})
	}
	for _, r := range b.resources {
		if p, ok := r.params.(backend.LightParams); ok && p.Slot >= 0 && p.Slot < b.lightCount {
			tr.lights = append(tr.lights, light{params: p, world: r.world})
		}
	}
	sort.Slice(tr.lights, func(i, j int) bool { return tr.lights[i].params.Slot < tr.lights[j].params.Slot })
	return tr
}

func visible(p backend.Params) bool {
	switch v := p.(type) {
	case backend.SphereParams:
		return v.Visible
	case backend.CuboidParams:
		return v.Visible
	case backend.MeshParams:
		return v.Visible
	}
	return false
}

func material(p backend.Params) backend.MaterialParams {
	switch v := p.(type) {
	case backend.SphereParams:
		return v.Material
	case backend.CuboidParams:
		return v.Material
	case backend.MeshParams:
		return v.Material
	}
	return backend.MaterialParams{}
}
