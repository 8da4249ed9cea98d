package scene

import (
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/nslaift/nslaift/internal/backend"
	"github.com/nslaift/nslaift/internal/core/transform"
)

// LightSource holds what every light kind emits.
type LightSource struct {
	Color mgl64.Vec3
	Power float64
}

func defaultLightSource() LightSource {
	return LightSource{Color: mgl64.Vec3{1, 1, 1}, Power: 1}
}

func (l *LightSource) applyAction(e *Entity, action, params string) Status {
	switch strings.ToLower(action) {
	case "setcolor", "color":
		v, err := transform.ParseVec3(params, transform.DefaultDelimiter)
		if err != nil {
			return BadParameters
		}
		l.Color = v
	case "setpower", "power":
		p, err := transform.ParseFloat(params)
		if err != nil || p < 0 {
			return BadParameters
		}
		l.Power = p
	default:
		return Unrecognized
	}
	e.Invalidate()
	return Handled
}

func (l *LightSource) params(e *Entity, typ int) backend.LightParams {
	return backend.LightParams{
		Slot:  e.Slot(),
		Type:  typ,
		Color: l.Color,
		Power: l.Power,
	}
}

// PointLight radiates from the entity origin with distance decay.
type PointLight struct {
	LightSource
	DecayRadius float64
}

func NewPointLight() *PointLight {
	return &PointLight{LightSource: defaultLightSource(), DecayRadius: 1}
}

func (p *PointLight) ApplyAction(e *Entity, action, params string) Status {
	switch strings.ToLower(action) {
	case "setdecayradius", "decayradius":
		r, err := transform.ParseFloat(params)
		if err != nil || r < 0 {
			return BadParameters
		}
		if r == 0 {
			r = 1
		}
		p.DecayRadius = r
		e.Invalidate()
		return Handled
	}
	return p.LightSource.applyAction(e, action, params)
}

func (p *PointLight) Params(e *Entity) backend.Params {
	lp := p.LightSource.params(e, backend.LightPoint)
	lp.DecayRadius = p.DecayRadius
	return lp
}

// AreaLight is a parallelogram spanned by U and V from the entity origin.
type AreaLight struct {
	LightSource
	U mgl64.Vec3
	V mgl64.Vec3
}

func NewAreaLight() *AreaLight {
	return &AreaLight{
		LightSource: defaultLightSource(),
		U:           mgl64.Vec3{1, 0, 0},
		V:           mgl64.Vec3{0, 1, 0},
	}
}

func (a *AreaLight) ApplyAction(e *Entity, action, params string) Status {
	var target *mgl64.Vec3
	switch strings.ToLower(action) {
	case "setu", "u":
		target = &a.U
	case "setv", "v":
		target = &a.V
	default:
		return a.LightSource.applyAction(e, action, params)
	}
	v, err := transform.ParseVec3(params, transform.DefaultDelimiter)
	if err != nil || v.Len() == 0 {
		return BadParameters
	}
	*target = v
	e.Invalidate()
	return Handled
}

func (a *AreaLight) Params(e *Entity) backend.Params {
	lp := a.LightSource.params(e, backend.LightParallelogram)
	lp.U = a.U
	lp.V = a.V
	return lp
}
