package scene

import (
	"strings"

	"github.com/nslaift/nslaift/internal/core/transform"
)

// ApplyAction routes one named action to the entity. The kind behaviour
// sees it first; anything it does not recognize falls through to the
// actions every entity understands.
func (e *Entity) ApplyAction(action, params string) Status {
	if e.behavior != nil {
		if s := e.behavior.ApplyAction(e, action, params); s != Unrecognized {
			return s
		}
	}
	return e.applyBaseAction(action, params)
}

func (e *Entity) applyBaseAction(action, params string) Status {
	switch strings.ToLower(action) {
	case "reset":
		e.Reset()
		return Handled
	case "move":
		return e.withVec3(params, e.Move)
	case "translate":
		return e.withVec3(params, e.Translate)
	case "setposition":
		return e.withVec3(params, e.SetPosition)
	case "spin":
		return e.withVec3(params, e.Spin)
	case "rotate":
		return e.withVec3(params, e.Rotate)
	case "setname":
		return e.rename(params)
	case "setvisible", "visible":
		v, err := transform.ParseBool(params)
		if err != nil {
			return BadParameters
		}
		e.SetVisible(v)
		return Handled
	case "transform":
		m, err := transform.ParseMatrix(params, transform.DefaultDelimiter)
		if err != nil {
			return BadParameters
		}
		e.Transform(m)
		return Handled
	case "settransformationmatrix":
		m, err := transform.ParseMatrix(params, transform.DefaultDelimiter)
		if err != nil {
			return BadParameters
		}
		e.SetTransformationMatrix(m)
		return Handled
	case "setmaterialtype", "setbrdf", "materialtype", "brdf", "setmaterial", "material":
		if e.material == nil {
			return Unrecognized
		}
		if err := e.material.SetType(params); err != nil {
			return BadParameters
		}
		e.Invalidate()
		return Handled
	case "setmaterialparameter", "materialparameter":
		if e.material == nil {
			return Unrecognized
		}
		if err := e.material.SetParameter(params); err != nil {
			return BadParameters
		}
		e.Invalidate()
		return Handled
	}
	return Unrecognized
}

func (e *Entity) withVec3(params string, apply func(x, y, z float64)) Status {
	v, err := transform.ParseVec3(params, transform.DefaultDelimiter)
	if err != nil {
		return BadParameters
	}
	apply(v[0], v[1], v[2])
	return Handled
}

func (e *Entity) rename(params string) Status {
	name := strings.TrimSpace(params)
	if name == "" {
		return BadParameters
	}
	if e.owner != nil && e.owner.nameTaken(name, e) {
		return BadParameters
	}
	e.name = name
	return Handled
}
