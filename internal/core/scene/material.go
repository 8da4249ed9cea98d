package scene

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/nslaift/nslaift/internal/backend"
	"github.com/nslaift/nslaift/internal/core/transform"
)

// Material types understood by the shading programs.
const (
	MaterialPhong  = "phong"
	MaterialNormal = "normal"
	MaterialBlank  = "blank"
)

// MaterialParameterDelimiter separates a material parameter name from its value.
const MaterialParameterDelimiter = ";"

// Material is the surface description owned by one geometric entity.
type Material struct {
	Type             string
	Color            mgl64.Vec3
	Diffuse          mgl64.Vec3
	Specular         mgl64.Vec3
	SpecularExponent float64
}

func NewMaterial() *Material {
	return &Material{
		Type:             MaterialPhong,
		Color:            mgl64.Vec3{0.6, 0.6, 0.6},
		Diffuse:          mgl64.Vec3{0.4, 0.4, 0.4},
		Specular:         mgl64.Vec3{0.2, 0.2, 0.2},
		SpecularExponent: 2,
	}
}

// SetType switches the shading model. Names are case-insensitive.
func (m *Material) SetType(t string) error {
	switch v := strings.ToLower(strings.TrimSpace(t)); v {
	case MaterialPhong, MaterialNormal, MaterialBlank:
		m.Type = v
		return nil
	default:
		return fmt.Errorf("unknown material type: %q", t)
	}
}

// SetParameter applies "name;value". Colors take a comma separated triple.
func (m *Material) SetParameter(param string) error {
	name, value, ok := strings.Cut(param, MaterialParameterDelimiter)
	if !ok {
		return fmt.Errorf("material parameter %q: missing value", param)
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "color", "basecolor":
		v, err := transform.ParseVec3(value, transform.DefaultDelimiter)
		if err != nil {
			return err
		}
		m.Color = v
	case "kd", "diffuse":
		v, err := transform.ParseVec3(value, transform.DefaultDelimiter)
		if err != nil {
			return err
		}
		m.Diffuse = v
	case "ks", "specular":
		v, err := transform.ParseVec3(value, transform.DefaultDelimiter)
		if err != nil {
			return err
		}
		m.Specular = v
	case "specexp", "specularexponent", "exponent", "shininess":
		v, err := transform.ParseFloat(value)
		if err != nil {
			return err
		}
		if v < 0 {
			return fmt.Errorf("specular exponent must not be negative: %v", v)
		}
		m.SpecularExponent = v
	default:
		return fmt.Errorf("unknown material parameter: %q", name)
	}
	return nil
}

func (m *Material) Params() backend.MaterialParams {
	return backend.MaterialParams{
		Type:             m.Type,
		Color:            m.Color,
		Diffuse:          m.Diffuse,
		Specular:         m.Specular,
		SpecularExponent: m.SpecularExponent,
	}
}
