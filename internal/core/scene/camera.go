package scene

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/nslaift/nslaift/internal/backend"
	"github.com/nslaift/nslaift/internal/core/transform"
)

// Projection is the camera model used by the ray generation program.
type Projection int

const (
	ProjectionUnconfigured Projection = -1
	ProjectionGeneric      Projection = backend.ProjectionGeneric
	ProjectionPinhole      Projection = backend.ProjectionPinhole
	ProjectionTelecentric  Projection = backend.ProjectionTelecentric
)

func (p Projection) String() string {
	switch p {
	case ProjectionUnconfigured:
		return "unconfigured"
	case ProjectionGeneric:
		return "generic"
	case ProjectionPinhole:
		return "pinhole"
	case ProjectionTelecentric:
		return "telecentric"
	default:
		return fmt.Sprintf("projection(%d)", int(p))
	}
}

// ParseProjection accepts a projection name or its numeric code.
func ParseProjection(s string) (Projection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unconfigured", "-1":
		return ProjectionUnconfigured, nil
	case "generic", "0":
		return ProjectionGeneric, nil
	case "pinhole", "1":
		return ProjectionPinhole, nil
	case "telecentric", "infinite", "orthographic", "10":
		return ProjectionTelecentric, nil
	}
	return ProjectionUnconfigured, fmt.Errorf("unknown projection: %q", s)
}

const (
	DefaultCameraWidth  = 1280
	DefaultCameraHeight = 960
)

// Camera is the behaviour of camera entities. Its entry point in the
// backend is the entity slot.
type Camera struct {
	Projection   Projection
	Width        int
	Height       int
	Intrinsics   mgl64.Mat4
	Distortion   [5]float64
	Undistortion [5]float64
}

// Resolution is implemented by camera behaviours.
type Resolution interface {
	Resolution() (width, height int)
}

func (c *Camera) Resolution() (int, int) { return c.Width, c.Height }

// NewCamera returns a pinhole camera at the default resolution.
func NewCamera() *Camera {
	return &Camera{
		Projection: ProjectionPinhole,
		Width:      DefaultCameraWidth,
		Height:     DefaultCameraHeight,
		Intrinsics: DefaultIntrinsics(DefaultCameraWidth, DefaultCameraHeight),
	}
}

// DefaultIntrinsics is a pinhole matrix with fx = fy = 1136 and the
// principal point at the image center.
func DefaultIntrinsics(width, height int) mgl64.Mat4 {
	k := mgl64.Ident4()
	k.Set(0, 0, 1136)
	k.Set(1, 1, 1136)
	k.Set(0, 2, float64(width)/2)
	k.Set(1, 2, float64(height)/2)
	return k
}

// ApplyAction handles the camera actions. Anything else is Unrecognized
// and left to the shared transform actions.
func (c *Camera) ApplyAction(e *Entity, action, params string) Status {
	switch strings.ToLower(action) {
	case "setresolution", "resolution":
		w, h, err := transform.ParseResolution(params)
		if err != nil {
			return BadParameters
		}
		c.Width, c.Height = w, h
	case "setintrinsics", "intrinsics":
		m, err := transform.ParseMatrix(params, transform.DefaultDelimiter)
		if err != nil {
			return BadParameters
		}
		c.Intrinsics = m
	case "setdistortion", "distortion":
		d, err := parseCoefficients(params)
		if err != nil {
			return BadParameters
		}
		c.Distortion = d
	case "setundistortion", "undistortion":
		if strings.TrimSpace(params) == "" {
			for i, v := range c.Distortion {
				c.Undistortion[i] = -v
			}
			break
		}
		d, err := parseCoefficients(params)
		if err != nil {
			return BadParameters
		}
		c.Undistortion = d
	case "setprojectiontype", "projectiontype", "setcameratype", "cameratype":
		p, err := ParseProjection(params)
		if err != nil {
			return BadParameters
		}
		c.Projection = p
	default:
		return Unrecognized
	}
	e.Invalidate()
	return Handled
}

func (c *Camera) Params(e *Entity) backend.Params {
	return backend.CameraParams{
		Entry:        e.Slot(),
		Projection:   int(c.Projection),
		Width:        c.Width,
		Height:       c.Height,
		Intrinsics:   c.Intrinsics,
		Distortion:   c.Distortion,
		Undistortion: c.Undistortion,
	}
}

func parseCoefficients(s string) ([5]float64, error) {
	var out [5]float64
	v, err := transform.ParseFloats(s, transform.DefaultDelimiter, len(out))
	if err != nil {
		return out, err
	}
	copy(out[:], v)
	return out, nil
}
