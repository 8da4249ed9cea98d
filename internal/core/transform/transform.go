// Package transform holds the matrix helpers and the textual parameter
// grammar shared by every scene entity. Matrices are mgl64.Mat4 values
// mapping local coordinates to world coordinates; angles are in degrees.
package transform

import (
	"github.com/go-gl/mathgl/mgl64"
)

// Identity returns the 4x4 identity matrix.
func Identity() mgl64.Mat4 {
	return mgl64.Ident4()
}

// Translation returns the homogeneous translation by (x, y, z).
func Translation(x, y, z float64) mgl64.Mat4 {
	return mgl64.Translate3D(x, y, z)
}

// Rotation composes Rz(rz) * Ry(ry) * Rx(rx). The x rotation is applied
// first to a column vector.
func Rotation(rx, ry, rz float64) mgl64.Mat4 {
	x := mgl64.HomogRotate3DX(mgl64.DegToRad(rx))
	y := mgl64.HomogRotate3DY(mgl64.DegToRad(ry))
	z := mgl64.HomogRotate3DZ(mgl64.DegToRad(rz))
	return z.Mul4(y).Mul4(x)
}

// Position reads the translation column.
func Position(m mgl64.Mat4) mgl64.Vec3 {
	return mgl64.Vec3{m.At(0, 3), m.At(1, 3), m.At(2, 3)}
}

// WithPosition overwrites the translation column, keeping the rotation
// and scale part untouched.
func WithPosition(m mgl64.Mat4, p mgl64.Vec3) mgl64.Mat4 {
	m.Set(0, 3, p[0])
	m.Set(1, 3, p[1])
	m.Set(2, 3, p[2])
	return m
}

// Invert returns the inverse of m and false when m is singular.
func Invert(m mgl64.Mat4) (mgl64.Mat4, bool) {
	if m.Det() == 0 {
		return mgl64.Mat4{}, false
	}
	return m.Inv(), true
}

// Apply transforms the point p by m.
func Apply(m mgl64.Mat4, p mgl64.Vec3) mgl64.Vec3 {
	return m.Mul4x1(p.Vec4(1)).Vec3()
}

// ApplyDirection transforms the direction d by m, ignoring translation.
func ApplyDirection(m mgl64.Mat4, d mgl64.Vec3) mgl64.Vec3 {
	return m.Mul4x1(d.Vec4(0)).Vec3()
}

// RowMajor flattens m in row-major order, the layout used on the wire.
func RowMajor(m mgl64.Mat4) [16]float64 {
	var out [16]float64
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[r*4+c] = m.At(r, c)
		}
	}
	return out
}

// FromRowMajor builds a matrix from sixteen row-major values.
func FromRowMajor(v [16]float64) mgl64.Mat4 {
	var m mgl64.Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			m.Set(r, c, v[r*4+c])
		}
	}
	return m
}
