// Package xrmath holds the 4x4 matrix and rigid pose helpers used to move
// camera frames between tracking, camera and render-target spaces.
//
// Matrices are stored column-major, matching the OpenXR xr_linear layout:
// element (row r, column c) lives at index c*4+r, and the translation of a
// rigid transform occupies indices 12, 13 and 14.
package xrmath

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrSingular is returned when a matrix cannot be inverted.
var ErrSingular = errors.New("matrix is singular")

// RigidTolerance is the tolerance used when checking that a matrix is a
// proper rigid transform.
const RigidTolerance = 0.01

// Mat4 is a column-major 4x4 homogeneous transform.
type Mat4 [16]float64

// Identity returns the identity transform.
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// At returns the element at row r, column c.
func (m Mat4) At(r, c int) float64 {
	return m[c*4+r]
}

// Mul returns m × b.
func (m Mat4) Mul(b Mat4) Mat4 {
	var out Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			out[c*4+r] = m[r]*b[c*4] + m[4+r]*b[c*4+1] + m[8+r]*b[c*4+2] + m[12+r]*b[c*4+3]
		}
	}
	return out
}

// Multiply composes the given transforms left to right, so Multiply(a, b, c)
// is a × b × c. With no arguments it returns the identity.
func Multiply(ms ...Mat4) Mat4 {
	out := Identity()
	for _, m := range ms {
		out = out.Mul(m)
	}
	return out
}

// Translation returns a pure translation transform.
func Translation(x, y, z float64) Mat4 {
	m := Identity()
	m[12], m[13], m[14] = x, y, z
	return m
}

// Scale returns a pure scale transform.
func Scale(x, y, z float64) Mat4 {
	m := Identity()
	m[0], m[5], m[10] = x, y, z
	return m
}

// TranslationOf returns the translation component of m.
func (m Mat4) TranslationOf() (x, y, z float64) {
	return m[12], m[13], m[14]
}

// Apply transforms the homogeneous vector v by m.
func (m Mat4) Apply(v [4]float64) [4]float64 {
	var out [4]float64
	for r := 0; r < 4; r++ {
		out[r] = m[r]*v[0] + m[4+r]*v[1] + m[8+r]*v[2] + m[12+r]*v[3]
	}
	return out
}

// ApplyPoint transforms a point, performing the perspective divide.
func (m Mat4) ApplyPoint(x, y, z float64) (ox, oy, oz float64) {
	v := m.Apply([4]float64{x, y, z, 1})
	if v[3] == 0 {
		return math.Inf(1), math.Inf(1), math.Inf(1)
	}
	return v[0] / v[3], v[1] / v[3], v[2] / v[3]
}

// IsFinite reports whether every element of m is finite.
func (m Mat4) IsFinite() bool {
	for _, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// IsZero reports whether every element of m is zero.
func (m Mat4) IsZero() bool {
	return m == Mat4{}
}

// dense converts m to a row-major gonum matrix.
func (m Mat4) dense() *mat.Dense {
	data := make([]float64, 16)
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			data[r*4+c] = m[c*4+r]
		}
	}
	return mat.NewDense(4, 4, data)
}

func fromDense(d *mat.Dense) Mat4 {
	var m Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			m[c*4+r] = d.At(r, c)
		}
	}
	return m
}

// Det returns the determinant of m.
func (m Mat4) Det() float64 {
	return mat.Det(m.dense())
}

// Invert returns the general inverse of m. ErrSingular is returned for
// non-finite input, a zero determinant, or an inverse that is not finite.
func Invert(m Mat4) (Mat4, error) {
	if !m.IsFinite() {
		return Mat4{}, ErrSingular
	}
	if m.Det() == 0 {
		return Mat4{}, ErrSingular
	}
	var inv mat.Dense
	if err := inv.Inverse(m.dense()); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return Mat4{}, ErrSingular
		}
		// An ill-conditioned inverse is still returned by gonum; reject it
		// only when it is unusable.
	}
	out := fromDense(&inv)
	if !out.IsFinite() {
		return Mat4{}, ErrSingular
	}
	return out, nil
}

// InvertRigidBody inverts a rotation+translation transform without a general
// inverse. The result is undefined for matrices with scale or shear.
func InvertRigidBody(m Mat4) Mat4 {
	var out Mat4
	// Transpose the rotation block.
	out[0], out[1], out[2] = m[0], m[4], m[8]
	out[4], out[5], out[6] = m[1], m[5], m[9]
	out[8], out[9], out[10] = m[2], m[6], m[10]
	out[3], out[7], out[11] = 0, 0, 0
	out[12] = -(m[0]*m[12] + m[1]*m[13] + m[2]*m[14])
	out[13] = -(m[4]*m[12] + m[5]*m[13] + m[6]*m[14])
	out[14] = -(m[8]*m[12] + m[9]*m[13] + m[10]*m[14])
	out[15] = 1
	return out
}

// IsRigid reports whether m is a proper rigid transform: an orthonormal
// rotation with determinant one and a [0 0 0 1] last row.
func IsRigid(m Mat4) bool {
	if !m.IsFinite() {
		return false
	}
	if m[3] != 0 || m[7] != 0 || m[11] != 0 || math.Abs(m[15]-1) > 0.001 {
		return false
	}
	r00, r10, r20 := m[0], m[1], m[2]
	r01, r11, r21 := m[4], m[5], m[6]
	r02, r12, r22 := m[8], m[9], m[10]
	det := r00*(r11*r22-r12*r21) - r01*(r10*r22-r12*r20) + r02*(r10*r21-r11*r20)
	if math.Abs(det-1) > RigidTolerance {
		return false
	}
	// Columns must be unit length.
	for c := 0; c < 3; c++ {
		n := m[c*4]*m[c*4] + m[c*4+1]*m[c*4+1] + m[c*4+2]*m[c*4+2]
		if math.Abs(n-1) > RigidTolerance {
			return false
		}
	}
	return true
}

// IsDegenerate reports whether m cannot serve as a device pose: it is
// non-finite or has a zero determinant.
func IsDegenerate(m Mat4) bool {
	if !m.IsFinite() || m.IsZero() {
		return true
	}
	return m.Det() == 0
}
