package xrmath

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Pose is a rigid transform expressed as an orientation and a position.
// Orientation uses gonum's quaternion layout: Real is w, Imag/Jmag/Kmag are
// x/y/z.
type Pose struct {
	Orientation quat.Number
	Position    r3.Vec
}

// IdentityPose returns a pose with no rotation or translation.
func IdentityPose() Pose {
	return Pose{Orientation: quat.Number{Real: 1}}
}

// AxisAngle returns the unit quaternion rotating angle radians about axis.
func AxisAngle(axis r3.Vec, angle float64) quat.Number {
	n := r3.Norm(axis)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	s := math.Sin(angle/2) / n
	return quat.Number{
		Real: math.Cos(angle / 2),
		Imag: axis.X * s,
		Jmag: axis.Y * s,
		Kmag: axis.Z * s,
	}
}

// Normalize returns q scaled to unit length. A zero quaternion becomes the
// identity rotation.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// Rotation returns the rotation matrix of q.
func Rotation(q quat.Number) Mat4 {
	q = Normalize(q)
	x, y, z, w := q.Imag, q.Jmag, q.Kmag, q.Real

	x2, y2, z2 := x+x, y+y, z+z
	xx2, yy2, zz2 := x*x2, y*y2, z*z2
	xy2, xz2, yz2 := x*y2, x*z2, y*z2
	wx2, wy2, wz2 := w*x2, w*y2, w*z2

	return Mat4{
		1 - yy2 - zz2, xy2 + wz2, xz2 - wy2, 0,
		xy2 - wz2, 1 - xx2 - zz2, yz2 + wx2, 0,
		xz2 + wy2, yz2 - wx2, 1 - xx2 - yy2, 0,
		0, 0, 0, 1,
	}
}

// Matrix returns the transform that maps pose-local coordinates into the
// parent space.
func (p Pose) Matrix() Mat4 {
	m := Rotation(p.Orientation)
	m[12], m[13], m[14] = p.Position.X, p.Position.Y, p.Position.Z
	return m
}

// View returns the inverse of the pose matrix, mapping parent-space
// coordinates into the pose's local frame.
func (p Pose) View() Mat4 {
	return InvertRigidBody(p.Matrix())
}

// Compose returns the pose of b expressed in p's parent space, treating b as
// relative to p.
func (p Pose) Compose(b Pose) Pose {
	q := Normalize(p.Orientation)
	rotated := quat.Mul(quat.Mul(q, quat.Number{Imag: b.Position.X, Jmag: b.Position.Y, Kmag: b.Position.Z}), quat.Conj(q))
	return Pose{
		Orientation: Normalize(quat.Mul(q, b.Orientation)),
		Position:    r3.Add(p.Position, r3.Vec{X: rotated.Imag, Y: rotated.Jmag, Z: rotated.Kmag}),
	}
}

// IsFinite reports whether every component of p is finite.
func (p Pose) IsFinite() bool {
	for _, v := range []float64{
		p.Orientation.Real, p.Orientation.Imag, p.Orientation.Jmag, p.Orientation.Kmag,
		p.Position.X, p.Position.Y, p.Position.Z,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Inverse returns the pose that undoes p.
func (p Pose) Inverse() Pose {
	q := quat.Conj(Normalize(p.Orientation))
	rotated := quat.Mul(quat.Mul(q, quat.Number{Imag: -p.Position.X, Jmag: -p.Position.Y, Kmag: -p.Position.Z}), quat.Conj(q))
	return Pose{
		Orientation: q,
		Position:    r3.Vec{X: rotated.Imag, Y: rotated.Jmag, Z: rotated.Kmag},
	}
}

// PoseFromMatrix extracts the rotation and translation of a rigid transform.
func PoseFromMatrix(m Mat4) Pose {
	r00, r11, r22 := m[0], m[5], m[10]
	var q quat.Number
	switch trace := r00 + r11 + r22; {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1)
		q = quat.Number{
			Real: 0.25 / s,
			Imag: (m[6] - m[9]) * s,
			Jmag: (m[8] - m[2]) * s,
			Kmag: (m[1] - m[4]) * s,
		}
	case r00 > r11 && r00 > r22:
		s := 2 * math.Sqrt(1+r00-r11-r22)
		q = quat.Number{
			Real: (m[6] - m[9]) / s,
			Imag: 0.25 * s,
			Jmag: (m[4] + m[1]) / s,
			Kmag: (m[8] + m[2]) / s,
		}
	case r11 > r22:
		s := 2 * math.Sqrt(1+r11-r00-r22)
		q = quat.Number{
			Real: (m[8] - m[2]) / s,
			Imag: (m[4] + m[1]) / s,
			Jmag: 0.25 * s,
			Kmag: (m[9] + m[6]) / s,
		}
	default:
		s := 2 * math.Sqrt(1+r22-r00-r11)
		q = quat.Number{
			Real: (m[1] - m[4]) / s,
			Imag: (m[8] + m[2]) / s,
			Jmag: (m[9] + m[6]) / s,
			Kmag: 0.25 * s,
		}
	}
	return Pose{
		Orientation: Normalize(q),
		Position:    r3.Vec{X: m[12], Y: m[13], Z: m[14]},
	}
}
