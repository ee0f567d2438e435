package xrmath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestPose_MatrixAndView(t *testing.T) {
	p := Pose{Orientation: AxisAngle(r3.Vec{Y: 1}, 0.5), Position: r3.Vec{X: 1, Y: 1.6, Z: -2}}
	assertMatInDelta(t, Identity(), p.Matrix().Mul(p.View()), 1e-12)
	assert.True(t, IsRigid(p.Matrix()))
}

func TestPose_Compose(t *testing.T) {
	head := Pose{Orientation: AxisAngle(r3.Vec{Y: 1}, math.Pi/2), Position: r3.Vec{Y: 1.5}}
	eye := Pose{Orientation: quat.Number{Real: 1}, Position: r3.Vec{X: 0.03}}

	got := head.Compose(eye)
	// A quarter turn about Y maps +X to -Z.
	assert.InDelta(t, 0, got.Position.X, 1e-12)
	assert.InDelta(t, 1.5, got.Position.Y, 1e-12)
	assert.InDelta(t, -0.03, got.Position.Z, 1e-12)
	assertMatInDelta(t, head.Matrix().Mul(eye.Matrix()), got.Matrix(), 1e-12)
}

func TestPose_Inverse(t *testing.T) {
	p := Pose{Orientation: AxisAngle(r3.Vec{X: 1, Z: 1}, -0.8), Position: r3.Vec{X: 0.1, Y: 0.2, Z: 0.3}}
	assertMatInDelta(t, p.View(), p.Inverse().Matrix(), 1e-12)
	assertMatInDelta(t, Identity(), p.Compose(p.Inverse()).Matrix(), 1e-12)
}

func TestPoseFromMatrix_RoundTrip(t *testing.T) {
	// Angles near pi exercise the non-positive trace branches.
	for _, tc := range []struct {
		axis  r3.Vec
		angle float64
	}{
		{r3.Vec{Y: 1}, 0.3},
		{r3.Vec{X: 1}, 3.1},
		{r3.Vec{Y: 1}, 3.1},
		{r3.Vec{Z: 1}, 3.1},
		{r3.Vec{X: 1, Y: -2, Z: 0.5}, 2.4},
	} {
		p := Pose{Orientation: AxisAngle(tc.axis, tc.angle), Position: r3.Vec{X: -1, Y: 2, Z: 0.5}}
		got := PoseFromMatrix(p.Matrix())
		assertMatInDelta(t, p.Matrix(), got.Matrix(), 1e-9)
	}
}

func TestNormalize_Zero(t *testing.T) {
	assert.Equal(t, quat.Number{Real: 1}, Normalize(quat.Number{}))
	assert.Equal(t, quat.Number{Real: 1}, AxisAngle(r3.Vec{}, 1))
	assert.InDelta(t, 1, quat.Abs(Normalize(quat.Number{Real: 2, Imag: 2})), 1e-12)
}

func TestPose_IsFinite(t *testing.T) {
	assert.True(t, IdentityPose().IsFinite())
	assert.False(t, Pose{Orientation: quat.Number{Real: math.NaN()}}.IsFinite())
	assert.False(t, Pose{Orientation: quat.Number{Real: 1}, Position: r3.Vec{Z: math.Inf(-1)}}.IsFinite())
}
