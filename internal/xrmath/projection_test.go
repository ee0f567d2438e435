package xrmath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func symmetricFov(half float64) Fov {
	return Fov{AngleLeft: -half, AngleRight: half, AngleUp: half, AngleDown: -half}
}

func project(m Mat4, x, y, z float64) (nx, ny, nz float64) {
	c := m.Apply([4]float64{x, y, z, 1})
	return c[0] / c[3], c[1] / c[3], c[2] / c[3]
}

func TestProjectionFov_DepthRange(t *testing.T) {
	const near, far = 0.1, 5.0
	fov := symmetricFov(0.8)
	tests := []struct {
		api     GraphicsAPI
		nearNDC float64
		flipsY  bool
	}{
		{GraphicsD3D, 0, false},
		{GraphicsVulkan, 0, true},
		{GraphicsOpenGL, -1, false},
	}
	for _, tc := range tests {
		t.Run(tc.api.String(), func(t *testing.T) {
			m := ProjectionFov(tc.api, fov, near, far)
			_, _, zn := project(m, 0, 0, -near)
			_, _, zf := project(m, 0, 0, -far)
			assert.InDelta(t, tc.nearNDC, zn, 1e-12)
			assert.InDelta(t, FarPlaneNDC, zf, 1e-12)

			_, y, _ := project(m, 0, math.Tan(0.8)*far, -far)
			if tc.flipsY {
				assert.InDelta(t, -1, y, 1e-12)
			} else {
				assert.InDelta(t, 1, y, 1e-12)
			}
		})
	}
}

func TestProjectionFov_FrustumEdges(t *testing.T) {
	fov := Fov{AngleLeft: -0.9, AngleRight: 0.6, AngleUp: 0.7, AngleDown: -0.5}
	m := ProjectionFov(GraphicsD3D, fov, 0.1, 10)
	x, _, _ := project(m, math.Tan(fov.AngleLeft)*2, 0, -2)
	assert.InDelta(t, -1, x, 1e-12)
	x, _, _ = project(m, math.Tan(fov.AngleRight)*2, 0, -2)
	assert.InDelta(t, 1, x, 1e-12)
	_, y, _ := project(m, 0, math.Tan(fov.AngleDown)*3, -3)
	assert.InDelta(t, -1, y, 1e-12)
}

func TestProjectionFov_InfiniteFar(t *testing.T) {
	m := ProjectionFov(GraphicsD3D, symmetricFov(0.7), 0.1, 0)
	_, _, z := project(m, 0, 0, -1e9)
	assert.InDelta(t, 1, z, 1e-6)
	_, err := Invert(m)
	require.NoError(t, err)
}

func TestProjectionFov_InverseMapsFarPlane(t *testing.T) {
	const far = 5.0
	m := ProjectionFov(GraphicsOpenGL, symmetricFov(0.6), 0.1, far)
	inv, err := Invert(m)
	require.NoError(t, err)
	p := inv.Apply([4]float64{0, 0, FarPlaneNDC, 1})
	assert.InDelta(t, -far, p[2]/p[3], 1e-9)
}

func TestFov_Valid(t *testing.T) {
	assert.True(t, symmetricFov(0.5).Valid())
	assert.False(t, Fov{}.Valid())
	assert.False(t, symmetricFov(math.Pi/2).Valid())
	assert.False(t, Fov{AngleLeft: 0.2, AngleRight: -0.2, AngleUp: 0.3, AngleDown: -0.3}.Valid())
	assert.False(t, Fov{AngleLeft: math.NaN(), AngleRight: 0.2, AngleUp: 0.3, AngleDown: -0.3}.Valid())
}

func TestFov_Scaled(t *testing.T) {
	f := Fov{AngleLeft: -0.8, AngleRight: 0.4, AngleUp: 0.5, AngleDown: -0.5}
	same := f.Scaled(1)
	assert.InDelta(t, f.AngleLeft, same.AngleLeft, 1e-12)
	assert.InDelta(t, f.AngleUp, same.AngleUp, 1e-12)

	half := f.Scaled(0.5)
	tl, tr := math.Tan(f.AngleLeft), math.Tan(f.AngleRight)
	assert.InDelta(t, (tr-tl)/2, math.Tan(half.AngleRight)-math.Tan(half.AngleLeft), 1e-12)
	assert.InDelta(t, (tl+tr)/2, (math.Tan(half.AngleRight)+math.Tan(half.AngleLeft))/2, 1e-12, "centre preserved")
}

func TestFovFromIntrinsics(t *testing.T) {
	f := FovFromIntrinsics(960, 960, 480, 480, 480, 480)
	assert.InDelta(t, -math.Pi/4, f.AngleLeft, 1e-12)
	assert.InDelta(t, math.Pi/4, f.AngleRight, 1e-12)
	assert.InDelta(t, math.Pi/4, f.AngleUp, 1e-12)
	assert.InDelta(t, -math.Pi/4, f.AngleDown, 1e-12)

	off := FovFromIntrinsics(960, 960, 480, 480, 400, 480)
	assert.Less(t, math.Abs(off.AngleLeft), math.Abs(off.AngleRight))
}
