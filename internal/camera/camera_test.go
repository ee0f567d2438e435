package camera

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/passthrough/internal/xrmath"
)

func TestParseFrameType(t *testing.T) {
	tests := []struct {
		in      string
		want    FrameType
		wantErr bool
	}{
		{"distorted", FrameTypeDistorted, false},
		{" Undistorted ", FrameTypeUndistorted, false},
		{"maximum_undistorted", FrameTypeMaximumUndistorted, false},
		{"MaximumUndistorted", FrameTypeMaximumUndistorted, false},
		{"fisheye", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFrameType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParseFrameType(t, got.String()))
		})
	}
}

func mustParseFrameType(t *testing.T, s string) FrameType {
	t.Helper()
	v, err := ParseFrameType(s)
	require.NoError(t, err)
	return v
}

func TestParseFrameLayout(t *testing.T) {
	for in, want := range map[string]FrameLayout{
		"mono":              LayoutMono,
		"vertical":          LayoutStereoVertical,
		"stereo_vertical":   LayoutStereoVertical,
		"side_by_side":      LayoutStereoHorizontal,
		"STEREO_HORIZONTAL": LayoutStereoHorizontal,
	} {
		got, err := ParseFrameLayout(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFrameLayout("quad")
	assert.Error(t, err)
	assert.Equal(t, "FrameLayout(9)", FrameLayout(9).String())
}

func TestFrameTypes_JSON(t *testing.T) {
	type doc struct {
		Type   FrameType   `json:"type"`
		Layout FrameLayout `json:"layout"`
	}
	b, err := json.Marshal(doc{FrameTypeUndistorted, LayoutStereoHorizontal})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"undistorted","layout":"stereo_horizontal"}`, string(b))

	var got doc
	require.NoError(t, json.Unmarshal([]byte(`{"type":"maximum_undistorted","layout":"mono"}`), &got))
	assert.Equal(t, doc{FrameTypeMaximumUndistorted, LayoutMono}, got)
	assert.Error(t, json.Unmarshal([]byte(`{"type":"raw"}`), &got))
}

func TestFrameSize(t *testing.T) {
	s := FrameSize{Width: 640, Height: 480, BytesPerPixel: 4, Layout: LayoutStereoVertical}
	assert.Equal(t, uint32(640*480*4*2), s.BufferSize())
	s.Layout = LayoutMono
	assert.Equal(t, uint32(640*480*4), s.BufferSize())
	assert.NoError(t, s.Validate())

	assert.Error(t, FrameSize{Width: 0, Height: 480, BytesPerPixel: 4}.Validate())
	assert.Error(t, FrameSize{Width: 640, Height: 480}.Validate())
}

func TestSymmetricCalibration(t *testing.T) {
	c := SymmetricCalibration(960, 960, 90, 0.064, r3.Vec{Y: -0.03, Z: -0.08})
	require.NoError(t, c.Validate())
	assert.InDelta(t, 480, c.Left.FocalX, 1e-9)

	fov := c.Fov(0)
	assert.InDelta(t, math.Pi/4, fov.AngleRight, 1e-12)
	assert.InDelta(t, -math.Pi/4, fov.AngleDown, 1e-12)

	lx, ly, lz := c.LeftToHead.TranslationOf()
	rx, _, _ := c.RightToHead.TranslationOf()
	assert.InDelta(t, 0.064, rx-lx, 1e-12)
	assert.InDelta(t, -0.03, ly, 1e-12)
	assert.InDelta(t, -0.08, lz, 1e-12)
}

func TestCalibration_Validate(t *testing.T) {
	base := SymmetricCalibration(960, 960, 100, 0.064, r3.Vec{})
	tests := []struct {
		name   string
		mutate func(c *Calibration)
	}{
		{"zero size", func(c *Calibration) { c.Width = 0 }},
		{"zero focal", func(c *Calibration) { c.Left.FocalX = 0 }},
		{"nan focal", func(c *Calibration) { c.Right.FocalY = math.NaN() }},
		{"centre outside", func(c *Calibration) { c.Right.CenterX = 2000 }},
		{"scaled pose", func(c *Calibration) { c.LeftToHead = xrmath.Scale(2, 2, 2) }},
		{"zero pose", func(c *Calibration) { c.RightToHead = xrmath.Mat4{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestDisabledRuntime(t *testing.T) {
	var r Runtime = NewDisabledRuntime()
	assert.ErrorIs(t, r.Connect(), ErrDisabled)
	_, err := r.HMDDeviceIndex()
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = r.Open(0, FrameTypeDistorted)
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = r.Calibration(0, FrameTypeDistorted)
	assert.ErrorIs(t, err, ErrDisabled)
	_, ok := r.DevicePose(0)
	assert.False(t, ok)
	assert.NoError(t, r.Close())
}
