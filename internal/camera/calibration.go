package camera

import (
	"fmt"
	"math"

	"github.com/banshee-data/passthrough/internal/xrmath"
	"gonum.org/v1/gonum/spatial/r3"
)

// Intrinsics are pinhole parameters of one camera eye, in pixels.
type Intrinsics struct {
	FocalX  float64
	FocalY  float64
	CenterX float64
	CenterY float64
}

// Calibration is the raw per-eye calibration reported by the device.
type Calibration struct {
	// Width and Height are the per-eye image dimensions the intrinsics
	// refer to.
	Width  uint32
	Height uint32
	Left   Intrinsics
	Right  Intrinsics
	// LeftToHead and RightToHead map camera eye coordinates into the HMD
	// tracking frame.
	LeftToHead  xrmath.Mat4
	RightToHead xrmath.Mat4
}

// Fov returns the frustum of the given eye (0 left, 1 right).
func (c Calibration) Fov(eye int) xrmath.Fov {
	in := c.Left
	if eye == 1 {
		in = c.Right
	}
	return xrmath.FovFromIntrinsics(float64(c.Width), float64(c.Height), in.FocalX, in.FocalY, in.CenterX, in.CenterY)
}

func (in Intrinsics) validate(width, height uint32) error {
	for _, v := range []float64{in.FocalX, in.FocalY, in.CenterX, in.CenterY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite intrinsics %+v", in)
		}
	}
	if in.FocalX <= 0 || in.FocalY <= 0 {
		return fmt.Errorf("focal length must be positive, got %.3f x %.3f", in.FocalX, in.FocalY)
	}
	if in.CenterX <= 0 || in.CenterX >= float64(width) || in.CenterY <= 0 || in.CenterY >= float64(height) {
		return fmt.Errorf("principal point (%.1f, %.1f) outside %dx%d image", in.CenterX, in.CenterY, width, height)
	}
	return nil
}

// Validate checks that the calibration describes a usable camera.
func (c Calibration) Validate() error {
	if c.Width == 0 || c.Height == 0 {
		return fmt.Errorf("calibration image size %dx%d", c.Width, c.Height)
	}
	if err := c.Left.validate(c.Width, c.Height); err != nil {
		return fmt.Errorf("left eye: %w", err)
	}
	if err := c.Right.validate(c.Width, c.Height); err != nil {
		return fmt.Errorf("right eye: %w", err)
	}
	if !xrmath.IsRigid(c.LeftToHead) {
		return fmt.Errorf("left eye to head transform is not rigid")
	}
	if !xrmath.IsRigid(c.RightToHead) {
		return fmt.Errorf("right eye to head transform is not rigid")
	}
	return nil
}

// SymmetricCalibration builds a calibration for a stereo rig with centred
// principal points, the given horizontal field of view, and eyes spaced
// baseline metres apart around offset in the head frame.
func SymmetricCalibration(width, height uint32, horizontalFOVDeg, baseline float64, offset r3.Vec) Calibration {
	focal := float64(width) / 2 / math.Tan(horizontalFOVDeg*math.Pi/360)
	in := Intrinsics{
		FocalX:  focal,
		FocalY:  focal,
		CenterX: float64(width) / 2,
		CenterY: float64(height) / 2,
	}
	return Calibration{
		Width:       width,
		Height:      height,
		Left:        in,
		Right:       in,
		LeftToHead:  xrmath.Translation(offset.X-baseline/2, offset.Y, offset.Z),
		RightToHead: xrmath.Translation(offset.X+baseline/2, offset.Y, offset.Z),
	}
}
