package camera

import (
	"fmt"

	"github.com/banshee-data/passthrough/internal/xrmath"
	"gonum.org/v1/gonum/spatial/r3"
)

// V4L2Options describes a UVC stereo camera exposed as a V4L2 device, such as
// the pass-through cameras of headsets that enumerate as webcams.
type V4L2Options struct {
	DevicePath string `json:"device_path"`
	// Width and Height are per-eye dimensions.
	Width  uint32      `json:"width"`
	Height uint32      `json:"height"`
	Layout FrameLayout `json:"layout"`
	FPS    uint32      `json:"fps"`
	// HorizontalFOV is the per-eye horizontal field of view in degrees.
	HorizontalFOV float64 `json:"horizontal_fov"`
	// Baseline is the distance between the camera eyes in metres.
	Baseline float64 `json:"baseline"`
	// Offset is the rig centre in the HMD frame.
	Offset r3.Vec `json:"offset"`
}

// Normalize validates the options and applies defaults for unset values.
func (o V4L2Options) Normalize() (V4L2Options, error) {
	opts := o
	if opts.DevicePath == "" {
		opts.DevicePath = "/dev/video0"
	}
	if opts.Width == 0 {
		opts.Width = 960
	}
	if opts.Height == 0 {
		opts.Height = 960
	}
	if opts.FPS == 0 {
		opts.FPS = 54
	}
	if opts.HorizontalFOV == 0 {
		opts.HorizontalFOV = 110
	}
	if opts.HorizontalFOV <= 0 || opts.HorizontalFOV >= 180 {
		return opts, fmt.Errorf("invalid horizontal fov %.1f: must be between 0 and 180", opts.HorizontalFOV)
	}
	if opts.Baseline == 0 {
		opts.Baseline = 0.064
	}
	if opts.Baseline < 0 {
		return opts, fmt.Errorf("invalid baseline %.3f: must be positive", opts.Baseline)
	}
	return opts, nil
}

// frameSize is the per-eye size of the YUYV stream the device delivers.
func (o V4L2Options) frameSize() FrameSize {
	return FrameSize{Width: o.Width, Height: o.Height, BytesPerPixel: 2, Layout: o.Layout}
}

// captureSize is the full device frame holding every eye.
func (o V4L2Options) captureSize() (width, height uint32) {
	switch o.Layout {
	case LayoutStereoHorizontal:
		return o.Width * 2, o.Height
	case LayoutStereoVertical:
		return o.Width, o.Height * 2
	default:
		return o.Width, o.Height
	}
}

// copyFrame copies one captured device frame into dst, repacking side-by-side
// captures so each eye is contiguous. Both buffers must hold a full frame of
// size.
func copyFrame(dst, src []byte, size FrameSize) error {
	need := int(size.BufferSize())
	if len(src) < need {
		return fmt.Errorf("%w: short frame %d bytes, need %d", ErrReadFailed, len(src), need)
	}
	if len(dst) < need {
		return fmt.Errorf("%w: destination buffer %d bytes, need %d", ErrReadFailed, len(dst), need)
	}
	if size.Layout == LayoutStereoHorizontal {
		splitRows(dst, src, size)
	} else {
		copy(dst, src[:need])
	}
	return nil
}

// splitRows repacks a side-by-side capture so each eye's rows are contiguous,
// left eye first.
func splitRows(dst, src []byte, size FrameSize) {
	row := int(size.Width * size.BytesPerPixel)
	eye := row * int(size.Height)
	for y := 0; y < int(size.Height); y++ {
		in := src[y*2*row:]
		copy(dst[y*row:], in[:row])
		copy(dst[eye+y*row:], in[row:2*row])
	}
}

// PoseSource supplies the HMD pose for devices without tracking of their own.
type PoseSource func() (xrmath.Mat4, bool)
