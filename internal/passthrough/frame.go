package passthrough

import (
	"time"

	"github.com/banshee-data/passthrough/internal/camera"
	"github.com/banshee-data/passthrough/internal/xr"
	"github.com/banshee-data/passthrough/internal/xrmath"
)

// CameraFrame is one captured camera image. The pixel payload and capture
// metadata are immutable once published; only Header is written, by
// CalculateFrameProjection on the consumer side.
type CameraFrame struct {
	Buffer              []byte
	CaptureTimestamp    time.Duration
	DevicePoseAtCapture xrmath.Mat4
	PoseValid           bool

	Width     uint32
	Height    uint32
	Layout    camera.FrameLayout
	FrameType camera.FrameType
	Sequence  uint64

	publishedAt time.Time

	Header ProjectionHeader
}

// ProjectionHeader holds the per-eye transforms from the camera image plane
// to the HMD eye clip space.
type ProjectionHeader struct {
	LeftMVP               xrmath.Mat4
	RightMVP              xrmath.Mat4
	ProjectionValid       [2]bool
	CalibrationGeneration uint64

	// FloorHeight is the height of the 2D modes' floor plane, raised by the
	// configured offset, in the layer's reference space. FloorValid is false
	// when the space could not be resolved.
	FloorHeight float64
	FloorValid  bool
}

// MVP returns the transform for eye.
func (h *ProjectionHeader) MVP(eye xr.Eye) xrmath.Mat4 {
	if eye == xr.RightEye {
		return h.RightMVP
	}
	return h.LeftMVP
}

func (h *ProjectionHeader) set(eye xr.Eye, m xrmath.Mat4, valid bool) {
	if eye == xr.RightEye {
		h.RightMVP = m
	} else {
		h.LeftMVP = m
	}
	h.ProjectionValid[eye] = valid
}

// EyeImage returns the slice of Buffer holding eye's pixels. Stereo buffers
// hold the left eye's rows first, whatever the sensor packing. Mono frames
// return the whole buffer for both eyes.
func (f *CameraFrame) EyeImage(eye xr.Eye) []byte {
	if f.Layout == camera.LayoutMono || len(f.Buffer) == 0 {
		return f.Buffer
	}
	half := len(f.Buffer) / 2
	if eye == xr.RightEye {
		return f.Buffer[half:]
	}
	return f.Buffer[:half]
}

// stamp fills the capture metadata of a frame that has just been read.
func (f *CameraFrame) stamp(hdr camera.FrameHeader, size camera.FrameSize, frameType camera.FrameType, pose xrmath.Mat4, poseValid bool) {
	f.CaptureTimestamp = hdr.Timestamp
	f.Sequence = hdr.Sequence
	f.DevicePoseAtCapture = pose
	f.PoseValid = poseValid
	f.Width = size.Width
	f.Height = size.Height
	f.Layout = size.Layout
	f.FrameType = frameType
	f.Header = ProjectionHeader{}
}
