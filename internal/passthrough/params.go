package passthrough

import (
	"fmt"

	"github.com/banshee-data/passthrough/internal/camera"
	"github.com/banshee-data/passthrough/internal/xr"
	"github.com/banshee-data/passthrough/internal/xrmath"
)

// StaticCameraParameters is the calibration of one camera session. Values
// are published as immutable snapshots; a new calibration produces a new
// snapshot with a higher Generation.
type StaticCameraParameters struct {
	TextureWidth    uint32
	TextureHeight   uint32
	FrameBufferSize uint32
	FrameLayout     camera.FrameLayout
	FrameType       camera.FrameType

	// Raw camera matrices. The projections use the graphics API and
	// projection distances active when the snapshot was computed.
	LeftProjection  xrmath.Mat4
	LeftView        xrmath.Mat4
	RightProjection xrmath.Mat4
	RightView       xrmath.Mat4

	// LeftToHMDPose maps left camera eye coordinates into the HMD frame.
	LeftToHMDPose xrmath.Mat4
	// LeftToRightPose is the right camera eye's pose in left eye coordinates.
	LeftToRightPose xrmath.Mat4

	LeftFov  xrmath.Fov
	RightFov xrmath.Fov

	Generation uint64
}

// Fov returns the camera frustum of eye.
func (p *StaticCameraParameters) Fov(eye xr.Eye) xrmath.Fov {
	if eye == xr.RightEye {
		return p.RightFov
	}
	return p.LeftFov
}

// projectionSettings are the config inputs baked into the raw projections.
type projectionSettings struct {
	api  xrmath.GraphicsAPI
	near float64
	far  float64
}

// computeStaticParameters derives a parameter snapshot from a frame size and
// device calibration. Errors wrap ErrCalibrationInvalid.
func computeStaticParameters(size camera.FrameSize, frameType camera.FrameType, calib camera.Calibration, ps projectionSettings, generation uint64) (*StaticCameraParameters, error) {
	if err := size.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCalibrationInvalid, err)
	}
	if err := calib.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCalibrationInvalid, err)
	}

	leftView, err := xrmath.Invert(calib.LeftToHead)
	if err != nil {
		return nil, fmt.Errorf("%w: left eye pose: %v", ErrCalibrationInvalid, err)
	}
	rightView, err := xrmath.Invert(calib.RightToHead)
	if err != nil {
		return nil, fmt.Errorf("%w: right eye pose: %v", ErrCalibrationInvalid, err)
	}

	leftFov, rightFov := calib.Fov(0), calib.Fov(1)
	if !leftFov.Valid() || !rightFov.Valid() {
		return nil, fmt.Errorf("%w: degenerate field of view", ErrCalibrationInvalid)
	}

	return &StaticCameraParameters{
		TextureWidth:    size.Width,
		TextureHeight:   size.Height,
		FrameBufferSize: size.BufferSize(),
		FrameLayout:     size.Layout,
		FrameType:       frameType,
		LeftProjection:  xrmath.ProjectionFov(ps.api, leftFov, ps.near, ps.far),
		LeftView:        leftView,
		RightProjection: xrmath.ProjectionFov(ps.api, rightFov, ps.near, ps.far),
		RightView:       rightView,
		LeftToHMDPose:   calib.LeftToHead,
		LeftToRightPose: leftView.Mul(calib.RightToHead),
		LeftFov:         leftFov,
		RightFov:        rightFov,
		Generation:      generation,
	}, nil
}
