package passthrough

import (
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/passthrough/internal/config"
	"github.com/banshee-data/passthrough/internal/monitoring"
	"github.com/banshee-data/passthrough/internal/xr"
	"github.com/banshee-data/passthrough/internal/xrmath"
)

var (
	errDegeneratePose = errors.New("degenerate device pose")
	errNonFinite      = errors.New("non-finite transform")
)

// projector remembers the last valid transform of each eye.
type projector struct {
	mu    sync.Mutex
	last  [2]xrmath.Mat4
	valid [2]bool
}

// projectionInputs are the config values one projection call uses.
type projectionInputs struct {
	api      xrmath.GraphicsAPI
	near     float64
	far      float64
	fovScale float64
	floor    float64
}

func inputsFrom(cfg *config.Config) projectionInputs {
	return projectionInputs{
		api:      cfg.GetGraphicsAPI(),
		near:     cfg.GetProjectionDistanceNear(),
		far:      cfg.GetProjectionDistanceFar(),
		fovScale: cfg.GetFieldOfViewScale(),
		floor:    cfg.GetFloorHeightOffset(),
	}
}

// CalculateFrameProjection writes frame.Header with, per eye, the transform
// from the camera's normalized image plane at the far projection distance
// into the clip space of the layer's eye at displayTime. Input vertices lie
// at NDC depth xrmath.FarPlaneNDC.
//
// An eye whose inputs are degenerate reuses its previous valid transform,
// or identity if there is none, and is marked invalid. The call does no I/O
// and is meant for the render thread, once per composited frame.
func (m *CameraManager) CalculateFrameProjection(frame *CameraFrame, layer *xr.CompositionLayerProjection, displayTime xr.Time, refSpace xr.ReferenceSpaceCreateInfo) error {
	if frame == nil {
		return fmt.Errorf("calculate frame projection: nil frame")
	}
	if err := layer.Validate(); err != nil {
		return fmt.Errorf("calculate frame projection: %w", err)
	}
	params := m.params.Load()
	if params == nil {
		return ErrCameraNotInitialized
	}
	in := inputsFrom(m.config.Current())

	var hmdPoses [2]xrmath.Pose
	views, err := m.tracker.LocateViews(displayTime, refSpace)
	for _, eye := range xr.Eyes {
		if err == nil {
			hmdPoses[eye] = views[eye].Pose
		} else {
			hmdPoses[eye] = layer.Views[eye].Pose
		}
	}
	if err != nil {
		monitoring.Debugf("locate views failed, using layer poses: %v", err)
	}
	spaceFromTracking, spaceErr := xr.SpaceFromTracking(m.tracker, refSpace)

	var stats *CaptureStats
	if s := m.session.Load(); s != nil {
		stats = s.stats
	}

	m.projection.mu.Lock()
	defer m.projection.mu.Unlock()
	for _, eye := range xr.Eyes {
		var mvp xrmath.Mat4
		err := spaceErr
		if err == nil {
			mvp, err = eyeTransform(eye, frame.DevicePoseAtCapture, frame.PoseValid, params,
				hmdPoses[eye], layer.Views[eye].Fov, spaceFromTracking, in)
		}
		if err != nil {
			if stats != nil {
				stats.degeneratePoses.Add(1)
			}
			monitoring.Debugf("%s eye projection for frame %d: %v", eye, frame.Sequence, err)
			if m.projection.valid[eye] {
				frame.Header.set(eye, m.projection.last[eye], false)
			} else {
				frame.Header.set(eye, xrmath.Identity(), false)
			}
			continue
		}
		m.projection.last[eye] = mvp
		m.projection.valid[eye] = true
		frame.Header.set(eye, mvp, true)
	}
	frame.Header.CalibrationGeneration = params.Generation
	frame.Header.FloorHeight, frame.Header.FloorValid = 0, false
	if spaceErr == nil {
		_, frame.Header.FloorHeight, _ = spaceFromTracking.ApplyPoint(0, in.floor, 0)
		frame.Header.FloorValid = true
	}
	return nil
}

// eyeTransform composes
//
//	hmdProjection × hmdView × spaceFromTracking × cameraEyePose × inverse(cameraProjection)
//
// where cameraEyePose is devicePose × LeftToHMDPose, followed by
// LeftToRightPose for the right eye.
func eyeTransform(eye xr.Eye, devicePose xrmath.Mat4, poseValid bool, params *StaticCameraParameters,
	hmdPose xrmath.Pose, hmdFov xrmath.Fov, spaceFromTracking xrmath.Mat4, in projectionInputs) (xrmath.Mat4, error) {
	if !poseValid || xrmath.IsDegenerate(devicePose) {
		return xrmath.Mat4{}, errDegeneratePose
	}
	cameraEye := devicePose.Mul(params.LeftToHMDPose)
	if eye == xr.RightEye {
		cameraEye = cameraEye.Mul(params.LeftToRightPose)
	}

	if !hmdPose.IsFinite() || !hmdFov.Valid() {
		return xrmath.Mat4{}, fmt.Errorf("invalid hmd view for %s eye", eye)
	}
	hmdProjection := xrmath.ProjectionFov(in.api, hmdFov, in.near, in.far)

	cameraProjection := xrmath.ProjectionFov(in.api, params.Fov(eye).Scaled(in.fovScale), in.near, in.far)
	cameraUnproject, err := xrmath.Invert(cameraProjection)
	if err != nil {
		return xrmath.Mat4{}, fmt.Errorf("camera projection: %w", err)
	}

	mvp := xrmath.Multiply(hmdProjection, hmdPose.View(), spaceFromTracking, cameraEye, cameraUnproject)
	if !mvp.IsFinite() {
		return xrmath.Mat4{}, errNonFinite
	}
	return mvp, nil
}
