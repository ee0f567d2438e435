// Package xr carries the OpenXR-shaped values the passthrough core consumes
// from the host compositor: display times, reference spaces, and the
// per-eye views of a projection composition layer.
package xr

import (
	"fmt"

	"github.com/banshee-data/passthrough/internal/xrmath"
)

// Time is an OpenXR display time in nanoseconds.
type Time int64

// Eye indexes a stereo view.
type Eye int

const (
	LeftEye Eye = iota
	RightEye
)

func (e Eye) String() string {
	switch e {
	case LeftEye:
		return "left"
	case RightEye:
		return "right"
	default:
		return fmt.Sprintf("Eye(%d)", int(e))
	}
}

// Eyes lists both eyes in render order.
var Eyes = [2]Eye{LeftEye, RightEye}

// ReferenceSpaceType names a coordinate frame used to resolve head pose.
type ReferenceSpaceType int

const (
	ReferenceSpaceView ReferenceSpaceType = iota + 1
	ReferenceSpaceLocal
	ReferenceSpaceStage
)

func (t ReferenceSpaceType) String() string {
	switch t {
	case ReferenceSpaceView:
		return "view"
	case ReferenceSpaceLocal:
		return "local"
	case ReferenceSpaceStage:
		return "stage"
	default:
		return fmt.Sprintf("ReferenceSpaceType(%d)", int(t))
	}
}

// ReferenceSpaceCreateInfo describes the reference space a layer was
// rendered in: a named space plus an application-supplied offset pose.
type ReferenceSpaceCreateInfo struct {
	Type                 ReferenceSpaceType
	PoseInReferenceSpace xrmath.Pose
}

// View is one eye's located view: where it is and how wide it sees.
type View struct {
	Pose xrmath.Pose
	Fov  xrmath.Fov
}

// SwapchainSubImage is the render-target rectangle of one eye.
type SwapchainSubImage struct {
	X, Y          int32
	Width, Height int32
	ArrayIndex    uint32
}

// CompositionLayerProjectionView is one eye of a projection layer.
type CompositionLayerProjectionView struct {
	Pose     xrmath.Pose
	Fov      xrmath.Fov
	SubImage SwapchainSubImage
}

// CompositionLayerFlags mirror XrCompositionLayerFlags.
type CompositionLayerFlags uint64

const (
	LayerCorrectChromaticAberration CompositionLayerFlags = 1 << iota
	LayerBlendTextureSourceAlpha
	LayerUnpremultipliedAlpha
)

// CompositionLayerProjection is the application's stereo projection layer.
type CompositionLayerProjection struct {
	Flags CompositionLayerFlags
	Space ReferenceSpaceCreateInfo
	Views []CompositionLayerProjectionView
}

// Validate checks that the layer carries one view per eye.
func (l *CompositionLayerProjection) Validate() error {
	if l == nil {
		return fmt.Errorf("composition layer is nil")
	}
	if len(l.Views) < len(Eyes) {
		return fmt.Errorf("composition layer has %d views, need %d", len(l.Views), len(Eyes))
	}
	return nil
}

// HeadTracker is the host's tracking-pose query.
type HeadTracker interface {
	// LocateViews returns the HMD eye views at displayTime in space.
	LocateViews(displayTime Time, space ReferenceSpaceCreateInfo) ([2]View, error)
	// TrackingToSpace returns the transform from the camera runtime's
	// tracking origin into the natural origin of the given space type.
	TrackingToSpace(t ReferenceSpaceType) (xrmath.Mat4, error)
}

// SpaceFromTracking returns the transform taking tracking-origin coordinates
// into space, including its application offset pose.
func SpaceFromTracking(t HeadTracker, space ReferenceSpaceCreateInfo) (xrmath.Mat4, error) {
	toSpace, err := t.TrackingToSpace(space.Type)
	if err != nil {
		return xrmath.Mat4{}, err
	}
	return space.PoseInReferenceSpace.View().Mul(toSpace), nil
}
