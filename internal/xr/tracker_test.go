package xr

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/passthrough/internal/xrmath"
)

func stage() ReferenceSpaceCreateInfo {
	return ReferenceSpaceCreateInfo{Type: ReferenceSpaceStage, PoseInReferenceSpace: xrmath.IdentityPose()}
}

func TestStaticTracker_LocateViews(t *testing.T) {
	tr := NewStaticTracker()
	views, err := tr.LocateViews(0, stage())
	require.NoError(t, err)
	assert.InDelta(t, -DefaultIPD/2, views[LeftEye].Pose.Position.X, 1e-12)
	assert.InDelta(t, DefaultIPD/2, views[RightEye].Pose.Position.X, 1e-12)
	assert.True(t, views[LeftEye].Fov.Valid())
	assert.Equal(t, 1, tr.LocateCalls())
}

func TestStaticTracker_HeadRotation(t *testing.T) {
	tr := NewStaticTracker()
	tr.SetHeadPose(xrmath.Pose{Orientation: xrmath.AxisAngle(r3.Vec{Y: 1}, math.Pi/2), Position: r3.Vec{Y: 1.7}})
	views, err := tr.LocateViews(0, stage())
	require.NoError(t, err)
	// The eye baseline turns with the head.
	assert.InDelta(t, 0, views[RightEye].Pose.Position.X, 1e-12)
	assert.InDelta(t, -DefaultIPD/2, views[RightEye].Pose.Position.Z, 1e-12)
	assert.InDelta(t, 1.7, views[RightEye].Pose.Position.Y, 1e-12)
}

func TestStaticTracker_LocalSpace(t *testing.T) {
	tr := NewStaticTracker()
	tr.SetHeadPose(xrmath.Pose{Orientation: xrmath.IdentityPose().Orientation, Position: r3.Vec{Y: 1.2}})
	views, err := tr.LocateViews(0, ReferenceSpaceCreateInfo{Type: ReferenceSpaceLocal, PoseInReferenceSpace: xrmath.IdentityPose()})
	require.NoError(t, err)
	assert.InDelta(t, 0, views[LeftEye].Pose.Position.Y, 1e-12, "seated origin sits at head height")
}

func TestStaticTracker_Errors(t *testing.T) {
	tr := NewStaticTracker()
	lost := errors.New("lost")
	tr.SetError(lost)
	_, err := tr.LocateViews(0, stage())
	assert.ErrorIs(t, err, lost)

	tr.SetError(nil)
	_, err = tr.LocateViews(0, ReferenceSpaceCreateInfo{Type: ReferenceSpaceType(42)})
	assert.Error(t, err)
	_, err = tr.TrackingToSpace(ReferenceSpaceType(0))
	assert.Error(t, err)
}

func TestSpaceFromTracking_AppliesOffsetPose(t *testing.T) {
	tr := NewStaticTracker()
	space := ReferenceSpaceCreateInfo{
		Type:                 ReferenceSpaceStage,
		PoseInReferenceSpace: xrmath.Pose{Orientation: xrmath.IdentityPose().Orientation, Position: r3.Vec{X: 2}},
	}
	m, err := SpaceFromTracking(tr, space)
	require.NoError(t, err)
	x, _, _ := m.ApplyPoint(2, 0, 0)
	assert.InDelta(t, 0, x, 1e-12, "the offset pose is the space origin")

	// LocateViews and SpaceFromTracking agree on the same space.
	views, err := tr.LocateViews(0, space)
	require.NoError(t, err)
	x, _, _ = m.ApplyPoint(-DefaultIPD/2, 0, 0)
	assert.InDelta(t, x, views[LeftEye].Pose.Position.X, 1e-12)
}

func TestSpaceFromTracking_ViewSpace(t *testing.T) {
	tr := NewStaticTracker()
	head := xrmath.Pose{Orientation: xrmath.AxisAngle(r3.Vec{X: 1}, 0.3), Position: r3.Vec{Y: 1.6, Z: 0.4}}
	tr.SetHeadPose(head)
	m, err := SpaceFromTracking(tr, ReferenceSpaceCreateInfo{Type: ReferenceSpaceView, PoseInReferenceSpace: xrmath.IdentityPose()})
	require.NoError(t, err)
	x, y, z := m.ApplyPoint(0, 1.6, 0.4)
	assert.InDelta(t, 0, x, 1e-12)
	assert.InDelta(t, 0, y, 1e-12)
	assert.InDelta(t, 0, z, 1e-12)
}

func TestCompositionLayerProjection_Validate(t *testing.T) {
	var nilLayer *CompositionLayerProjection
	assert.Error(t, nilLayer.Validate())
	assert.Error(t, (&CompositionLayerProjection{Views: make([]CompositionLayerProjectionView, 1)}).Validate())
	assert.NoError(t, (&CompositionLayerProjection{Views: make([]CompositionLayerProjectionView, 2)}).Validate())
}

func TestNames(t *testing.T) {
	assert.Equal(t, "left", LeftEye.String())
	assert.Equal(t, "Eye(5)", Eye(5).String())
	assert.Equal(t, "stage", ReferenceSpaceStage.String())
}

func TestStaticTracker_HeadPose(t *testing.T) {
	tr := NewStaticTracker()
	assert.Equal(t, xrmath.IdentityPose(), tr.HeadPose())
	p := xrmath.Pose{Orientation: xrmath.IdentityPose().Orientation, Position: r3.Vec{Y: 1.6}}
	tr.SetHeadPose(p)
	assert.Equal(t, p, tr.HeadPose())
}
