package xr

import (
	"fmt"
	"sync"

	"github.com/banshee-data/passthrough/internal/xrmath"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultIPD is the inter-pupillary distance used by StaticTracker when none
// is configured, in metres.
const DefaultIPD = 0.063

// StaticTracker is a HeadTracker with a settable head pose. It backs the
// probe tool and tests where no host runtime is present.
type StaticTracker struct {
	mu          sync.Mutex
	head        xrmath.Pose
	ipd         float64
	fov         xrmath.Fov
	seatedPose  xrmath.Pose
	locateCalls int
	err         error
}

// NewStaticTracker creates a tracker with the head at the origin and a
// symmetric 100 degree field of view per eye.
func NewStaticTracker() *StaticTracker {
	return &StaticTracker{
		head: xrmath.IdentityPose(),
		ipd:  DefaultIPD,
		fov: xrmath.Fov{
			AngleLeft:  -0.872665,
			AngleRight: 0.872665,
			AngleUp:    0.872665,
			AngleDown:  -0.872665,
		},
		seatedPose: xrmath.Pose{
			Orientation: xrmath.IdentityPose().Orientation,
			Position:    r3.Vec{Y: -1.2},
		},
	}
}

// SetHeadPose sets the head pose returned by subsequent LocateViews calls.
func (t *StaticTracker) SetHeadPose(p xrmath.Pose) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.head = p
}

// HeadPose returns the current head pose in tracking space.
func (t *StaticTracker) HeadPose() xrmath.Pose {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.head
}

// SetError makes LocateViews fail with err until cleared with nil.
func (t *StaticTracker) SetError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
}

// LocateCalls returns how many times LocateViews has been called.
func (t *StaticTracker) LocateCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.locateCalls
}

func (t *StaticTracker) LocateViews(displayTime Time, space ReferenceSpaceCreateInfo) ([2]View, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.locateCalls++
	if t.err != nil {
		return [2]View{}, t.err
	}

	toSpace, err := t.trackingToSpaceLocked(space.Type)
	if err != nil {
		return [2]View{}, err
	}
	toSpace = space.PoseInReferenceSpace.View().Mul(toSpace)

	var views [2]View
	for i, offset := range []float64{-t.ipd / 2, t.ipd / 2} {
		eye := t.head.Compose(xrmath.Pose{
			Orientation: xrmath.IdentityPose().Orientation,
			Position:    r3.Vec{X: offset},
		})
		views[i] = View{
			Pose: xrmath.PoseFromMatrix(toSpace.Mul(eye.Matrix())),
			Fov:  t.fov,
		}
	}
	return views, nil
}

func (t *StaticTracker) TrackingToSpace(st ReferenceSpaceType) (xrmath.Mat4, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.trackingToSpaceLocked(st)
}

func (t *StaticTracker) trackingToSpaceLocked(st ReferenceSpaceType) (xrmath.Mat4, error) {
	switch st {
	case ReferenceSpaceStage:
		return xrmath.Identity(), nil
	case ReferenceSpaceLocal:
		return t.seatedPose.Matrix(), nil
	case ReferenceSpaceView:
		return t.head.View(), nil
	default:
		return xrmath.Mat4{}, fmt.Errorf("unsupported reference space %v", st)
	}
}
