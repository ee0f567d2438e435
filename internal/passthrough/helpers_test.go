package passthrough

import (
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/passthrough/internal/camera"
	"github.com/banshee-data/passthrough/internal/config"
	"github.com/banshee-data/passthrough/internal/monitoring"
	"github.com/banshee-data/passthrough/internal/xr"
	"github.com/banshee-data/passthrough/internal/xrmath"
)

func quietLogs(t *testing.T) {
	t.Helper()
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(log.Printf) })
}

type recordingObserver struct {
	mu      sync.Mutex
	opened  []SessionInfo
	closed  []SessionInfo
	summary []SessionSummary
}

func (o *recordingObserver) SessionOpened(info SessionInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, info)
}

func (o *recordingObserver) SessionClosed(info SessionInfo, summary SessionSummary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = append(o.closed, info)
	o.summary = append(o.summary, summary)
}

func (o *recordingObserver) counts() (opened, closed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.opened), len(o.closed)
}

type fixture struct {
	runtime  *camera.MockRuntime
	tracker  *xr.StaticTracker
	config   *config.Provider
	observer *recordingObserver
	manager  *CameraManager
}

func newFixture(t *testing.T, mc camera.MockConfig) *fixture {
	t.Helper()
	quietLogs(t)
	f := &fixture{
		runtime:  camera.NewMockRuntime(mc),
		tracker:  xr.NewStaticTracker(),
		config:   config.NewProvider(nil),
		observer: &recordingObserver{},
	}
	f.manager = NewCameraManager(Options{
		Runtime:  f.runtime,
		Tracker:  f.tracker,
		Config:   f.config,
		Observer: f.observer,
	})
	t.Cleanup(f.manager.DeinitRuntime)
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.manager.InitRuntime())
	require.NoError(t, f.manager.InitCamera())
	require.Equal(t, StateStreaming, f.manager.State())
}

// alignedCalibration places the camera eyes exactly at the tracker's eyes.
func alignedCalibration() camera.Calibration {
	return camera.SymmetricCalibration(960, 960, 100, xr.DefaultIPD, r3.Vec{})
}

// layerFor builds a projection layer whose views use the camera frustums.
func layerFor(p *StaticCameraParameters) *xr.CompositionLayerProjection {
	return &xr.CompositionLayerProjection{
		Space: xr.ReferenceSpaceCreateInfo{Type: xr.ReferenceSpaceStage, PoseInReferenceSpace: xrmath.IdentityPose()},
		Views: []xr.CompositionLayerProjectionView{
			{Pose: xrmath.IdentityPose(), Fov: p.LeftFov},
			{Pose: xrmath.IdentityPose(), Fov: p.RightFov},
		},
	}
}

func stageSpace() xr.ReferenceSpaceCreateInfo {
	return xr.ReferenceSpaceCreateInfo{Type: xr.ReferenceSpaceStage, PoseInReferenceSpace: xrmath.IdentityPose()}
}

func requireMatInDelta(t *testing.T, want, got xrmath.Mat4, delta float64) {
	t.Helper()
	for i := range want {
		require.InDelta(t, want[i], got[i], delta, "element %d: want %v got %v", i, want, got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond)
}
