package main

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/passthrough/internal/camera"
	"github.com/banshee-data/passthrough/internal/monitoring"
	"github.com/banshee-data/passthrough/internal/passthrough"
	"github.com/banshee-data/passthrough/internal/xr"
	"github.com/banshee-data/passthrough/internal/xrmath"
)

// Sway parameters: a slow yaw oscillation with a small lateral drift.
const (
	swayPeriod = 4 * time.Second
	swayYaw    = 0.15
	swayDrift  = 0.05
)

// renderer stands in for a compositor: once per display frame it pulls the
// newest camera frame and computes its projection for a stage-space layer.
type renderer struct {
	mgr     *passthrough.CameraManager
	tracker *xr.StaticTracker
	mock    *camera.MockRuntime
	sway    bool
	space   xr.ReferenceSpaceCreateInfo
	start   time.Time
	// retry is the delay between reopen attempts after the camera is lost.
	retry time.Duration

	projected uint64
	invalid   uint64
	misses    uint64
}

func newRenderer(mgr *passthrough.CameraManager, tracker *xr.StaticTracker, mock *camera.MockRuntime, sway bool) *renderer {
	return &renderer{
		mgr:     mgr,
		tracker: tracker,
		mock:    mock,
		sway:    sway,
		space:   xr.ReferenceSpaceCreateInfo{Type: xr.ReferenceSpaceStage, PoseInReferenceSpace: xrmath.IdentityPose()},
		retry:   time.Second,
	}
}

func (r *renderer) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	r.start = time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if r.mgr.State() == passthrough.StateRuntimeReady {
				monitoring.Logf("[render] camera lost, reopening")
				if err := startCamera(ctx, r.mgr, r.retry); err != nil {
					if ctx.Err() == nil {
						monitoring.Logf("[render] failed to reopen camera: %v", err)
					}
					return
				}
				continue
			}
			r.step(now)
		}
	}
}

func (r *renderer) step(now time.Time) {
	if r.sway {
		head := swayPose(now.Sub(r.start))
		r.tracker.SetHeadPose(head)
		if r.mock != nil {
			r.mock.SetPose(head.Matrix(), true)
		}
	}

	frame, ok := r.mgr.GetCameraFrame()
	if !ok {
		r.misses++
		return
	}

	displayTime := xr.Time(now.UnixNano())
	views, err := r.tracker.LocateViews(displayTime, r.space)
	if err != nil {
		monitoring.Debugf("[render] locate views: %v", err)
		return
	}
	layer := &xr.CompositionLayerProjection{
		Space: r.space,
		Views: []xr.CompositionLayerProjectionView{
			{Pose: views[xr.LeftEye].Pose, Fov: views[xr.LeftEye].Fov},
			{Pose: views[xr.RightEye].Pose, Fov: views[xr.RightEye].Fov},
		},
	}
	if err := r.mgr.CalculateFrameProjection(frame, layer, displayTime, r.space); err != nil {
		monitoring.Logf("[render] projection for frame %d: %v", frame.Sequence, err)
		return
	}
	r.projected++
	if !frame.Header.ProjectionValid[xr.LeftEye] || !frame.Header.ProjectionValid[xr.RightEye] {
		r.invalid++
	}
}

// swayPose returns a standing head pose yawing back and forth over time.
func swayPose(elapsed time.Duration) xrmath.Pose {
	phase := 2 * math.Pi * float64(elapsed) / float64(swayPeriod)
	return xrmath.Pose{
		Orientation: xrmath.AxisAngle(r3.Vec{Y: 1}, swayYaw*math.Sin(phase)),
		Position:    r3.Add(standingHead.Position, r3.Vec{X: swayDrift * math.Sin(phase)}),
	}
}
