package passthrough

import (
	"fmt"
	"time"

	"github.com/banshee-data/passthrough/internal/camera"
)

// State is the lifecycle state of a CameraManager.
type State int32

const (
	StateUninitialized State = iota
	StateRuntimeReady
	// StateCameraOpen is held between device open and capture start.
	StateCameraOpen
	// StateStreaming is the only state in which frames are delivered. A
	// device that closes under the capture loop drops the manager back to
	// StateRuntimeReady.
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRuntimeReady:
		return "runtime_ready"
	case StateCameraOpen:
		return "camera_open"
	case StateStreaming:
		return "streaming"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for _, v := range []State{StateUninitialized, StateRuntimeReady, StateCameraOpen, StateStreaming} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// SessionInfo identifies one camera session, from InitCamera to
// DeinitCamera.
type SessionInfo struct {
	ID          string             `json:"id"`
	OpenedAt    time.Time          `json:"opened_at"`
	DeviceIndex int                `json:"device_index"`
	Width       uint32             `json:"width"`
	Height      uint32             `json:"height"`
	Layout      camera.FrameLayout `json:"layout"`
	FrameType   camera.FrameType   `json:"frame_type"`
}

// SessionSummary is reported when a session closes.
type SessionSummary struct {
	ClosedAt time.Time     `json:"closed_at"`
	Stats    StatsSnapshot `json:"stats"`

	// CalibrationGeneration is the snapshot active when the session closed.
	CalibrationGeneration uint64 `json:"calibration_generation"`
	// DeviceLost is set when the device closed under the capture loop.
	DeviceLost bool `json:"device_lost"`
}

// SessionObserver is notified of camera session boundaries. Calls happen
// outside the manager's locks and may block briefly.
type SessionObserver interface {
	SessionOpened(info SessionInfo)
	SessionClosed(info SessionInfo, summary SessionSummary)
}
