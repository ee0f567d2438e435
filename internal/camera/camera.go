// Package camera abstracts the tracked-camera runtime of a head-mounted
// device: discovering the HMD, opening its camera stream, polling frames and
// reading calibration. Backends exist for a synthetic mock, a disabled
// placeholder, and V4L2 devices on Linux.
package camera

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/passthrough/internal/xrmath"
)

var (
	// ErrNotStreaming is returned by PollFrame while the device is open but
	// not yet delivering frames, for example during headset wake-up.
	ErrNotStreaming = errors.New("camera is not streaming")
	// ErrReadFailed is returned by PollFrame when a single read failed and
	// the next poll may succeed.
	ErrReadFailed = errors.New("camera frame read failed")
	// ErrClosed is returned by operations on a closed device or runtime.
	ErrClosed = errors.New("camera handle closed")
)

// FrameType selects which stream the camera provides.
type FrameType int

const (
	FrameTypeDistorted FrameType = iota
	FrameTypeUndistorted
	FrameTypeMaximumUndistorted
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeDistorted:
		return "distorted"
	case FrameTypeUndistorted:
		return "undistorted"
	case FrameTypeMaximumUndistorted:
		return "maximum_undistorted"
	default:
		return fmt.Sprintf("FrameType(%d)", int(t))
	}
}

// ParseFrameType parses the names produced by FrameType.String.
func ParseFrameType(s string) (FrameType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "distorted":
		return FrameTypeDistorted, nil
	case "undistorted":
		return FrameTypeUndistorted, nil
	case "maximum_undistorted", "maximumundistorted":
		return FrameTypeMaximumUndistorted, nil
	default:
		return 0, fmt.Errorf("unknown frame type %q", s)
	}
}

func (t FrameType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *FrameType) UnmarshalText(b []byte) error {
	v, err := ParseFrameType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// FrameLayout is the packing of eye images within one captured buffer.
type FrameLayout int

const (
	// LayoutMono carries a single image used for both eyes.
	LayoutMono FrameLayout = iota
	// LayoutStereoVertical stacks the left eye above the right eye.
	LayoutStereoVertical
	// LayoutStereoHorizontal places the left eye beside the right eye.
	LayoutStereoHorizontal
)

func (l FrameLayout) String() string {
	switch l {
	case LayoutMono:
		return "mono"
	case LayoutStereoVertical:
		return "stereo_vertical"
	case LayoutStereoHorizontal:
		return "stereo_horizontal"
	default:
		return fmt.Sprintf("FrameLayout(%d)", int(l))
	}
}

// ParseFrameLayout parses the names produced by FrameLayout.String.
func ParseFrameLayout(s string) (FrameLayout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mono":
		return LayoutMono, nil
	case "stereo_vertical", "vertical":
		return LayoutStereoVertical, nil
	case "stereo_horizontal", "horizontal", "side_by_side":
		return LayoutStereoHorizontal, nil
	default:
		return 0, fmt.Errorf("unknown frame layout %q", s)
	}
}

func (l FrameLayout) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *FrameLayout) UnmarshalText(b []byte) error {
	v, err := ParseFrameLayout(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// Eyes returns the number of eye images packed in a buffer of layout l.
func (l FrameLayout) Eyes() uint32 {
	if l == LayoutMono {
		return 1
	}
	return 2
}

// FrameSize describes the per-eye image dimensions of a camera stream.
type FrameSize struct {
	Width         uint32
	Height        uint32
	BytesPerPixel uint32
	Layout        FrameLayout
}

// BufferSize is the number of bytes needed to hold one captured frame.
func (s FrameSize) BufferSize() uint32 {
	return s.Width * s.Height * s.BytesPerPixel * s.Layout.Eyes()
}

// Validate rejects sizes a frame buffer cannot be allocated for.
func (s FrameSize) Validate() error {
	if s.Width == 0 || s.Height == 0 {
		return fmt.Errorf("invalid frame size %dx%d", s.Width, s.Height)
	}
	if s.BytesPerPixel == 0 {
		return fmt.Errorf("invalid bytes per pixel %d", s.BytesPerPixel)
	}
	return nil
}

// FrameHeader is the metadata of one polled frame.
type FrameHeader struct {
	// Sequence is the device frame counter.
	Sequence uint64
	// Timestamp is the exposure time relative to the device's stream start.
	Timestamp time.Duration
	// Pose is the HMD pose in tracking space at exposure, when the device
	// reports one.
	Pose      xrmath.Mat4
	PoseValid bool
}

// Runtime is the tracking and camera service of the headset. Implementations
// must be safe for concurrent use: DevicePose is called from the capture loop.
type Runtime interface {
	// Connect acquires the runtime. It is called once per InitRuntime.
	Connect() error
	// HMDDeviceIndex resolves the tracked device index of the active HMD.
	HMDDeviceIndex() (int, error)
	// HasCamera reports whether the device carries a tracked camera.
	HasCamera(index int) (bool, error)
	// Open starts streaming the camera of the device.
	Open(index int, frameType FrameType) (Device, error)
	// Calibration reads the camera's raw intrinsics and extrinsics.
	Calibration(index int, frameType FrameType) (Calibration, error)
	// DevicePose returns the current pose of the device in tracking space.
	DevicePose(index int) (xrmath.Mat4, bool)
	// Close releases the runtime.
	Close() error
}

// Device is an open camera stream. A Device is used by one goroutine at a
// time.
type Device interface {
	// FrameSize reports the per-eye dimensions and layout of the stream.
	FrameSize() (FrameSize, error)
	// FrameType reports the stream type the device delivers, which may
	// differ from the one requested at Open.
	FrameType() FrameType
	// PollFrame copies a new frame into dst if one is ready since the last
	// call. It returns false when no new frame is available.
	PollFrame(dst []byte) (FrameHeader, bool, error)
	// Close stops streaming and releases the device.
	Close() error
}

// FrameNotifier is implemented by devices that can signal frame readiness.
// Callers still poll; the signal only shortens the wait.
type FrameNotifier interface {
	FrameReady() <-chan struct{}
}
