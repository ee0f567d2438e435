package camera

import (
	"errors"

	"github.com/banshee-data/passthrough/internal/xrmath"
)

// ErrDisabled is returned by every DisabledRuntime operation.
var ErrDisabled = errors.New("camera runtime disabled")

// DisabledRuntime is a Runtime used when no camera hardware is wanted
// (--disable-camera). Connect fails so callers fall back to running without
// pass-through.
type DisabledRuntime struct{}

func NewDisabledRuntime() *DisabledRuntime { return &DisabledRuntime{} }

func (DisabledRuntime) Connect() error {
	return ErrDisabled
}

func (DisabledRuntime) HMDDeviceIndex() (int, error) {
	return -1, ErrDisabled
}

func (DisabledRuntime) HasCamera(int) (bool, error) {
	return false, ErrDisabled
}

func (DisabledRuntime) Open(int, FrameType) (Device, error) {
	return nil, ErrDisabled
}

func (DisabledRuntime) Calibration(int, FrameType) (Calibration, error) {
	return Calibration{}, ErrDisabled
}

func (DisabledRuntime) DevicePose(int) (xrmath.Mat4, bool) {
	return xrmath.Mat4{}, false
}

func (DisabledRuntime) Close() error {
	return nil
}
