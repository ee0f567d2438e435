package passthrough

import "errors"

var (
	// ErrRuntimeUnavailable is returned when the tracking runtime cannot be
	// reached or has not been initialized.
	ErrRuntimeUnavailable = errors.New("tracking runtime unavailable")
	// ErrCameraUnavailable is returned when the active HMD has no camera.
	ErrCameraUnavailable = errors.New("no camera on the active device")
	// ErrCameraOpenFailed is returned when the camera exists but cannot be
	// opened or streamed.
	ErrCameraOpenFailed = errors.New("camera open failed")
	// ErrDeviceReadTransient marks a single failed frame read. The capture
	// loop counts and absorbs it.
	ErrDeviceReadTransient = errors.New("transient camera read failure")
	// ErrCalibrationInvalid is returned when the device reports an unusable
	// calibration.
	ErrCalibrationInvalid = errors.New("camera calibration invalid")
	// ErrCameraNotInitialized is returned by accessors called before
	// InitCamera succeeded.
	ErrCameraNotInitialized = errors.New("camera not initialized")
)
