//go:build linux && cgo

package camera

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/banshee-data/passthrough/internal/monitoring"
	"github.com/banshee-data/passthrough/internal/xrmath"
	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"
)

// V4L2Runtime drives a stereo camera through go4vl. The device reports no
// tracking, so poses come from the supplied PoseSource.
type V4L2Runtime struct {
	opts V4L2Options
	pose PoseSource

	mu        sync.Mutex
	connected bool
}

// NewV4L2Runtime creates a runtime for the camera described by opts.
func NewV4L2Runtime(opts V4L2Options, pose PoseSource) (*V4L2Runtime, error) {
	normalized, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	return &V4L2Runtime{opts: normalized, pose: pose}, nil
}

func (r *V4L2Runtime) Connect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = true
	return nil
}

func (r *V4L2Runtime) HMDDeviceIndex() (int, error) {
	return 0, nil
}

func (r *V4L2Runtime) HasCamera(index int) (bool, error) {
	if index != 0 {
		return false, nil
	}
	if _, err := os.Stat(r.opts.DevicePath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *V4L2Runtime) Open(index int, frameType FrameType) (Device, error) {
	width, height := r.opts.captureSize()
	dev, err := device.Open(r.opts.DevicePath,
		device.WithIOType(v4l2.IOTypeMMAP),
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: v4l2.PixelFmtYUYV,
			Width:       width,
			Height:      height,
			Field:       v4l2.FieldNone,
		}),
		device.WithFPS(r.opts.FPS),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera device %s: %w", r.opts.DevicePath, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := dev.Start(ctx); err != nil {
		cancel()
		dev.Close()
		return nil, fmt.Errorf("failed to start streaming: %w", err)
	}
	if frameType != FrameTypeDistorted {
		monitoring.Logf("v4l2 camera delivers %s frames only; requested %s", FrameTypeDistorted, frameType)
	}
	monitoring.Logf("v4l2 camera %s streaming %dx%d@%d", r.opts.DevicePath, width, height, r.opts.FPS)

	return &v4l2Device{
		dev:      dev,
		cancel:   cancel,
		size:     r.opts.frameSize(),
		pose:     r.pose,
		openedAt: time.Now(),
	}, nil
}

func (r *V4L2Runtime) Calibration(index int, frameType FrameType) (Calibration, error) {
	return SymmetricCalibration(r.opts.Width, r.opts.Height, r.opts.HorizontalFOV, r.opts.Baseline, r.opts.Offset), nil
}

func (r *V4L2Runtime) DevicePose(index int) (xrmath.Mat4, bool) {
	if r.pose == nil {
		return xrmath.Identity(), true
	}
	return r.pose()
}

func (r *V4L2Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = false
	return nil
}

type v4l2Device struct {
	dev      *device.Device
	cancel   context.CancelFunc
	size     FrameSize
	pose     PoseSource
	openedAt time.Time
	seq      uint64
	closed   bool
}

func (d *v4l2Device) FrameSize() (FrameSize, error) {
	return d.size, nil
}

// FrameType is always FrameTypeDistorted: UVC cameras deliver the raw
// sensor image.
func (d *v4l2Device) FrameType() FrameType {
	return FrameTypeDistorted
}

func (d *v4l2Device) PollFrame(dst []byte) (FrameHeader, bool, error) {
	if d.closed {
		return FrameHeader{}, false, ErrClosed
	}
	select {
	case buf, ok := <-d.dev.GetOutput():
		if !ok {
			return FrameHeader{}, false, ErrNotStreaming
		}
		if err := copyFrame(dst, buf, d.size); err != nil {
			return FrameHeader{}, false, err
		}
		d.seq++
		hdr := FrameHeader{Sequence: d.seq, Timestamp: time.Since(d.openedAt)}
		if d.pose != nil {
			hdr.Pose, hdr.PoseValid = d.pose()
		}
		return hdr, true, nil
	default:
		return FrameHeader{}, false, nil
	}
}

func (d *v4l2Device) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.cancel()
	return d.dev.Close()
}
