package camera

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/passthrough/internal/timeutil"
	"github.com/banshee-data/passthrough/internal/xrmath"
	"gonum.org/v1/gonum/spatial/r3"
)

// MockConfig configures a MockRuntime.
type MockConfig struct {
	// Size of the synthetic stream. Defaults to 960x960 RGBA stereo vertical.
	Size FrameSize
	// FrameInterval is the exposure cadence. Defaults to 54 Hz.
	FrameInterval time.Duration
	// MaxFrames stops the stream after this many frames when non-zero.
	MaxFrames int
	// Unreachable makes Connect fail.
	Unreachable bool
	// NoCamera makes HasCamera report false.
	NoCamera bool
	// OpenErr is returned by Open when set.
	OpenErr error
	// WakeUpPolls is the number of polls answered with ErrNotStreaming after
	// Open.
	WakeUpPolls int
	// FailEvery makes every n-th poll return ErrReadFailed.
	FailEvery int
	// RawOnly makes opened devices deliver FrameTypeDistorted whatever type
	// was requested.
	RawOnly bool
	// Notify enables the FrameNotifier interface on opened devices.
	Notify bool
	// Clock defaults to the real clock.
	Clock timeutil.Clock
}

// MockRuntime is a synthetic camera runtime. It backs dev mode in the probe
// tool and the capture tests.
type MockRuntime struct {
	mu          sync.Mutex
	cfg         MockConfig
	clock       timeutil.Clock
	connected   bool
	calibration Calibration
	calibErr    error
	pose        xrmath.Mat4
	poseValid   bool
	device      *MockDevice
	connects    int
	opens       int
	closes      int
}

// NewMockRuntime creates a MockRuntime, filling defaults for unset fields.
func NewMockRuntime(cfg MockConfig) *MockRuntime {
	if cfg.Size.Width == 0 || cfg.Size.Height == 0 {
		cfg.Size = FrameSize{Width: 960, Height: 960, Layout: LayoutStereoVertical}
	}
	if cfg.Size.BytesPerPixel == 0 {
		cfg.Size.BytesPerPixel = 4
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = time.Second / 54
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &MockRuntime{
		cfg:         cfg,
		clock:       clock,
		calibration: SymmetricCalibration(cfg.Size.Width, cfg.Size.Height, 110, 0.064, r3.Vec{Y: -0.03, Z: -0.08}),
		pose:        xrmath.Translation(0, 1.6, 0),
		poseValid:   true,
	}
}

// SetCameraPresent toggles whether HasCamera reports a camera.
func (r *MockRuntime) SetCameraPresent(present bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.NoCamera = !present
}

// SetOpenError sets the error returned by subsequent Open calls.
func (r *MockRuntime) SetOpenError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.OpenErr = err
}

// SetCalibration replaces the reported calibration. A non-nil err makes
// Calibration fail instead.
func (r *MockRuntime) SetCalibration(c Calibration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calibration = c
	r.calibErr = err
}

// SetPose sets the HMD pose stamped on frames and returned by DevicePose.
func (r *MockRuntime) SetPose(m xrmath.Mat4, valid bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pose = m
	r.poseValid = valid
}

// Counts returns how many times Connect, Open and device Close were called.
func (r *MockRuntime) Counts() (connects, opens, closes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects, r.opens, r.closes
}

// Device returns the most recently opened device, if any.
func (r *MockRuntime) Device() *MockDevice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.device
}

func (r *MockRuntime) Connect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connects++
	if r.cfg.Unreachable {
		return fmt.Errorf("mock runtime unreachable")
	}
	r.connected = true
	return nil
}

func (r *MockRuntime) HMDDeviceIndex() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return -1, ErrClosed
	}
	return 0, nil
}

func (r *MockRuntime) HasCamera(index int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return false, ErrClosed
	}
	return index == 0 && !r.cfg.NoCamera, nil
}

func (r *MockRuntime) Open(index int, frameType FrameType) (Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return nil, ErrClosed
	}
	if r.cfg.OpenErr != nil {
		return nil, r.cfg.OpenErr
	}
	r.opens++
	if r.cfg.RawOnly {
		frameType = FrameTypeDistorted
	}
	d := &MockDevice{
		runtime:     r,
		size:        r.cfg.Size,
		interval:    r.cfg.FrameInterval,
		maxFrames:   r.cfg.MaxFrames,
		wakeUpPolls: r.cfg.WakeUpPolls,
		failEvery:   r.cfg.FailEvery,
		frameType:   frameType,
		openedAt:    r.clock.Now(),
	}
	if r.cfg.Notify {
		d.ready = make(chan struct{}, 1)
		d.stop = make(chan struct{})
		go d.notifyLoop()
	}
	r.device = d
	return d, nil
}

func (r *MockRuntime) Calibration(index int, frameType FrameType) (Calibration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return Calibration{}, ErrClosed
	}
	if r.calibErr != nil {
		return Calibration{}, r.calibErr
	}
	return r.calibration, nil
}

func (r *MockRuntime) DevicePose(index int) (xrmath.Mat4, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pose, r.poseValid
}

func (r *MockRuntime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = false
	return nil
}

// MockDevice is the synthetic camera stream opened by MockRuntime. Each
// frame carries its sequence number in the first eight bytes of every eye.
type MockDevice struct {
	runtime     *MockRuntime
	size        FrameSize
	interval    time.Duration
	maxFrames   int
	wakeUpPolls int
	failEvery   int
	frameType   FrameType
	openedAt    time.Time

	mu        sync.Mutex
	polls     int
	emitted   []time.Duration
	lastEmit  time.Duration
	closed    bool
	ready     chan struct{}
	stop      chan struct{}
	closeOnce sync.Once
}

// Emitted returns the timestamps of every frame delivered so far.
func (d *MockDevice) Emitted() []time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]time.Duration, len(d.emitted))
	copy(out, d.emitted)
	return out
}

// FrameType returns the stream type the device delivers.
func (d *MockDevice) FrameType() FrameType {
	return d.frameType
}

// Closed reports whether Close has been called.
func (d *MockDevice) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *MockDevice) FrameSize() (FrameSize, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return FrameSize{}, ErrClosed
	}
	return d.size, nil
}

func (d *MockDevice) PollFrame(dst []byte) (FrameHeader, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return FrameHeader{}, false, ErrClosed
	}
	d.polls++
	if d.wakeUpPolls > 0 {
		d.wakeUpPolls--
		return FrameHeader{}, false, ErrNotStreaming
	}
	if d.failEvery > 0 && d.polls%d.failEvery == 0 {
		return FrameHeader{}, false, ErrReadFailed
	}
	if d.maxFrames > 0 && len(d.emitted) >= d.maxFrames {
		return FrameHeader{}, false, nil
	}

	now := d.runtime.clock.Since(d.openedAt)
	if len(d.emitted) > 0 && now-d.lastEmit < d.interval {
		return FrameHeader{}, false, nil
	}
	// Keep timestamps strictly increasing even under a coarse clock.
	if len(d.emitted) > 0 && now <= d.lastEmit {
		now = d.lastEmit + time.Nanosecond
	}

	size := int(d.size.BufferSize())
	if len(dst) < size {
		return FrameHeader{}, false, fmt.Errorf("%w: destination buffer %d bytes, need %d", ErrReadFailed, len(dst), size)
	}
	seq := uint64(len(d.emitted) + 1)
	eyeBytes := size / int(d.size.Layout.Eyes())
	for eye := 0; eye < int(d.size.Layout.Eyes()); eye++ {
		binary.LittleEndian.PutUint64(dst[eye*eyeBytes:], seq)
	}
	d.emitted = append(d.emitted, now)
	d.lastEmit = now

	pose, valid := d.runtime.DevicePose(0)
	return FrameHeader{
		Sequence:  seq,
		Timestamp: now,
		Pose:      pose,
		PoseValid: valid,
	}, true, nil
}

// FrameReady implements FrameNotifier when the runtime was configured with
// Notify. It returns nil otherwise.
func (d *MockDevice) FrameReady() <-chan struct{} {
	return d.ready
}

func (d *MockDevice) notifyLoop() {
	ticker := d.runtime.clock.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C():
			select {
			case d.ready <- struct{}{}:
			default:
			}
		}
	}
}

func (d *MockDevice) Close() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		if d.stop != nil {
			close(d.stop)
		}
		d.runtime.mu.Lock()
		d.runtime.closes++
		d.runtime.mu.Unlock()
	})
	return nil
}
