// Package passthrough pulls frames from an HMD tracked camera on a background
// capture loop, hands the newest one to the renderer, and computes the
// per-eye transforms that place it in the viewer's current head pose.
package passthrough

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/passthrough/internal/camera"
	"github.com/banshee-data/passthrough/internal/config"
	"github.com/banshee-data/passthrough/internal/monitoring"
	"github.com/banshee-data/passthrough/internal/timeutil"
	"github.com/banshee-data/passthrough/internal/xr"
)

// ConfigSource supplies the active configuration snapshot.
type ConfigSource interface {
	Current() *config.Config
}

type staticConfig struct{ cfg *config.Config }

func (s staticConfig) Current() *config.Config { return s.cfg }

// Options configures a CameraManager. Runtime and Tracker are required.
type Options struct {
	Runtime  camera.Runtime
	Tracker  xr.HeadTracker
	Config   ConfigSource
	Clock    timeutil.Clock
	Observer SessionObserver
}

// CameraManager owns the camera runtime, one camera session at a time, and
// the capture goroutine of that session.
//
// Lifecycle methods (InitRuntime, InitCamera, DeinitCamera, DeinitRuntime,
// UpdateStaticCameraParameters) serialize on the session lock. The render
// path (GetCameraFrame, GetFrameSize, CalculateFrameProjection) only loads
// atomic snapshots and takes the hand-off lock.
type CameraManager struct {
	runtime  camera.Runtime
	tracker  xr.HeadTracker
	config   ConfigSource
	clock    timeutil.Clock
	observer SessionObserver

	mu         sync.Mutex
	generation uint64

	state   atomic.Int32
	session atomic.Pointer[session]
	params  atomic.Pointer[StaticCameraParameters]

	projection projector
	events     *eventBus
}

type session struct {
	info      SessionInfo
	device    camera.Device
	size      camera.FrameSize
	frameType camera.FrameType
	handoff   *FrameHandoff
	stats     *CaptureStats
	openedAt  time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// lost is set when the capture loop ended because the device closed
	// under it.
	lost atomic.Bool
}

// closedSession is a torn-down session awaiting its observer notification.
type closedSession struct {
	info    SessionInfo
	summary SessionSummary
}

func (s *session) snapshot() StatsSnapshot {
	return s.stats.Snapshot(s.handoff.Counters())
}

// NewCameraManager creates a manager in StateUninitialized.
func NewCameraManager(opts Options) *CameraManager {
	cfg := opts.Config
	if cfg == nil {
		cfg = staticConfig{cfg: config.Default()}
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &CameraManager{
		runtime:  opts.Runtime,
		tracker:  opts.Tracker,
		config:   cfg,
		clock:    clock,
		observer: opts.Observer,
		events:   newEventBus(),
	}
}

// State returns the current lifecycle state.
func (m *CameraManager) State() State {
	return State(m.state.Load())
}

func (m *CameraManager) setState(s State) {
	prev := State(m.state.Swap(int32(s)))
	if prev != s {
		monitoring.Debugf("passthrough state %s -> %s", prev, s)
	}
}

// InitRuntime connects to the tracking runtime. It is a no-op when already
// connected.
func (m *CameraManager) InitRuntime() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.State() != StateUninitialized {
		return nil
	}
	if err := m.runtime.Connect(); err != nil {
		return fmt.Errorf("%w: %w", ErrRuntimeUnavailable, err)
	}
	m.setState(StateRuntimeReady)
	monitoring.Logf("[passthrough] runtime connected")
	return nil
}

// InitCamera opens the HMD camera, computes its parameters and starts the
// capture loop. It is a no-op while a session is streaming. A session whose
// device was lost is torn down and replaced. On failure the state stays
// StateRuntimeReady and InitCamera may be retried.
func (m *CameraManager) InitCamera() error {
	opened, lost, err := m.initCamera()
	if m.observer != nil {
		if lost != nil {
			m.observer.SessionClosed(lost.info, lost.summary)
		}
		if opened != nil {
			m.observer.SessionOpened(*opened)
		}
	}
	return err
}

func (m *CameraManager) initCamera() (opened *SessionInfo, lost *closedSession, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.State() {
	case StateUninitialized:
		return nil, nil, ErrRuntimeUnavailable
	case StateCameraOpen, StateStreaming:
		return nil, nil, nil
	}
	if s := m.session.Load(); s != nil {
		c := m.teardownLocked(s)
		lost = &c
	}
	opened, err = m.openSessionLocked()
	return opened, lost, err
}

// openSessionLocked opens the camera and starts a new session. The caller
// holds m.mu.
func (m *CameraManager) openSessionLocked() (*SessionInfo, error) {
	cfg := m.config.Current()
	index, err := m.runtime.HMDDeviceIndex()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
	}
	present, err := m.runtime.HasCamera(index)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
	}
	if !present {
		return nil, fmt.Errorf("%w: device %d", ErrCameraUnavailable, index)
	}

	requested := cfg.GetFrameType()
	dev, err := m.runtime.Open(index, requested)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCameraOpenFailed, err)
	}
	frameType := dev.FrameType()
	if frameType != requested {
		monitoring.Logf("[passthrough] camera delivers %s frames; requested %s", frameType, requested)
	}
	size, err := dev.FrameSize()
	if err == nil {
		size, err = applyLayoutOverride(size, cfg)
	}
	if err == nil {
		err = size.Validate()
	}
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("%w: %w", ErrCameraOpenFailed, err)
	}
	m.setState(StateCameraOpen)

	stats := &CaptureStats{}
	params, err := m.computeParams(index, size, frameType, cfg)
	if err != nil {
		prev := m.params.Load()
		if prev == nil || prev.FrameBufferSize != size.BufferSize() || prev.FrameLayout != size.Layout || prev.FrameType != frameType {
			dev.Close()
			m.setState(StateRuntimeReady)
			return nil, fmt.Errorf("%w: %w", ErrCameraOpenFailed, err)
		}
		monitoring.Logf("[passthrough] warning: %v; keeping calibration generation %d", err, prev.Generation)
		stats.calibrationFallbacks.Add(1)
	} else {
		m.params.Store(params)
	}

	s := &session{
		info: SessionInfo{
			ID:          uuid.NewString(),
			OpenedAt:    m.clock.Now(),
			DeviceIndex: index,
			Width:       size.Width,
			Height:      size.Height,
			Layout:      size.Layout,
			FrameType:   frameType,
		},
		device:    dev,
		size:      size,
		frameType: frameType,
		handoff:   NewFrameHandoff(int(size.BufferSize())),
		stats:     stats,
		openedAt:  m.clock.Now(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	m.session.Store(s)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		m.captureLoop(ctx, s, index)
	}()
	go func() {
		defer s.wg.Done()
		logStats(ctx, m.clock, cfg.GetStatsLogInterval(), s.info.ID, s.snapshot)
	}()

	m.setState(StateStreaming)
	monitoring.Logf("[passthrough] camera session %s streaming %dx%d %s %s",
		s.info.ID, size.Width, size.Height, size.Layout, frameType)
	info := s.info
	return &info, nil
}

// applyLayoutOverride relabels the device's packing with the configured
// layout. The override may not change how many eye images a buffer holds,
// since the device fills buffers in its own layout.
func applyLayoutOverride(size camera.FrameSize, cfg *config.Config) (camera.FrameSize, error) {
	layout, ok := cfg.GetFrameLayout()
	if !ok {
		return size, nil
	}
	if layout.Eyes() != size.Layout.Eyes() {
		return size, fmt.Errorf("frame layout override %s holds %d eye images, device delivers %s with %d",
			layout, layout.Eyes(), size.Layout, size.Layout.Eyes())
	}
	size.Layout = layout
	return size, nil
}

// computeParams reads the device calibration and builds the next snapshot.
// The caller holds m.mu.
func (m *CameraManager) computeParams(index int, size camera.FrameSize, frameType camera.FrameType, cfg *config.Config) (*StaticCameraParameters, error) {
	calib, err := m.runtime.Calibration(index, frameType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCalibrationInvalid, err)
	}
	params, err := computeStaticParameters(size, frameType, calib, settingsFrom(cfg), m.generation+1)
	if err != nil {
		return nil, err
	}
	m.generation++
	return params, nil
}

func settingsFrom(cfg *config.Config) projectionSettings {
	return projectionSettings{
		api:  cfg.GetGraphicsAPI(),
		near: cfg.GetProjectionDistanceNear(),
		far:  cfg.GetProjectionDistanceFar(),
	}
}

// DeinitCamera stops the capture loop, waits for it to exit and closes the
// device. It is safe to call without an open camera.
func (m *CameraManager) DeinitCamera() {
	c, closed := m.deinitCamera()
	if closed && m.observer != nil {
		m.observer.SessionClosed(c.info, c.summary)
	}
}

func (m *CameraManager) deinitCamera() (closedSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session.Load()
	if s == nil {
		return closedSession{}, false
	}
	m.setState(StateRuntimeReady)
	return m.teardownLocked(s), true
}

// teardownLocked stops the capture loop of s, closes its device and clears
// the session. The caller holds m.mu.
func (m *CameraManager) teardownLocked(s *session) closedSession {
	s.cancel()
	s.wg.Wait()
	if err := s.device.Close(); err != nil {
		monitoring.Logf("[passthrough] camera close: %v", err)
	}
	m.session.Store(nil)

	summary := SessionSummary{ClosedAt: m.clock.Now(), Stats: s.snapshot(), DeviceLost: s.lost.Load()}
	if p := m.params.Load(); p != nil {
		summary.CalibrationGeneration = p.Generation
	}
	monitoring.Logf("[passthrough] camera session %s closed after %d frames", s.info.ID, summary.Stats.FramesCaptured)
	return closedSession{info: s.info, summary: summary}
}

// DeinitRuntime closes any camera session and disconnects the runtime.
func (m *CameraManager) DeinitRuntime() {
	m.DeinitCamera()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.State() == StateUninitialized {
		return
	}
	if err := m.runtime.Close(); err != nil {
		monitoring.Logf("[passthrough] runtime close: %v", err)
	}
	m.setState(StateUninitialized)
}

// GetFrameSize returns the per-eye texture size and the total frame buffer
// size of the open camera.
func (m *CameraManager) GetFrameSize() (width, height, bufferSize uint32, err error) {
	s := m.session.Load()
	if s == nil {
		return 0, 0, 0, ErrCameraNotInitialized
	}
	return s.size.Width, s.size.Height, s.size.BufferSize(), nil
}

// GetCameraFrame returns the newest published frame. It returns false when
// no frame was published since the previous successful call; the frame
// returned then remains valid and unchanged. It never blocks on capture.
func (m *CameraManager) GetCameraFrame() (*CameraFrame, bool) {
	if m.State() != StateStreaming {
		return nil, false
	}
	s := m.session.Load()
	if s == nil {
		return nil, false
	}
	return s.handoff.Take()
}

// UpdateStaticCameraParameters recomputes the calibration snapshot from the
// device. On an invalid calibration the previous snapshot stays active and
// the error wraps ErrCalibrationInvalid.
func (m *CameraManager) UpdateStaticCameraParameters() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session.Load()
	if s == nil {
		return ErrCameraNotInitialized
	}
	params, err := m.computeParams(s.info.DeviceIndex, s.size, s.frameType, m.config.Current())
	if err != nil {
		s.stats.calibrationFallbacks.Add(1)
		gen := uint64(0)
		if prev := m.params.Load(); prev != nil {
			gen = prev.Generation
		}
		monitoring.Logf("[passthrough] warning: %v; keeping calibration generation %d", err, gen)
		return fmt.Errorf("update static camera parameters: %w", err)
	}
	m.params.Store(params)
	return nil
}

// StaticCameraParameters returns the active calibration snapshot.
func (m *CameraManager) StaticCameraParameters() (*StaticCameraParameters, bool) {
	p := m.params.Load()
	return p, p != nil
}

// Session returns the open session, if any.
func (m *CameraManager) Session() (SessionInfo, bool) {
	s := m.session.Load()
	if s == nil {
		return SessionInfo{}, false
	}
	return s.info, true
}

// Stats returns the counters of the open session.
func (m *CameraManager) Stats() (StatsSnapshot, bool) {
	s := m.session.Load()
	if s == nil {
		return StatsSnapshot{}, false
	}
	return s.snapshot(), true
}

// CaptureIntervals returns the recent capture intervals of the open session.
func (m *CameraManager) CaptureIntervals() []time.Duration {
	s := m.session.Load()
	if s == nil {
		return nil
	}
	return s.stats.Intervals()
}

// captureLoop polls the device and publishes frames until ctx is done.
func (m *CameraManager) captureLoop(ctx context.Context, s *session, index int) {
	var ready <-chan struct{}
	if n, ok := s.device.(camera.FrameNotifier); ok {
		ready = n.FrameReady()
	}
	p := pacer{clock: m.clock}
	defer p.stop()

	fill := s.handoff.Acquire()
	for ctx.Err() == nil {
		cfg := m.config.Current()
		if m.State() != StateStreaming {
			p.wait(ctx, cfg.GetNotReadyBackoff(), nil)
			continue
		}

		hdr, ok, err := s.device.PollFrame(fill.Buffer)
		switch {
		case errors.Is(err, camera.ErrNotStreaming):
			s.stats.notReady.Add(1)
			p.wait(ctx, cfg.GetNotReadyBackoff(), nil)
			continue
		case errors.Is(err, camera.ErrClosed):
			monitoring.Logf("[passthrough] camera closed under session %s; InitCamera reopens it", s.info.ID)
			s.lost.Store(true)
			if m.state.CompareAndSwap(int32(StateStreaming), int32(StateRuntimeReady)) {
				monitoring.Debugf("passthrough state %s -> %s", StateStreaming, StateRuntimeReady)
			}
			return
		case err != nil:
			s.stats.transientFailures.Add(1)
			monitoring.Debugf("%v: %v", ErrDeviceReadTransient, err)
			p.wait(ctx, cfg.GetPollInterval(), ready)
			continue
		case !ok:
			p.wait(ctx, cfg.GetPollInterval(), ready)
			continue
		}

		pose, poseValid := hdr.Pose, hdr.PoseValid
		if !poseValid {
			pose, poseValid = m.runtime.DevicePose(index)
		}
		fill.stamp(hdr, s.size, s.frameType, pose, poseValid)
		fill.publishedAt = m.clock.Now()
		latency := fill.publishedAt.Sub(s.openedAt) - hdr.Timestamp
		if latency < 0 {
			latency = 0
		}
		if !s.handoff.Publish(fill) {
			monitoring.Debugf("dropped out-of-order frame %d at %s", hdr.Sequence, hdr.Timestamp)
		} else {
			s.stats.recordCapture(hdr.Timestamp, hdr.Sequence, latency)
			m.events.publish(FrameEvent{
				Session:   s.info.ID,
				Sequence:  hdr.Sequence,
				Timestamp: hdr.Timestamp,
				PoseValid: poseValid,
				Latency:   latency,
			})
		}
		fill = s.handoff.Acquire()
	}
}

// pacer sleeps between polls on one reusable timer, waking early on a
// frame-ready signal or cancellation.
type pacer struct {
	clock timeutil.Clock
	timer timeutil.Timer
}

func (p *pacer) wait(ctx context.Context, d time.Duration, ready <-chan struct{}) {
	if p.timer == nil {
		p.timer = p.clock.NewTimer(d)
	} else {
		p.timer.Reset(d)
	}
	select {
	case <-ctx.Done():
	case <-ready:
		if !p.timer.Stop() {
			select {
			case <-p.timer.C():
			default:
			}
		}
	case <-p.timer.C():
	}
}

func (p *pacer) stop() {
	if p.timer != nil {
		p.timer.Stop()
	}
}
