package camera

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/passthrough/internal/timeutil"
	"github.com/banshee-data/passthrough/internal/xrmath"
)

func openMock(t *testing.T, cfg MockConfig) (*MockRuntime, Device, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	cfg.Clock = clock
	r := NewMockRuntime(cfg)
	require.NoError(t, r.Connect())
	dev, err := r.Open(0, FrameTypeUndistorted)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })
	return r, dev, clock
}

func TestMockDevice_Cadence(t *testing.T) {
	_, dev, clock := openMock(t, MockConfig{FrameInterval: 10 * time.Millisecond})
	size, err := dev.FrameSize()
	require.NoError(t, err)
	buf := make([]byte, size.BufferSize())

	hdr, ok, err := dev.PollFrame(buf)
	require.NoError(t, err)
	require.True(t, ok, "first poll delivers immediately")
	assert.Equal(t, uint64(1), hdr.Sequence)

	_, ok, err = dev.PollFrame(buf)
	require.NoError(t, err)
	assert.False(t, ok, "no frame before the interval")

	clock.Advance(10 * time.Millisecond)
	hdr, ok, err = dev.PollFrame(buf)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(2), hdr.Sequence)
	assert.Equal(t, 10*time.Millisecond, hdr.Timestamp)
	assert.True(t, hdr.PoseValid)

	half := len(buf) / 2
	assert.Equal(t, uint64(2), binary.LittleEndian.Uint64(buf))
	assert.Equal(t, uint64(2), binary.LittleEndian.Uint64(buf[half:]))
}

func TestMockDevice_WakeUpFailuresAndLimit(t *testing.T) {
	r, dev, clock := openMock(t, MockConfig{WakeUpPolls: 2, FailEvery: 4, MaxFrames: 2, FrameInterval: time.Millisecond})
	buf := make([]byte, 960*960*4*2)

	for i := 0; i < 2; i++ {
		_, _, err := dev.PollFrame(buf)
		assert.ErrorIs(t, err, ErrNotStreaming)
	}
	_, ok, err := dev.PollFrame(buf) // poll 3
	require.NoError(t, err)
	assert.True(t, ok)
	_, _, err = dev.PollFrame(buf) // poll 4
	assert.ErrorIs(t, err, ErrReadFailed)

	clock.Advance(time.Millisecond)
	_, ok, _ = dev.PollFrame(buf)
	assert.True(t, ok)
	clock.Advance(time.Millisecond)
	_, ok, _ = dev.PollFrame(buf)
	assert.False(t, ok, "stream ends after MaxFrames")

	md := r.Device()
	assert.Len(t, md.Emitted(), 2)
	assert.Equal(t, FrameTypeUndistorted, md.FrameType())
}

func TestMockDevice_ShortBuffer(t *testing.T) {
	_, dev, _ := openMock(t, MockConfig{})
	_, _, err := dev.PollFrame(make([]byte, 16))
	assert.ErrorIs(t, err, ErrReadFailed)
}

func TestMockRuntime_RawOnly(t *testing.T) {
	_, dev, _ := openMock(t, MockConfig{RawOnly: true})
	assert.Equal(t, FrameTypeDistorted, dev.FrameType())

	_, dev, _ = openMock(t, MockConfig{})
	assert.Equal(t, FrameTypeUndistorted, dev.FrameType())
}

func TestMockDevice_Close(t *testing.T) {
	r, dev, _ := openMock(t, MockConfig{Notify: true})
	require.NoError(t, dev.Close())
	require.NoError(t, dev.Close())
	_, _, err := dev.PollFrame(nil)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = dev.FrameSize()
	assert.ErrorIs(t, err, ErrClosed)
	_, _, closes := r.Counts()
	assert.Equal(t, 1, closes)
	assert.True(t, r.Device().Closed())
}

func TestMockDevice_Notifier(t *testing.T) {
	_, dev, clock := openMock(t, MockConfig{Notify: true, FrameInterval: 5 * time.Millisecond})
	n, ok := dev.(FrameNotifier)
	require.True(t, ok)
	ready := n.FrameReady()
	require.NotNil(t, ready)

	require.Eventually(t, func() bool {
		clock.Advance(5 * time.Millisecond)
		select {
		case <-ready:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestMockRuntime_Controls(t *testing.T) {
	r := NewMockRuntime(MockConfig{NoCamera: true})
	_, err := r.HMDDeviceIndex()
	assert.ErrorIs(t, err, ErrClosed, "not connected")

	require.NoError(t, r.Connect())
	has, err := r.HasCamera(0)
	require.NoError(t, err)
	assert.False(t, has)
	r.SetCameraPresent(true)
	has, _ = r.HasCamera(0)
	assert.True(t, has)

	boom := errors.New("boom")
	r.SetOpenError(boom)
	_, err = r.Open(0, FrameTypeDistorted)
	assert.ErrorIs(t, err, boom)

	r.SetCalibration(Calibration{}, boom)
	_, err = r.Calibration(0, FrameTypeDistorted)
	assert.ErrorIs(t, err, boom)

	r.SetPose(xrmath.Translation(1, 2, 3), false)
	pose, valid := r.DevicePose(0)
	assert.False(t, valid)
	assert.Equal(t, xrmath.Translation(1, 2, 3), pose)

	assert.Error(t, NewMockRuntime(MockConfig{Unreachable: true}).Connect())
}
