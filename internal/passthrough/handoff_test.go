package passthrough

import (
	"encoding/binary"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishAt(h *FrameHandoff, ts time.Duration, seq uint64) (*CameraFrame, bool) {
	f := h.Acquire()
	f.CaptureTimestamp = ts
	f.Sequence = seq
	binary.LittleEndian.PutUint64(f.Buffer, seq)
	return f, h.Publish(f)
}

func TestFrameHandoff_TakeEmpty(t *testing.T) {
	h := NewFrameHandoff(16)
	f, ok := h.Take()
	assert.False(t, ok)
	assert.Nil(t, f)
}

func TestFrameHandoff_NewestWins(t *testing.T) {
	h := NewFrameHandoff(16)
	for i := 1; i <= 5; i++ {
		_, ok := publishAt(h, time.Duration(i)*time.Millisecond, uint64(i))
		require.True(t, ok)
	}

	f, ok := h.Take()
	require.True(t, ok)
	assert.Equal(t, uint64(5), f.Sequence)

	c := h.Counters()
	assert.Equal(t, uint64(5), c.Published)
	assert.Equal(t, uint64(4), c.Dropped)
	assert.Equal(t, uint64(1), c.Consumed)
}

func TestFrameHandoff_SecondTakeWithoutPublish(t *testing.T) {
	h := NewFrameHandoff(16)
	publishAt(h, time.Millisecond, 1)

	first, ok := h.Take()
	require.True(t, ok)

	again, ok := h.Take()
	assert.False(t, ok)
	assert.Nil(t, again)
	assert.Equal(t, uint64(1), first.Sequence, "held frame unchanged")
	assert.Equal(t, uint64(1), binary.LittleEndian.Uint64(first.Buffer))
}

func TestFrameHandoff_RejectsOlderTimestamp(t *testing.T) {
	h := NewFrameHandoff(16)
	publishAt(h, 10*time.Millisecond, 1)

	_, ok := publishAt(h, 5*time.Millisecond, 2)
	assert.False(t, ok)

	f, ok := h.Take()
	require.True(t, ok)
	assert.Equal(t, uint64(1), f.Sequence)
	assert.Equal(t, uint64(1), h.Counters().Rejected)

	_, ok = publishAt(h, 10*time.Millisecond, 3)
	assert.True(t, ok, "equal timestamps are allowed")
}

func TestFrameHandoff_PoolBounded(t *testing.T) {
	h := NewFrameHandoff(16)
	for i := 1; i <= 100; i++ {
		publishAt(h, time.Duration(i), uint64(i))
		if i%3 == 0 {
			h.Take()
		}
	}
	assert.LessOrEqual(t, h.Allocated(), handoffPoolSize)
}

func TestFrameHandoff_HeldFrameNeverReused(t *testing.T) {
	h := NewFrameHandoff(16)
	publishAt(h, 1, 1)
	held, ok := h.Take()
	require.True(t, ok)

	for i := 2; i <= 50; i++ {
		f := h.Acquire()
		require.NotSame(t, held, f)
		f.CaptureTimestamp = time.Duration(i)
		f.Sequence = uint64(i)
		require.True(t, h.Publish(f))
	}
	assert.Equal(t, uint64(1), held.Sequence)
}

func TestFrameHandoff_MonotonicVisibility(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	h := NewFrameHandoff(8)

	ts := time.Duration(0)
	var lastSeen time.Duration
	for i := 0; i < 2000; i++ {
		// Mostly forward, occasionally backwards.
		step := time.Duration(rng.Intn(10)) - 2
		ts += step
		publishAt(h, ts, uint64(i))
		if rng.Intn(3) == 0 {
			if f, ok := h.Take(); ok {
				require.GreaterOrEqual(t, f.CaptureTimestamp, lastSeen)
				lastSeen = f.CaptureTimestamp
			}
		}
	}
}

func TestFrameHandoff_ConcurrentProducerConsumer(t *testing.T) {
	h := NewFrameHandoff(64)
	const frames = 5000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= frames; i++ {
			publishAt(h, time.Duration(i), uint64(i))
		}
	}()

	var last uint64
	var held *CameraFrame
	deadline := time.After(5 * time.Second)
	for last < frames {
		select {
		case <-deadline:
			t.Fatalf("consumer stuck at %d", last)
		default:
		}
		if held != nil {
			require.Equal(t, held.Sequence, binary.LittleEndian.Uint64(held.Buffer), "held frame overwritten")
		}
		f, ok := h.Take()
		if !ok {
			continue
		}
		require.GreaterOrEqual(t, f.Sequence, last)
		require.Equal(t, f.Sequence, binary.LittleEndian.Uint64(f.Buffer))
		last = f.Sequence
		held = f
	}
	wg.Wait()
	assert.LessOrEqual(t, h.Allocated(), handoffPoolSize)
}
