package passthrough

import (
	"context"
	"fmt"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/passthrough/internal/monitoring"
	"github.com/banshee-data/passthrough/internal/timeutil"
)

func TestCaptureStats_Intervals(t *testing.T) {
	var s CaptureStats
	assert.Empty(t, s.Intervals())

	for i, ts := range []time.Duration{10, 30, 60, 100} {
		s.recordCapture(ts*time.Millisecond, uint64(i+1), time.Millisecond)
	}
	want := []time.Duration{20 * time.Millisecond, 30 * time.Millisecond, 40 * time.Millisecond}
	if diff := cmp.Diff(want, s.Intervals()); diff != "" {
		t.Errorf("Intervals() mismatch (-want +got):\n%s", diff)
	}

	snap := s.Snapshot(HandoffCounters{Published: 4, Dropped: 1, Consumed: 3})
	assert.Equal(t, uint64(4), snap.FramesCaptured)
	assert.Equal(t, uint64(4), snap.LastSequence)
	assert.Equal(t, 30*time.Millisecond, snap.MeanInterval)
	assert.Equal(t, time.Millisecond, snap.LastLatency)
	assert.Equal(t, uint64(1), snap.FramesDropped)
}

func TestCaptureStats_RingWraps(t *testing.T) {
	var s CaptureStats
	for i := 0; i <= intervalRingSize+10; i++ {
		s.recordCapture(time.Duration(i*i), uint64(i), 0)
	}
	got := s.Intervals()
	require.Len(t, got, intervalRingSize)
	// Interval i is (i)^2 - (i-1)^2 = 2i-1, so the oldest kept one is i=11.
	assert.Equal(t, time.Duration(2*11-1), got[0])
	assert.Equal(t, time.Duration(2*(intervalRingSize+10)-1), got[len(got)-1])
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i], got[i-1])
	}
}

func TestLogStats_Ticks(t *testing.T) {
	var mu sync.Mutex
	var lines []string
	monitoring.SetLogger(func(format string, args ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, fmt.Sprintf(format, args...))
	})
	t.Cleanup(func() { monitoring.SetLogger(log.Printf) })

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var calls int
	go func() {
		defer close(done)
		logStats(ctx, clock, time.Second, "abc", func() StatsSnapshot {
			calls++
			return StatsSnapshot{FramesCaptured: uint64(calls * 10)}
		})
	}()

	// The ticker is created on the logger goroutine; keep advancing until it fires.
	require.Eventually(t, func() bool {
		clock.Advance(time.Second)
		mu.Lock()
		defer mu.Unlock()
		return len(lines) > 0
	}, time.Second, time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, lines[0], "session abc")
	assert.Contains(t, lines[0], "captured=10 (+10)")
}
