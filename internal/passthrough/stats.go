package passthrough

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/passthrough/internal/monitoring"
	"github.com/banshee-data/passthrough/internal/timeutil"
)

// intervalRingSize bounds the capture interval history.
const intervalRingSize = 256

// CaptureStats counts capture loop activity for one session. Counters are
// atomics; the interval ring has its own short lock.
type CaptureStats struct {
	captured             atomic.Uint64
	transientFailures    atomic.Uint64
	notReady             atomic.Uint64
	degeneratePoses      atomic.Uint64
	calibrationFallbacks atomic.Uint64
	lastLatencyNanos     atomic.Int64

	mu           sync.Mutex
	intervals    [intervalRingSize]time.Duration
	count        int
	next         int
	lastCapture  time.Duration
	haveCapture  bool
	lastSequence uint64
}

// StatsSnapshot is a point-in-time copy of a session's counters.
type StatsSnapshot struct {
	FramesCaptured       uint64        `json:"frames_captured"`
	FramesPublished      uint64        `json:"frames_published"`
	FramesDropped        uint64        `json:"frames_dropped"`
	FramesConsumed       uint64        `json:"frames_consumed"`
	FramesRejected       uint64        `json:"frames_rejected"`
	TransientFailures    uint64        `json:"transient_failures"`
	NotReadyPolls        uint64        `json:"not_ready_polls"`
	DegeneratePoses      uint64        `json:"degenerate_poses"`
	CalibrationFallbacks uint64        `json:"calibration_fallbacks"`
	LastLatency          time.Duration `json:"last_latency_ns"`
	LastSequence         uint64        `json:"last_sequence"`
	MeanInterval         time.Duration `json:"mean_interval_ns"`
}

func (s *CaptureStats) recordCapture(timestamp time.Duration, sequence uint64, latency time.Duration) {
	s.captured.Add(1)
	s.lastLatencyNanos.Store(int64(latency))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.haveCapture {
		s.intervals[s.next] = timestamp - s.lastCapture
		s.next = (s.next + 1) % intervalRingSize
		if s.count < intervalRingSize {
			s.count++
		}
	}
	s.lastCapture = timestamp
	s.haveCapture = true
	s.lastSequence = sequence
}

// Intervals returns the recent capture intervals, oldest first.
func (s *CaptureStats) Intervals() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, 0, s.count)
	start := (s.next - s.count + intervalRingSize) % intervalRingSize
	for i := 0; i < s.count; i++ {
		out = append(out, s.intervals[(start+i)%intervalRingSize])
	}
	return out
}

// Snapshot merges the capture counters with the hand-off counters.
func (s *CaptureStats) Snapshot(h HandoffCounters) StatsSnapshot {
	snap := StatsSnapshot{
		FramesCaptured:       s.captured.Load(),
		FramesPublished:      h.Published,
		FramesDropped:        h.Dropped,
		FramesConsumed:       h.Consumed,
		FramesRejected:       h.Rejected,
		TransientFailures:    s.transientFailures.Load(),
		NotReadyPolls:        s.notReady.Load(),
		DegeneratePoses:      s.degeneratePoses.Load(),
		CalibrationFallbacks: s.calibrationFallbacks.Load(),
		LastLatency:          time.Duration(s.lastLatencyNanos.Load()),
	}
	s.mu.Lock()
	snap.LastSequence = s.lastSequence
	var total time.Duration
	for i := 0; i < s.count; i++ {
		total += s.intervals[i]
	}
	if s.count > 0 {
		snap.MeanInterval = total / time.Duration(s.count)
	}
	s.mu.Unlock()
	return snap
}

// logStats writes a summary line every interval until ctx is done.
func logStats(ctx context.Context, clock timeutil.Clock, interval time.Duration, id string, snapshot func() StatsSnapshot) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()
	var prev StatsSnapshot
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			cur := snapshot()
			monitoring.Logf("[passthrough] session %s: captured=%d (+%d) consumed=%d dropped=%d transient=%d degenerate=%d mean_interval=%s latency=%s",
				id, cur.FramesCaptured, cur.FramesCaptured-prev.FramesCaptured, cur.FramesConsumed,
				cur.FramesDropped, cur.TransientFailures, cur.DegeneratePoses, cur.MeanInterval, cur.LastLatency)
			prev = cur
		}
	}
}
