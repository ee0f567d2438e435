package passthrough

import (
	"sync"
	"sync/atomic"
	"time"
)

// handoffPoolSize covers the frame being filled, the published frame and
// the frame held by the consumer.
const handoffPoolSize = 3

// FrameHandoff is a newest-wins single-slot exchange between the capture
// loop and one consumer. Publishing replaces the previous frame without
// waiting for the consumer; a superseded frame returns to the pool only once
// it is neither published nor held.
type FrameHandoff struct {
	bufferSize int

	mu        sync.Mutex
	free      []*CameraFrame
	allocated int
	published *CameraFrame
	fresh     bool
	held      *CameraFrame
	last      time.Duration
	hasLast   bool

	publishes atomic.Uint64
	dropped   atomic.Uint64
	consumed  atomic.Uint64
	rejected  atomic.Uint64
}

// NewFrameHandoff creates a hand-off for frames of bufferSize bytes.
// Frames are allocated lazily on first use.
func NewFrameHandoff(bufferSize int) *FrameHandoff {
	return &FrameHandoff{
		bufferSize: bufferSize,
		free:       make([]*CameraFrame, 0, handoffPoolSize),
	}
}

// Acquire returns a frame for the producer to fill. It never returns the
// published or held frame.
func (h *FrameHandoff) Acquire() *CameraFrame {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := len(h.free); n > 0 {
		f := h.free[n-1]
		h.free = h.free[:n-1]
		return f
	}
	h.allocated++
	return &CameraFrame{Buffer: make([]byte, h.bufferSize)}
}

// Publish makes f the newest frame. A frame older than the last published
// one is refused and returned to the pool. Publish never blocks on the
// consumer.
func (h *FrameHandoff) Publish(f *CameraFrame) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hasLast && f.CaptureTimestamp < h.last {
		h.free = append(h.free, f)
		h.rejected.Add(1)
		return false
	}
	prev := h.published
	if h.fresh {
		h.dropped.Add(1)
	}
	h.published = f
	h.fresh = true
	h.last = f.CaptureTimestamp
	h.hasLast = true
	h.publishes.Add(1)
	if prev != nil && prev != h.held {
		h.free = append(h.free, prev)
	}
	return true
}

// Take hands the newest frame to the consumer. It returns false when nothing
// was published since the previous successful Take; the frame returned by
// that call stays valid and unchanged until the next successful Take.
func (h *FrameHandoff) Take() (*CameraFrame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.fresh {
		return nil, false
	}
	prev := h.held
	h.held = h.published
	h.fresh = false
	h.consumed.Add(1)
	if prev != nil && prev != h.held {
		h.free = append(h.free, prev)
	}
	return h.held, true
}

// Allocated returns how many frames the pool has created.
func (h *FrameHandoff) Allocated() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allocated
}

// HandoffCounters are the hand-off's cumulative counters.
type HandoffCounters struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Consumed  uint64 `json:"consumed"`
	Rejected  uint64 `json:"rejected"`
}

// Counters reads the counters without taking the hand-off lock.
func (h *FrameHandoff) Counters() HandoffCounters {
	return HandoffCounters{
		Published: h.publishes.Load(),
		Dropped:   h.dropped.Load(),
		Consumed:  h.consumed.Load(),
		Rejected:  h.rejected.Load(),
	}
}
