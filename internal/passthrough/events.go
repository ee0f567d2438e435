package passthrough

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FrameEvent describes one published frame for the debug tail.
type FrameEvent struct {
	Session   string        `json:"session"`
	Sequence  uint64        `json:"sequence"`
	Timestamp time.Duration `json:"timestamp_ns"`
	PoseValid bool          `json:"pose_valid"`
	Latency   time.Duration `json:"latency_ns"`
}

// eventBus fans frame events out to debug subscribers. Slow subscribers
// miss events rather than stall the capture loop.
type eventBus struct {
	mu          sync.Mutex
	subscribers map[string]chan string
}

func newEventBus() *eventBus {
	return &eventBus{subscribers: make(map[string]chan string)}
}

func (b *eventBus) Subscribe() (string, chan string) {
	id := uuid.NewString()
	ch := make(chan string, 16)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[id] = ch
	return id, ch
}

func (b *eventBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

func (b *eventBus) active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers) > 0
}

func (b *eventBus) publish(ev FrameEvent) {
	if !b.active() {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- string(payload):
		default:
		}
	}
}
