package monitoring

import (
	"fmt"
	"log"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureLogs(t *testing.T) *[]string {
	t.Helper()
	var mu sync.Mutex
	lines := []string{}
	SetLogger(func(format string, v ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() {
		SetLogger(log.Printf)
		SetDebug(false)
	})
	return &lines
}

func TestSetLogger(t *testing.T) {
	lines := captureLogs(t)
	Logf("frame %d", 7)
	assert.Equal(t, []string{"frame 7"}, *lines)

	SetLogger(nil)
	Logf("dropped")
	assert.Len(t, *lines, 1)
}

func TestDebugf(t *testing.T) {
	lines := captureLogs(t)

	Debugf("hidden")
	assert.Empty(t, *lines)
	assert.False(t, DebugEnabled())

	SetDebug(true)
	Debugf("poll %s", "ok")
	assert.Equal(t, []string{"[debug] poll ok"}, *lines)
}

func TestLogf_ConcurrentSwap(t *testing.T) {
	captureLogs(t)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				Logf("line %d", j)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		SetLogger(func(string, ...interface{}) {})
	}
	wg.Wait()
}
