// Package monitoring holds the process-wide diagnostic logger.
package monitoring

import (
	"log"
	"sync/atomic"
)

// LogFunc is a printf-style log sink.
type LogFunc func(format string, v ...interface{})

var (
	sink  atomic.Pointer[LogFunc]
	debug atomic.Bool
)

func init() {
	SetLogger(log.Printf)
}

// Logf writes a diagnostic line through the current sink. It defaults to
// log.Printf and may be swapped with SetLogger while goroutines are logging.
func Logf(format string, v ...interface{}) {
	(*sink.Load())(format, v...)
}

// Debugf logs only when debug logging is enabled.
func Debugf(format string, v ...interface{}) {
	if debug.Load() {
		Logf("[debug] "+format, v...)
	}
}

// SetLogger replaces the sink. Passing nil mutes logging.
func SetLogger(f LogFunc) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	sink.Store(&f)
}

// SetDebug toggles Debugf output.
func SetDebug(enabled bool) {
	debug.Store(enabled)
}

// DebugEnabled reports whether Debugf output is on.
func DebugEnabled() bool {
	return debug.Load()
}
