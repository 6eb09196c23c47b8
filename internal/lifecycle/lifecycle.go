// Package lifecycle holds process-wide lifecycle state read by the health check.
package lifecycle

import (
	"sync/atomic"
	"time"
)

var (
	startTime    atomic.Int64
	shuttingDown atomic.Bool
)

func init() {
	MarkStarted(time.Now())
}

// MarkStarted records when the process began serving.
func MarkStarted(t time.Time) {
	startTime.Store(t.UnixNano())
}

// Uptime returns the time elapsed since MarkStarted.
func Uptime() time.Duration {
	return time.Since(time.Unix(0, startTime.Load()))
}

// SetShuttingDown sets the drain flag. Call when SIGTERM/SIGINT is received.
// The health handler returns 503 shutting-down while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}
