// Package traffic keeps sliding windows of request and forecast outcomes.
// It is the single source for the overloaded and degraded health states.
package traffic

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Outcome is a kind of recorded event.
type Outcome int

const (
	// Served is a data request answered by the dashboard.
	Served Outcome = iota
	// Denied is a request rejected by the rate limiter (429).
	Denied
	// Live is a forecast load answered by the upstream API.
	Live
	// Fallback is a forecast load answered with demo data.
	Fallback
	numOutcomes
)

// retention bounds memory; windows longer than this undercount.
const retention = 10 * time.Minute

var defaultTracker = NewTracker(clockwork.NewRealClock())

// Record records one outcome on the process-wide tracker.
func Record(o Outcome) {
	defaultTracker.Record(o)
}

// RequestCount returns served + denied requests within the window.
func RequestCount(window time.Duration) int {
	return defaultTracker.RequestCount(window)
}

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int {
	return defaultTracker.Count(Denied, window)
}

// FallbackRate returns (fallbacks, live+fallbacks) within the window.
func FallbackRate(window time.Duration) (fallbacks, total int) {
	return defaultTracker.FallbackRate(window)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker maintains one timestamp window per Outcome.
type Tracker struct {
	mu    sync.Mutex
	clock clockwork.Clock
	times [numOutcomes][]time.Time
}

// NewTracker returns a Tracker that reads time from clock.
func NewTracker(clock clockwork.Clock) *Tracker {
	return &Tracker{clock: clock}
}

// Record appends the current time to the outcome's window.
func (t *Tracker) Record(o Outcome) {
	if o < 0 || o >= numOutcomes {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	t.times[o] = append(t.times[o], now)
	t.pruneLocked(now)
}

// Count returns the number of o events within the window ending now.
func (t *Tracker) Count(o Outcome, window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.countLocked(o, t.clock.Now().Add(-window))
}

// RequestCount returns served + denied within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock.Now().Add(-window)
	return t.countLocked(Served, cutoff) + t.countLocked(Denied, cutoff)
}

// FallbackRate returns (fallbacks, live+fallbacks) within the window.
func (t *Tracker) FallbackRate(window time.Duration) (fallbacks, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock.Now().Add(-window)
	fallbacks = t.countLocked(Fallback, cutoff)
	return fallbacks, fallbacks + t.countLocked(Live, cutoff)
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.times {
		t.times[i] = nil
	}
}

func (t *Tracker) countLocked(o Outcome, cutoff time.Time) int {
	n := 0
	for _, ts := range t.times[o] {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than retention. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	for o := range t.times {
		times := t.times[o]
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			t.times[o] = append(times[:0], times[i:]...)
		}
	}
}
