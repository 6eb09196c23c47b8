package traffic

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// TestRequestCount_Empty verifies that RequestCount returns 0 when nothing
// has been recorded within the time window.
func TestRequestCount_Empty(t *testing.T) {
	Reset()
	if n := RequestCount(time.Minute); n != 0 {
		t.Errorf("RequestCount() = %d, want 0", n)
	}
}

// TestRequestCount_ServedAndDenied verifies that RequestCount sums served and
// denied requests but ignores forecast outcomes.
func TestRequestCount_ServedAndDenied(t *testing.T) {
	Reset()
	Record(Served)
	Record(Served)
	Record(Denied)
	Record(Live)
	if n := RequestCount(time.Minute); n != 3 {
		t.Errorf("RequestCount() = %d, want 3", n)
	}
	if n := DenialCount(time.Minute); n != 1 {
		t.Errorf("DenialCount() = %d, want 1", n)
	}
}

// TestFallbackRate verifies the fallback share is computed over forecast
// outcomes only.
func TestFallbackRate(t *testing.T) {
	Reset()
	Record(Live)
	Record(Live)
	Record(Fallback)
	Record(Served)
	fallbacks, total := FallbackRate(time.Minute)
	if fallbacks != 1 || total != 3 {
		t.Errorf("FallbackRate() = (%d, %d), want (1, 3)", fallbacks, total)
	}
}

// TestTracker_WindowAndPrune verifies that events age out of the window and
// are pruned after the retention period.
func TestTracker_WindowAndPrune(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(clock)

	tr.Record(Fallback)
	clock.Advance(2 * time.Minute)
	tr.Record(Fallback)

	if n := tr.Count(Fallback, time.Minute); n != 1 {
		t.Errorf("Count(1m) = %d, want 1", n)
	}
	if n := tr.Count(Fallback, 5*time.Minute); n != 2 {
		t.Errorf("Count(5m) = %d, want 2", n)
	}

	clock.Advance(retention)
	tr.Record(Live)
	if n := tr.Count(Fallback, time.Hour); n != 0 {
		t.Errorf("Count(1h) after retention = %d, want 0", n)
	}
}

func TestTracker_IgnoresUnknownOutcome(t *testing.T) {
	tr := NewTracker(clockwork.NewFakeClock())
	tr.Record(Outcome(42))
	tr.Record(Outcome(-1))
	if n := tr.RequestCount(time.Minute); n != 0 {
		t.Errorf("RequestCount() = %d, want 0", n)
	}
}
