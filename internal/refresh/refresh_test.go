package refresh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reloadRecorder struct {
	calls chan struct{}
	err   error
}

func newReloadRecorder() *reloadRecorder {
	return &reloadRecorder{calls: make(chan struct{}, 16)}
}

func (r *reloadRecorder) reload(ctx context.Context) error {
	r.calls <- struct{}{}
	return r.err
}

func (r *reloadRecorder) waitCall(t *testing.T) {
	t.Helper()
	select {
	case <-r.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("reload was not called")
	}
}

func (r *reloadRecorder) assertNoCall(t *testing.T) {
	t.Helper()
	select {
	case <-r.calls:
		t.Fatal("unexpected reload")
	case <-time.After(50 * time.Millisecond):
	}
}

func blockUntilTicker(t *testing.T, clock *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
}

func TestValidateInterval(t *testing.T) {
	tests := []struct {
		interval time.Duration
		wantErr  bool
	}{
		{29 * time.Second, true},
		{30 * time.Second, false},
		{120 * time.Second, false},
		{300 * time.Second, false},
		{301 * time.Second, true},
		{-time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.interval.String(), func(t *testing.T) {
			err := ValidateInterval(tt.interval)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrIntervalOutOfRange)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestController_DefaultsIdle(t *testing.T) {
	c := New(clockwork.NewFakeClock(), newReloadRecorder().reload, nil)
	s := c.Status()
	assert.Equal(t, StateIdle, s.State)
	assert.False(t, s.Enabled)
	assert.Equal(t, 120, s.IntervalSeconds)
	assert.Nil(t, s.LastRefreshed)
}

func TestController_ReloadsEachInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := newReloadRecorder()
	c := New(clock, rec.reload, nil)
	defer c.Stop()

	require.NoError(t, c.Configure(true, 30*time.Second))
	assert.Equal(t, StateRefreshing, c.Status().State)
	blockUntilTicker(t, clock)

	clock.Advance(29 * time.Second)
	rec.assertNoCall(t)
	clock.Advance(time.Second)
	rec.waitCall(t)
	clock.Advance(30 * time.Second)
	rec.waitCall(t)

	require.Eventually(t, func() bool {
		s := c.Status()
		return s.LastRefreshed != nil && s.LastRefreshed.Equal(clock.Now())
	}, time.Second, 5*time.Millisecond)
}

func TestController_DisableCancelsPendingCycle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := newReloadRecorder()
	c := New(clock, rec.reload, nil)

	require.NoError(t, c.Configure(true, 60*time.Second))
	blockUntilTicker(t, clock)
	require.NoError(t, c.Configure(false, 0))

	assert.Equal(t, StateIdle, c.Status().State)
	assert.Equal(t, 60, c.Status().IntervalSeconds)
	clock.Advance(5 * time.Minute)
	rec.assertNoCall(t)
}

func TestController_RejectsOutOfRange(t *testing.T) {
	c := New(clockwork.NewFakeClock(), newReloadRecorder().reload, nil)
	err := c.Configure(true, 10*time.Second)
	assert.ErrorIs(t, err, ErrIntervalOutOfRange)
	assert.Equal(t, StateIdle, c.Status().State)
}

func TestController_RefreshNow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := newReloadRecorder()
	rec.err = errors.New("partial")
	c := New(clock, rec.reload, nil)

	err := c.RefreshNow(context.Background())
	assert.EqualError(t, err, "partial")
	rec.waitCall(t)
	require.NotNil(t, c.Status().LastRefreshed)
	assert.Equal(t, clock.Now(), *c.Status().LastRefreshed)
}
