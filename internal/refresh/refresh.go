// Package refresh runs the forecast auto-refresh cycle on a background ticker.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/dataviz-dashboard/internal/observability"
)

const (
	MinInterval     = 30 * time.Second
	MaxInterval     = 300 * time.Second
	DefaultInterval = 120 * time.Second
)

var ErrIntervalOutOfRange = errors.New("refresh interval out of range")

type State string

const (
	StateIdle       State = "idle"
	StateRefreshing State = "refreshing"
)

// ReloadFunc drops cached data and fetches it again.
type ReloadFunc func(ctx context.Context) error

// Status is the controller state reported to the page.
type Status struct {
	State           State      `json:"state"`
	Enabled         bool       `json:"enabled"`
	IntervalSeconds int        `json:"intervalSeconds"`
	LastRefreshed   *time.Time `json:"lastRefreshed,omitempty"`
}

// ValidateInterval reports whether d is an allowed refresh period.
func ValidateInterval(d time.Duration) error {
	if d < MinInterval || d > MaxInterval {
		return fmt.Errorf("%w: %s not in [%s, %s]", ErrIntervalOutOfRange, d, MinInterval, MaxInterval)
	}
	return nil
}

// Controller reloads on a fixed period while enabled. Unlike a blocking
// sleep it never holds up a request; Configure swaps the schedule at once.
type Controller struct {
	clock  clockwork.Clock
	reload ReloadFunc
	logger *zap.Logger

	configMu sync.Mutex // serializes Configure and Stop

	mu            sync.Mutex
	enabled       bool
	interval      time.Duration
	lastRefreshed time.Time
	cancel        context.CancelFunc
	done          chan struct{}
}

// New returns an idle controller with the default interval.
func New(clock clockwork.Clock, reload ReloadFunc, logger *zap.Logger) *Controller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{clock: clock, reload: reload, logger: logger, interval: DefaultInterval}
}

// Configure enables or disables the cycle. A zero interval keeps the current
// one. Any pending cycle is cancelled; when enabled the next reload happens
// one full interval from now.
func (c *Controller) Configure(enabled bool, interval time.Duration) error {
	if interval != 0 {
		if err := ValidateInterval(interval); err != nil {
			return err
		}
	}

	c.configMu.Lock()
	defer c.configMu.Unlock()
	c.stopLoop()

	c.mu.Lock()
	c.enabled = enabled
	if interval != 0 {
		c.interval = interval
	}
	interval = c.interval
	if enabled {
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		c.done = make(chan struct{})
		go c.run(ctx, interval, c.done)
	}
	c.mu.Unlock()

	c.logger.Info("auto-refresh configured", zap.Bool("enabled", enabled), zap.Duration("interval", interval))
	return nil
}

// RefreshNow runs one reload immediately, as the manual refresh button does.
func (c *Controller) RefreshNow(ctx context.Context) error {
	return c.tick(ctx)
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Status{State: StateIdle, Enabled: c.enabled, IntervalSeconds: int(c.interval / time.Second)}
	if c.enabled {
		s.State = StateRefreshing
	}
	if !c.lastRefreshed.IsZero() {
		t := c.lastRefreshed
		s.LastRefreshed = &t
	}
	return s
}

// Stop cancels the cycle and waits for an in-progress reload to finish.
func (c *Controller) Stop() {
	c.configMu.Lock()
	defer c.configMu.Unlock()
	c.stopLoop()
	c.mu.Lock()
	c.enabled = false
	c.mu.Unlock()
}

// stopLoop must be called with configMu held and mu not held.
func (c *Controller) stopLoop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *Controller) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := c.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := c.tick(ctx); err != nil {
				c.logger.Warn("auto-refresh reload failed", zap.Error(err))
			}
		}
	}
}

func (c *Controller) tick(ctx context.Context) error {
	err := c.reload(ctx)
	now := c.clock.Now()
	c.mu.Lock()
	c.lastRefreshed = now
	c.mu.Unlock()
	observability.RefreshCyclesTotal.Inc()
	observability.RefreshLastRunTimestamp.Set(float64(now.Unix()))
	c.logger.Debug("forecast refreshed", zap.Time("at", now))
	return err
}
