package forecast

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/dataviz-dashboard/internal/cache"
	"github.com/kjstillabower/dataviz-dashboard/internal/client"
	"github.com/kjstillabower/dataviz-dashboard/internal/models"
	"github.com/kjstillabower/dataviz-dashboard/internal/observability"
	"github.com/kjstillabower/dataviz-dashboard/internal/traffic"
)

// DefaultTTL is how long a forecast, live or demo, stays cached.
const DefaultTTL = 600 * time.Second

// Loader fetches a city's forecast through a TTL cache keyed by request URL.
// Any fetch failure is served as demo data; Load never fails.
type Loader struct {
	client    client.ForecastClient
	cache     cache.Cache[Result]
	ttl       time.Duration
	clock     clockwork.Clock
	coalescer *requestCoalescer[Result]
}

// Option configures a Loader.
type Option func(*Loader)

// WithClock sets the clock used for demo dates and fetch timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(l *Loader) { l.clock = clock }
}

// WithCoalescing collapses concurrent misses for the same city. Waiters give
// up after timeout and are served demo data.
func WithCoalescing(timeout time.Duration) Option {
	return func(l *Loader) {
		if timeout > 0 {
			l.coalescer = newRequestCoalescer[Result](timeout)
		}
	}
}

// NewLoader creates a Loader over c and store. A non-positive ttl means DefaultTTL.
func NewLoader(c client.ForecastClient, store cache.Cache[Result], ttl time.Duration, opts ...Option) *Loader {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	l := &Loader{client: c, cache: store, ttl: ttl, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the cached result for city or fetches it. Fallback results are
// cached for the same TTL as live ones.
func (l *Loader) Load(ctx context.Context, city models.City) Result {
	logger := observability.LoggerFromContext(ctx)
	key := l.client.URL(city.Latitude, city.Longitude)

	cached, ok, err := l.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues(observability.PipelineForecast, "get").Inc()
		logger.Warn("forecast cache get failed", zap.String("city", city.Name), zap.Error(err))
	} else if ok {
		observability.CacheHitsTotal.WithLabelValues(observability.PipelineForecast).Inc()
		logger.Debug("cache hit", zap.String("city", city.Name))
		return cached
	}
	observability.CacheMissesTotal.WithLabelValues(observability.PipelineForecast).Inc()

	if l.coalescer == nil {
		return l.fetch(ctx, key, city)
	}
	fetchCtx := context.WithoutCancel(ctx)
	res, shared, err := l.coalescer.GetOrDo(ctx, key, func() (Result, error) {
		return l.fetch(fetchCtx, key, city), nil
	})
	if err != nil {
		logger.Warn("gave up waiting for forecast", zap.String("city", city.Name), zap.Error(err))
		return Fallback(Demo(city.Name, l.clock.Now()), err)
	}
	if shared {
		observability.RequestCoalescingHitsTotal.Inc()
	}
	return res
}

func (l *Loader) fetch(ctx context.Context, key string, city models.City) Result {
	logger := observability.LoggerFromContext(ctx)
	logger.Debug("cache miss, fetching upstream", zap.String("city", city.Name))

	res := l.fetchLive(ctx, city)
	if res.IsFallback() {
		traffic.Record(traffic.Fallback)
		observability.ForecastFallbacksTotal.WithLabelValues(string(res.Err.Category)).Inc()
		logger.Warn("forecast fetch failed, serving demo data",
			zap.String("city", city.Name),
			zap.String("category", string(res.Err.Category)),
			zap.Error(res.Err))
	} else {
		traffic.Record(traffic.Live)
	}

	if err := l.cache.Set(ctx, key, res, l.ttl); err != nil {
		observability.CacheErrorsTotal.WithLabelValues(observability.PipelineForecast, "set").Inc()
		logger.Warn("forecast cache set failed", zap.String("city", city.Name), zap.Error(err))
	}
	return res
}

func (l *Loader) fetchLive(ctx context.Context, city models.City) Result {
	payload, err := l.client.DailyForecast(ctx, city.Latitude, city.Longitude)
	if err == nil {
		var ds models.ForecastDataset
		ds, err = fromPayload(city.Name, payload, l.clock.Now())
		if err == nil {
			return Live(ds)
		}
	}
	return Fallback(Demo(city.Name, l.clock.Now()), err)
}

// Warm loads city into the cache. The error reports a fallback; the demo data
// is cached either way.
func (l *Loader) Warm(ctx context.Context, city models.City) error {
	if res := l.Load(ctx, city); res.Err != nil {
		return res.Err
	}
	return nil
}

// Invalidate drops every cached forecast.
func (l *Loader) Invalidate(ctx context.Context) error {
	observability.CacheInvalidationsTotal.WithLabelValues(observability.PipelineForecast).Inc()
	return l.cache.Invalidate(ctx)
}
