package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/dataviz-dashboard/internal/models"
	"github.com/kjstillabower/dataviz-dashboard/internal/observability"
)

// CityFetcher is implemented by the forecast loader to fill its cache for one city.
// Declared here to avoid a dependency from cache on the forecast package.
type CityFetcher interface {
	Warm(ctx context.Context, city models.City) error
}

// CacheWarmer prefetches the forecast of every preset city.
type CacheWarmer struct {
	fetcher CityFetcher
	logger  *zap.Logger
}

// NewCacheWarmer creates a CacheWarmer that uses the given fetcher and logger.
func NewCacheWarmer(fetcher CityFetcher, logger *zap.Logger) *CacheWarmer {
	return &CacheWarmer{fetcher: fetcher, logger: logger}
}

// Warm fetches every city concurrently. Returns the joined per-city errors.
func (w *CacheWarmer) Warm(ctx context.Context, cities []models.City) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Int("cities", len(cities)))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(cities))
	for _, city := range cities {
		city := city
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.fetcher.Warm(ctx, city); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", city.Name, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("cities", len(cities)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}
