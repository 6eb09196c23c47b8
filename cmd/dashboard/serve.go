package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/dataviz-dashboard/internal/cache"
	"github.com/kjstillabower/dataviz-dashboard/internal/category"
	"github.com/kjstillabower/dataviz-dashboard/internal/circuitbreaker"
	"github.com/kjstillabower/dataviz-dashboard/internal/client"
	"github.com/kjstillabower/dataviz-dashboard/internal/config"
	"github.com/kjstillabower/dataviz-dashboard/internal/forecast"
	httphandler "github.com/kjstillabower/dataviz-dashboard/internal/http"
	"github.com/kjstillabower/dataviz-dashboard/internal/lifecycle"
	"github.com/kjstillabower/dataviz-dashboard/internal/models"
	"github.com/kjstillabower/dataviz-dashboard/internal/observability"
	"github.com/kjstillabower/dataviz-dashboard/internal/refresh"
)

const (
	breakerComponent     = "forecast_api"
	warmTimeout          = 30 * time.Second
	inFlightPollInterval = 100 * time.Millisecond
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP dashboard",
		Long: `serve starts the HTTP API. A missing config file is an error here;
the preview commands fall back to defaults instead.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

// app is the wired dashboard: everything runServe starts and stops.
type app struct {
	router     http.Handler
	loader     *forecast.Loader
	warmer     *cache.CacheWarmer
	controller *refresh.Controller
	memcached  *memcache.Client
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := observability.NewLogger()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = observability.Flush(logger) }()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	lifecycle.MarkStarted(time.Now())

	a, err := newApp(cfg, logger, clockwork.NewRealClock())
	if err != nil {
		return err
	}
	observability.RegisterWindowGauges(cfg.OverloadWindow)

	if cfg.WarmCache {
		warmCtx, warmCancel := context.WithTimeout(context.Background(), warmTimeout)
		if err := a.warmer.Warm(warmCtx, cfg.Cities); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
	}
	if err := a.controller.Configure(cfg.RefreshEnabled, cfg.RefreshInterval); err != nil {
		return fmt.Errorf("auto-refresh: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		a.close(logger)
		return fmt.Errorf("server: %w", err)
	}
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	a.controller.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	if err := httphandler.WaitForInFlight(shutdownCtx, inFlightPollInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	a.close(logger)
	logger.Info("shutdown complete")
	return nil
}

// newApp builds the caches, pipelines, refresh controller and router from cfg.
func newApp(cfg *config.Config, logger *zap.Logger, clock clockwork.Clock) (*app, error) {
	a := &app{}

	var categoryStore cache.Cache[models.CategoryDataset]
	var forecastStore cache.Cache[forecast.Result]
	switch cfg.CacheBackend {
	case "memcached":
		a.memcached = cache.NewMemcachedClient(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		categoryStore = cache.NewMemcachedCache[models.CategoryDataset](a.memcached, observability.PipelineCategory)
		forecastStore = cache.NewMemcachedCache[forecast.Result](a.memcached, observability.PipelineForecast)
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		categoryStore = cache.NewInMemoryCacheWithClock[models.CategoryDataset](clock)
		forecastStore = cache.NewInMemoryCacheWithClock[forecast.Result](clock)
		logger.Info("cache backend: in_memory")
	}

	categories := category.NewService(cfg.CategoryCSV, categoryStore, cfg.CategoryCacheTTL)

	forecastClient, err := newForecastClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	loaderOpts := []forecast.Option{forecast.WithClock(clock)}
	if cfg.CoalesceTimeout > 0 {
		loaderOpts = append(loaderOpts, forecast.WithCoalescing(cfg.CoalesceTimeout))
	}
	a.loader = forecast.NewLoader(forecastClient, forecastStore, cfg.ForecastCacheTTL, loaderOpts...)
	a.warmer = cache.NewCacheWarmer(a.loader, logger)

	cities := cfg.Cities
	a.controller = refresh.New(clock, a.reloadForecasts(cities, logger), logger)

	healthConfig := &httphandler.HealthConfig{
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		DegradedWindow:       cfg.DegradedWindow,
		DegradedFallbackPct:  cfg.DegradedFallbackPct,
	}
	if a.memcached != nil {
		healthConfig.CachePing = a.memcached.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(categories, a.loader, a.controller, cities, cfg.Bio, healthConfig, logger)
	a.router = httphandler.NewRouter(handler, logger, httphandler.RouterConfig{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
	})
	return a, nil
}

func newForecastClient(cfg *config.Config, logger *zap.Logger) (*client.OpenMeteoClient, error) {
	opts := []client.Option{client.WithUserAgent(cfg.ForecastUserAgent)}
	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Cooldown:         cfg.CircuitBreakerCooldown,
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition(breakerComponent, from.String(), to.String(), int(to))
			},
		})
		observability.CircuitBreakerState.WithLabelValues(breakerComponent).Set(float64(circuitbreaker.StateClosed))
		opts = append(opts, client.WithCircuitBreaker(cb))
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("cooldown", cfg.CircuitBreakerCooldown))
	}
	c, err := client.NewOpenMeteoClient(cfg.ForecastAPIURL, cfg.ForecastAPITimeout, opts...)
	if err != nil {
		return nil, fmt.Errorf("forecast client: %w", err)
	}
	return c, nil
}

// reloadForecasts drops the forecast cache and re-warms every city. Cities that
// fell back are cached as demo data, so warm errors are logged and not
// reported as refresh failures.
func (a *app) reloadForecasts(cities []models.City, logger *zap.Logger) refresh.ReloadFunc {
	return func(ctx context.Context) error {
		if err := a.loader.Invalidate(ctx); err != nil {
			return fmt.Errorf("invalidate forecasts: %w", err)
		}
		if err := a.warmer.Warm(ctx, cities); err != nil {
			logger.Warn("forecast refresh served demo data", zap.Error(err))
		}
		return nil
	}
}

func (a *app) close(logger *zap.Logger) {
	a.controller.Stop()
	if a.memcached != nil {
		if err := a.memcached.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
}
