//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/dataviz-dashboard/internal/cache"
	"github.com/kjstillabower/dataviz-dashboard/internal/client"
	"github.com/kjstillabower/dataviz-dashboard/internal/forecast"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIURL        string
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Open-Meteo needs no key; set SKIP_NETWORK_TESTS to skip on offline machines.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	if os.Getenv("SKIP_NETWORK_TESTS") != "" {
		t.Skip("SKIP_NETWORK_TESTS set, skipping integration test")
	}

	apiURL := os.Getenv("FORECAST_API_URL")
	if apiURL == "" {
		apiURL = "https://api.open-meteo.com/v1/forecast"
	}
	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}
	return IntegrationTestConfig{
		APIURL:        apiURL,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

// SetupForecastLoader builds a coalescing loader against the real API. Memcached is
// used when requested and reachable; otherwise the in-memory store.
func SetupForecastLoader(t *testing.T, cfg IntegrationTestConfig) *forecast.Loader {
	t.Helper()
	forecastClient, err := client.NewOpenMeteoClient(cfg.APIURL, client.DefaultTimeout)
	if err != nil {
		t.Fatalf("NewOpenMeteoClient() error = %v", err)
	}

	var store cache.Cache[forecast.Result] = cache.NewInMemoryCache[forecast.Result]()
	if cfg.CacheBackend == "memcached" {
		mc := cache.NewMemcachedClient(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err := mc.Ping(); err == nil {
			store = cache.NewMemcachedCache[forecast.Result](mc, "it-forecast")
			t.Cleanup(func() { _ = mc.Close() })
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("Memcached not available (%v), using in-memory cache", err)
		}
	}

	return forecast.NewLoader(forecastClient, store, forecast.DefaultTTL, forecast.WithCoalescing(15*time.Second))
}
