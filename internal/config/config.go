package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/dataviz-dashboard/internal/models"
	"github.com/kjstillabower/dataviz-dashboard/internal/refresh"
)

// ErrNotFound is returned by Load when config/{ENV_NAME}.yaml does not exist.
var ErrNotFound = errors.New("config file not found")

// Config holds dashboard configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	CategoryCSV string

	ForecastAPIURL     string
	ForecastAPITimeout time.Duration
	ForecastUserAgent  string

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerCooldown         time.Duration

	RequestTimeout time.Duration

	CacheBackend     string // "in_memory" or "memcached"
	CategoryCacheTTL time.Duration
	ForecastCacheTTL time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	CoalesceTimeout time.Duration
	RateLimitRPS    int
	RateLimitBurst  int

	ShutdownTimeout time.Duration

	OverloadWindow       time.Duration
	OverloadThresholdPct int
	DegradedWindow       time.Duration
	DegradedFallbackPct  int

	RefreshEnabled  bool
	RefreshInterval time.Duration
	WarmCache       bool

	Cities []models.City
	Bio    models.Bio
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Data struct {
		CategoryCSV string `yaml:"category_csv"`
	} `yaml:"data"`

	ForecastAPI struct {
		URL            string `yaml:"url"`
		Timeout        string `yaml:"timeout"`
		UserAgent      string `yaml:"user_agent"`
		CircuitBreaker struct {
			Enabled          bool   `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Cooldown         string `yaml:"cooldown"`
		} `yaml:"circuit_breaker"`
	} `yaml:"forecast_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend     string `yaml:"backend"`
		CategoryTTL string `yaml:"category_ttl"`
		ForecastTTL string `yaml:"forecast_ttl"`
		WarmOnStart bool   `yaml:"warm_on_start"`
		Memcached   struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		CoalesceTimeout string `yaml:"coalesce_timeout"`
		RateLimitRPS    int    `yaml:"rate_limit_rps"`
		RateLimitBurst  int    `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedFallbackPct  int    `yaml:"degraded_fallback_pct"`
	} `yaml:"lifecycle"`

	Refresh struct {
		Enabled  bool   `yaml:"enabled"`
		Interval string `yaml:"interval"`
	} `yaml:"refresh"`

	Cities []models.City `yaml:"cities"`
	Bio    *models.Bio   `yaml:"bio"`
}

// DefaultCities are the preset forecast locations.
var DefaultCities = []models.City{
	{Name: "Denver, CO", Latitude: 39.7392, Longitude: -104.9903},
	{Name: "Colorado Springs, CO", Latitude: 38.8339, Longitude: -104.8214},
	{Name: "Boulder, CO", Latitude: 40.01499, Longitude: -105.2705},
}

var defaultBio = models.Bio{
	Name:      "Your Name",
	Program:   "Your program",
	Intro:     "A short introduction.",
	FunFacts:  []string{"Edit bio in config/dev.yaml."},
	PhotoPath: "assets/photo.jpg",
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) relative
// to the working directory, then applies env overrides. Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// LoadOrDefaults is Load for the preview commands: a missing file yields
// Defaults instead of an error. Other errors are still returned.
func LoadOrDefaults() (*Config, error) {
	cfg, err := Load()
	if errors.Is(err, ErrNotFound) {
		return Defaults()
	}
	return cfg, err
}

// Defaults returns the configuration used when no file is present, with env
// overrides applied.
func Defaults() (*Config, error) {
	return build(fileConfig{})
}

// Parse builds a validated Config from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return build(fc)
}

func build(fc fileConfig) (*Config, error) {
	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.CategoryCSV = envOr("CATEGORY_CSV", fc.Data.CategoryCSV, "data/pie_demo.csv")

	cfg.ForecastAPIURL = envOr("FORECAST_API_URL", fc.ForecastAPI.URL, "https://api.open-meteo.com/v1/forecast")
	cfg.ForecastAPITimeout = parseDurationOrZero(fc.ForecastAPI.Timeout, 12*time.Second)
	cfg.ForecastUserAgent = fc.ForecastAPI.UserAgent
	if cfg.ForecastUserAgent == "" {
		cfg.ForecastUserAgent = "msudenver-dataviz-class/1.0"
	}

	cb := fc.ForecastAPI.CircuitBreaker
	cfg.CircuitBreakerEnabled = cb.Enabled
	cfg.CircuitBreakerFailureThreshold = positiveOr(cb.FailureThreshold, 5)
	cfg.CircuitBreakerSuccessThreshold = positiveOr(cb.SuccessThreshold, 2)
	cfg.CircuitBreakerCooldown = parseDuration(cb.Cooldown, 30*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)

	cfg.CacheBackend = strings.ToLower(envOr("CACHE_BACKEND", fc.Cache.Backend, "in_memory"))
	cfg.CategoryCacheTTL = parseDuration(fc.Cache.CategoryTTL, 5*time.Second)
	cfg.ForecastCacheTTL = parseDuration(fc.Cache.ForecastTTL, 600*time.Second)
	cfg.WarmCache = fc.Cache.WarmOnStart
	cfg.MemcachedAddrs = envOr("MEMCACHED_ADDRS", fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = positiveOr(fc.Cache.Memcached.MaxIdleConns, 2)

	cfg.CoalesceTimeout = parseDurationOrZero(fc.Reliability.CoalesceTimeout, 15*time.Second)
	cfg.RateLimitRPS = positiveOr(fc.Reliability.RateLimitRPS, 20)
	cfg.RateLimitBurst = positiveOr(fc.Reliability.RateLimitBurst, 40)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = positiveOr(fc.Lifecycle.OverloadThresholdPct, 80)
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 5*time.Minute)
	cfg.DegradedFallbackPct = positiveOr(fc.Lifecycle.DegradedFallbackPct, 50)

	cfg.RefreshEnabled = fc.Refresh.Enabled
	cfg.RefreshInterval = parseDurationOrZero(fc.Refresh.Interval, refresh.DefaultInterval)

	cfg.Cities = fc.Cities
	if len(cfg.Cities) == 0 {
		cfg.Cities = append([]models.City(nil), DefaultCities...)
	}
	cfg.Bio = defaultBio
	if fc.Bio != nil {
		cfg.Bio = *fc.Bio
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envOr returns the trimmed env value, else the file value, else def.
func envOr(key, fileVal, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	if v := strings.TrimSpace(fileVal); v != "" {
		return v
	}
	return def
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. RequestTimeout is raised above the
// forecast timeout so a slow upstream still ends in a fallback, not a 503.
func validate(cfg *Config) error {
	if cfg.ForecastAPITimeout <= 0 {
		return fmt.Errorf("forecast_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.ForecastAPITimeout {
		cfg.RequestTimeout = cfg.ForecastAPITimeout + 3*time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if err := refresh.ValidateInterval(cfg.RefreshInterval); err != nil {
		return fmt.Errorf("refresh.interval: %w", err)
	}
	if cfg.CoalesceTimeout < 0 {
		return fmt.Errorf("reliability.coalesce_timeout must not be negative")
	}
	for _, c := range cfg.Cities {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("city name is required")
		}
		if c.Latitude < -90 || c.Latitude > 90 || c.Longitude < -180 || c.Longitude > 180 {
			return fmt.Errorf("city %q: coordinates out of range", c.Name)
		}
	}
	return nil
}
