package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/dataviz-dashboard/internal/category"
	"github.com/kjstillabower/dataviz-dashboard/internal/forecast"
	"github.com/kjstillabower/dataviz-dashboard/internal/lifecycle"
	"github.com/kjstillabower/dataviz-dashboard/internal/models"
	"github.com/kjstillabower/dataviz-dashboard/internal/observability"
	"github.com/kjstillabower/dataviz-dashboard/internal/refresh"
	"github.com/kjstillabower/dataviz-dashboard/internal/traffic"
)

// CategorySource is the cached category pipeline behind the pie page.
type CategorySource interface {
	Dataset(ctx context.Context) (models.CategoryDataset, error)
	Invalidate(ctx context.Context) error
	Debug() category.DebugInfo
}

// ForecastSource loads a city's forecast. It never fails; errors become demo data.
type ForecastSource interface {
	Load(ctx context.Context, city models.City) forecast.Result
}

// Refresher drives manual and scheduled forecast reloads.
type Refresher interface {
	Configure(enabled bool, interval time.Duration) error
	RefreshNow(ctx context.Context) error
	Status() refresh.Status
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int // 0 when rate limiter disabled
	DegradedWindow       time.Duration
	DegradedFallbackPct  int
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	categories   CategorySource
	forecasts    ForecastSource
	refresher    Refresher
	cities       []models.City
	bio          models.Bio
	healthConfig *HealthConfig
	logger       *zap.Logger

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(
	categories CategorySource,
	forecasts ForecastSource,
	refresher Refresher,
	cities []models.City,
	bio models.Bio,
	healthConfig *HealthConfig,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		categories:   categories,
		forecasts:    forecasts,
		refresher:    refresher,
		cities:       cities,
		bio:          bio,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// GetBio handles GET /bio.
func (h *Handler) GetBio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.bio.ResolvePhoto())
}

type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"forecastApi": "healthy"}
	if result.status == "degraded" {
		checks["forecastApi"] = "unhealthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if err := h.healthConfig.CachePing(); err != nil {
			checks["cache"] = "unhealthy"
			observability.LoggerFromContext(r.Context()).Debug("cache ping failed", zap.Error(err))
		} else {
			checks["cache"] = "healthy"
		}
	}
	if h.refresher != nil {
		checks["autoRefresh"] = string(h.refresher.Status().State)
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":        result.status,
		"service":       "dataviz-dashboard",
		"version":       "dev",
		"checks":        checks,
		"uptimeSeconds": int64(lifecycle.Uptime().Seconds()),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	hc := h.healthConfig
	if hc == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	// Overloaded: requests in the window exceed the configured share of limiter capacity.
	if hc.RateLimitRPS > 0 && hc.OverloadWindow > 0 && hc.OverloadThresholdPct > 0 {
		threshold := float64(hc.RateLimitRPS) * hc.OverloadWindow.Seconds() * float64(hc.OverloadThresholdPct) / 100
		if float64(traffic.RequestCount(hc.OverloadWindow)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	// Degraded: too many forecast loads in the window were answered with demo data.
	if hc.DegradedWindow > 0 && hc.DegradedFallbackPct > 0 {
		fallbacks, total := traffic.FallbackRate(hc.DegradedWindow)
		if total > 0 && float64(fallbacks)*100/float64(total) >= float64(hc.DegradedFallbackPct) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "fallback_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error envelope. requestId is the correlation ID, if any.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}
