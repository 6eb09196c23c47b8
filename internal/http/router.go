package http

import (
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/dataviz-dashboard/internal/observability"
)

// RouterConfig carries the transport limits applied to the data routes.
// A nil Limiter disables rate limiting; a zero RequestTimeout disables the deadline.
type RouterConfig struct {
	Limiter        *rate.Limiter
	RequestTimeout time.Duration
}

// NewRouter registers every dashboard route on a fresh router. /health, /metrics and /bio
// bypass the limiter so probes keep working under load.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	router.HandleFunc("/bio", h.GetBio).Methods("GET")

	pieRouter := router.PathPrefix("/pie").Subrouter()
	useDataMiddleware(pieRouter, cfg)
	pieRouter.HandleFunc("/data", h.GetPieData).Methods("GET")
	pieRouter.HandleFunc("/chart", h.GetPieChart).Methods("GET")
	pieRouter.HandleFunc("/debug", h.GetPieDebug).Methods("GET")
	pieRouter.HandleFunc("/refresh", h.PostPieRefresh).Methods("POST")

	forecastRouter := router.PathPrefix("/forecast").Subrouter()
	useDataMiddleware(forecastRouter, cfg)
	forecastRouter.HandleFunc("/cities", h.GetCities).Methods("GET")
	forecastRouter.HandleFunc("/refresh", h.PostForecastRefresh).Methods("POST")
	forecastRouter.HandleFunc("/auto-refresh", h.GetAutoRefresh).Methods("GET")
	forecastRouter.HandleFunc("/auto-refresh", h.PutAutoRefresh).Methods("PUT")
	forecastRouter.HandleFunc("/{city}/data", h.GetForecastData).Methods("GET")
	forecastRouter.HandleFunc("/{city}/chart", h.GetForecastChart).Methods("GET")

	return router
}

func useDataMiddleware(r *mux.Router, cfg RouterConfig) {
	r.Use(RateLimitMiddleware(cfg.Limiter))
	if cfg.RequestTimeout > 0 {
		r.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
}
