package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/dataviz-dashboard/internal/forecast"
	"github.com/kjstillabower/dataviz-dashboard/internal/models"
	"github.com/kjstillabower/dataviz-dashboard/internal/observability"
	"github.com/kjstillabower/dataviz-dashboard/internal/refresh"
	"github.com/kjstillabower/dataviz-dashboard/internal/render"
	"github.com/kjstillabower/dataviz-dashboard/internal/validation"
)

const (
	dataSourceHeader = "X-Data-Source"
	warningHeader    = "X-Dashboard-Warning"
	maxBodyBytes     = 4 << 10
)

type cityView struct {
	models.City
	Slug string `json:"slug"`
}

type forecastResponse struct {
	Title string      `json:"title"`
	City  models.City `json:"city"`
	forecast.Result
	Demo    bool   `json:"demo"`
	Warning string `json:"warning,omitempty"`
}

type autoRefreshRequest struct {
	Enabled         *bool `json:"enabled"`
	IntervalSeconds int   `json:"intervalSeconds"`
}

// GetCities handles GET /forecast/cities.
func (h *Handler) GetCities(w http.ResponseWriter, r *http.Request) {
	out := make([]cityView, 0, len(h.cities))
	for _, c := range h.cities {
		out = append(out, cityView{City: c, Slug: validation.Slug(c.Name)})
	}
	writeJSON(w, http.StatusOK, out)
}

// GetForecastData handles GET /forecast/{city}/data. Upstream failures still answer 200
// with demo data and a warning.
func (h *Handler) GetForecastData(w http.ResponseWriter, r *http.Request) {
	city, ok := h.resolveCity(w, r)
	if !ok {
		return
	}
	res := h.forecasts.Load(r.Context(), city)
	writeJSON(w, http.StatusOK, forecastResponse{
		Title:   forecast.ChartTitle(city.Name),
		City:    city,
		Result:  res,
		Demo:    res.IsFallback(),
		Warning: res.Warning(),
	})
}

// GetForecastChart handles GET /forecast/{city}/chart. The data source and any fallback
// warning travel in response headers.
func (h *Handler) GetForecastChart(w http.ResponseWriter, r *http.Request) {
	format, err := render.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	city, ok := h.resolveCity(w, r)
	if !ok {
		return
	}

	res := h.forecasts.Load(r.Context(), city)
	var buf bytes.Buffer
	if err := render.Forecast(&buf, format, forecast.ChartTitle(city.Name), res.Dataset); err != nil {
		writeRenderError(w, r, err)
		return
	}
	if res.IsFallback() {
		w.Header().Set(dataSourceHeader, "demo")
		w.Header().Set(warningHeader, res.Warning())
	} else {
		w.Header().Set(dataSourceHeader, "live")
	}
	writeChart(w, format, &buf)
}

// PostForecastRefresh handles POST /forecast/refresh: drop cached forecasts and reload now.
func (h *Handler) PostForecastRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.refresher.RefreshNow(r.Context()); err != nil {
		observability.LoggerFromContext(r.Context()).Warn("manual refresh failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "REFRESH_FAILED", "Unable to refresh forecast data")
		return
	}
	writeJSON(w, http.StatusOK, h.refresher.Status())
}

// GetAutoRefresh handles GET /forecast/auto-refresh.
func (h *Handler) GetAutoRefresh(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.refresher.Status())
}

// PutAutoRefresh handles PUT /forecast/auto-refresh. intervalSeconds 0 keeps the current period.
func (h *Handler) PutAutoRefresh(w http.ResponseWriter, r *http.Request) {
	var body autoRefreshRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "body must be {\"enabled\":bool,\"intervalSeconds\":int}")
		return
	}
	if body.Enabled == nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "enabled is required")
		return
	}
	if body.IntervalSeconds < 0 {
		writeError(w, r, http.StatusBadRequest, "INVALID_INTERVAL", "intervalSeconds must not be negative")
		return
	}

	err := h.refresher.Configure(*body.Enabled, time.Duration(body.IntervalSeconds)*time.Second)
	if errors.Is(err, refresh.ErrIntervalOutOfRange) {
		writeError(w, r, http.StatusBadRequest, "INVALID_INTERVAL", err.Error())
		return
	}
	if err != nil {
		observability.LoggerFromContext(r.Context()).Error("auto-refresh configure failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "CONFIGURE_FAILED", "Unable to update auto-refresh")
		return
	}
	writeJSON(w, http.StatusOK, h.refresher.Status())
}

func (h *Handler) resolveCity(w http.ResponseWriter, r *http.Request) (models.City, bool) {
	city, err := validation.ValidateCity(mux.Vars(r)["city"], h.cities)
	switch {
	case err == nil:
		return city, true
	case errors.Is(err, validation.ErrCityUnknown):
		writeError(w, r, http.StatusNotFound, "UNKNOWN_CITY", err.Error())
	default:
		writeError(w, r, http.StatusBadRequest, "INVALID_CITY", err.Error())
	}
	return models.City{}, false
}
