package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/dataviz-dashboard/internal/category"
	"github.com/kjstillabower/dataviz-dashboard/internal/forecast"
	"github.com/kjstillabower/dataviz-dashboard/internal/lifecycle"
	"github.com/kjstillabower/dataviz-dashboard/internal/models"
	"github.com/kjstillabower/dataviz-dashboard/internal/refresh"
	"github.com/kjstillabower/dataviz-dashboard/internal/traffic"
)

var testCities = []models.City{
	{Name: "Denver, CO", Latitude: 39.7392, Longitude: -104.9903},
	{Name: "New York, NY", Latitude: 40.7128, Longitude: -74.006},
}

type fakeCategories struct {
	ds          models.CategoryDataset
	err         error
	invalidated int
}

func (f *fakeCategories) Dataset(ctx context.Context) (models.CategoryDataset, error) {
	return f.ds, f.err
}

func (f *fakeCategories) Invalidate(ctx context.Context) error {
	f.invalidated++
	return nil
}

func (f *fakeCategories) Debug() category.DebugInfo {
	return category.DebugInfo{Path: "data/pie_demo.csv", Exists: f.err == nil}
}

type fakeForecasts struct {
	res    forecast.Result
	cities []string
}

func (f *fakeForecasts) Load(ctx context.Context, city models.City) forecast.Result {
	f.cities = append(f.cities, city.Name)
	res := f.res
	res.Dataset.City = city.Name
	return res
}

func liveForecast() forecast.Result {
	ds := forecast.Demo("", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return forecast.Live(ds)
}

func fallbackForecast() forecast.Result {
	ds := forecast.Demo("", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return forecast.Fallback(ds, errors.New("upstream timeout"))
}

type testHandler struct {
	handler    *Handler
	categories *fakeCategories
	forecasts  *fakeForecasts
	refresher  *refresh.Controller
	reloads    int
}

func newTestHandler(t *testing.T, hc *HealthConfig, logger *zap.Logger) *testHandler {
	t.Helper()
	traffic.Reset()
	lifecycle.SetShuttingDown(false)
	t.Cleanup(func() {
		traffic.Reset()
		lifecycle.SetShuttingDown(false)
	})

	th := &testHandler{
		categories: &fakeCategories{ds: category.Demo()},
		forecasts:  &fakeForecasts{res: liveForecast()},
	}
	th.refresher = refresh.New(clockwork.NewFakeClock(), func(ctx context.Context) error {
		th.reloads++
		return nil
	}, logger)
	t.Cleanup(th.refresher.Stop)

	bio := models.Bio{Name: "Ada", Program: "CS", PhotoPath: filepath.Join(t.TempDir(), "missing.jpg")}
	th.handler = NewHandler(th.categories, th.forecasts, th.refresher, testCities, bio, hc, logger)
	return th
}

func (th *testHandler) serve(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter(th.handler, zap.NewNop(), RouterConfig{RequestTimeout: 5 * time.Second})
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
}

type errorEnvelope struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func TestHandler_GetPieData_Defaults(t *testing.T) {
	// Arrange
	th := newTestHandler(t, nil, zap.NewNop())

	// Act
	w := th.serve(t, "GET", "/pie/data", "")

	// Assert: normalize and sort are on by default
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	var resp pieResponse
	decodeBody(t, w, &resp)
	if resp.Title != category.DefaultTitle {
		t.Errorf("title = %q, want %q", resp.Title, category.DefaultTitle)
	}
	if resp.ValueField != category.ValueFieldShare {
		t.Errorf("valueField = %q, want Share", resp.ValueField)
	}
	if len(resp.Slices) != 5 || resp.Slices[0].Category != "Satellite" {
		t.Fatalf("slices = %+v, want 5 sorted with Satellite first", resp.Slices)
	}
	if len(resp.Categories) != 5 {
		t.Errorf("categories = %v, want all 5", resp.Categories)
	}
	if resp.Warning != "" {
		t.Errorf("warning = %q, want none", resp.Warning)
	}
}

func TestHandler_GetPieData_SelectedNormalizedSorted(t *testing.T) {
	th := newTestHandler(t, nil, zap.NewNop())

	w := th.serve(t, "GET", "/pie/data?category=Launch+Vehicle&category=Satellite&normalize=true&sort=true", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp pieResponse
	decodeBody(t, w, &resp)
	if len(resp.Slices) != 2 {
		t.Fatalf("slices = %+v, want 2", resp.Slices)
	}
	if resp.Slices[0].Category != "Satellite" || resp.Slices[1].Category != "Launch Vehicle" {
		t.Errorf("order = %s, %s; want Satellite, Launch Vehicle", resp.Slices[0].Category, resp.Slices[1].Category)
	}
	if got := resp.Slices[0].Value; got < 55.99 || got > 56.01 {
		t.Errorf("Satellite share = %v, want 56", got)
	}
}

func TestHandler_GetPieData_EmptySelectionWarns(t *testing.T) {
	th := newTestHandler(t, nil, zap.NewNop())

	w := th.serve(t, "GET", "/pie/data?category=", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp pieResponse
	decodeBody(t, w, &resp)
	if !resp.Empty {
		t.Error("empty = false, want true")
	}
	if resp.Warning != category.EmptyWarning {
		t.Errorf("warning = %q, want %q", resp.Warning, category.EmptyWarning)
	}
}

func TestHandler_GetPieData_InvalidParam(t *testing.T) {
	th := newTestHandler(t, nil, zap.NewNop())

	w := th.serve(t, "GET", "/pie/data?normalize=maybe", "")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var env errorEnvelope
	decodeBody(t, w, &env)
	if env.Error.Code != "INVALID_PARAM" {
		t.Errorf("code = %q, want INVALID_PARAM", env.Error.Code)
	}
	if env.Error.RequestID == "" {
		t.Error("requestId empty, want correlation ID")
	}
}

func TestHandler_CategoryErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"schema", &category.SchemaError{Found: []string{"foo", "bar"}}, http.StatusUnprocessableEntity, "SCHEMA_ERROR"},
		{"empty result", &category.EmptyResultError{}, http.StatusUnprocessableEntity, "EMPTY_RESULT"},
		{"io", os.ErrPermission, http.StatusInternalServerError, "CATEGORY_LOAD_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := newTestHandler(t, nil, zap.NewNop())
			th.categories.err = tt.err

			for _, path := range []string{"/pie/data", "/pie/chart"} {
				w := th.serve(t, "GET", path, "")
				if w.Code != tt.wantStatus {
					t.Errorf("%s status = %d, want %d", path, w.Code, tt.wantStatus)
				}
				var env errorEnvelope
				decodeBody(t, w, &env)
				if env.Error.Code != tt.wantCode {
					t.Errorf("%s code = %q, want %q", path, env.Error.Code, tt.wantCode)
				}
			}
		})
	}
}

func TestHandler_GetPieChart(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		wantStatus  int
		wantType    string
		wantPrefix  string
		wantErrCode string
	}{
		{"svg donut default", "", http.StatusOK, "image/svg+xml", "<svg", ""},
		{"png pie", "?hole=0&format=png", http.StatusOK, "image/png", "\x89PNG", ""},
		{"hole too big", "?hole=0.9", http.StatusBadRequest, "", "", "INVALID_PARAM"},
		{"bad format", "?format=gif", http.StatusBadRequest, "", "", "INVALID_PARAM"},
		{"nothing selected", "?category=Nope", http.StatusUnprocessableEntity, "", "", "NOTHING_SELECTED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := newTestHandler(t, nil, zap.NewNop())

			w := th.serve(t, "GET", "/pie/chart"+tt.query, "")

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantErrCode != "" {
				var env errorEnvelope
				decodeBody(t, w, &env)
				if env.Error.Code != tt.wantErrCode {
					t.Errorf("code = %q, want %q", env.Error.Code, tt.wantErrCode)
				}
				return
			}
			if got := w.Header().Get("Content-Type"); got != tt.wantType {
				t.Errorf("Content-Type = %q, want %q", got, tt.wantType)
			}
			if !strings.Contains(w.Body.String(), tt.wantPrefix) {
				t.Errorf("body does not contain %q", tt.wantPrefix)
			}
		})
	}
}

func TestHandler_PieDebugAndRefresh(t *testing.T) {
	th := newTestHandler(t, nil, zap.NewNop())

	w := th.serve(t, "GET", "/pie/debug", "")
	if w.Code != http.StatusOK {
		t.Fatalf("debug status = %d, want 200", w.Code)
	}
	var dbg pieDebugResponse
	decodeBody(t, w, &dbg)
	if dbg.Path != "data/pie_demo.csv" || dbg.Rows != 5 || !dbg.Demo {
		t.Errorf("debug = %+v, want path, 5 demo rows", dbg)
	}

	w = th.serve(t, "POST", "/pie/refresh", "")
	if w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, want 200", w.Code)
	}
	if th.categories.invalidated != 1 {
		t.Errorf("invalidated = %d, want 1", th.categories.invalidated)
	}
}

func TestHandler_GetPieDebug_ReportsLoadError(t *testing.T) {
	th := newTestHandler(t, nil, zap.NewNop())
	th.categories.err = &category.SchemaError{Found: []string{"x"}}

	w := th.serve(t, "GET", "/pie/debug", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var dbg pieDebugResponse
	decodeBody(t, w, &dbg)
	if !strings.Contains(dbg.Error, "Category/Amount") {
		t.Errorf("error = %q, want schema message", dbg.Error)
	}
}

func TestHandler_GetCities(t *testing.T) {
	th := newTestHandler(t, nil, zap.NewNop())

	w := th.serve(t, "GET", "/forecast/cities", "")

	var cities []cityView
	decodeBody(t, w, &cities)
	if len(cities) != 2 {
		t.Fatalf("cities = %+v, want 2", cities)
	}
	if cities[0].Slug != "denver-co" || cities[0].Name != "Denver, CO" {
		t.Errorf("cities[0] = %+v, want Denver, CO / denver-co", cities[0])
	}
}

func TestHandler_GetForecastData(t *testing.T) {
	tests := []struct {
		name        string
		res         forecast.Result
		path        string
		wantStatus  int
		wantDemo    bool
		wantErrCode string
	}{
		{"live by slug", liveForecast(), "/forecast/denver-co/data", http.StatusOK, false, ""},
		{"fallback by name", fallbackForecast(), "/forecast/New%20York,%20NY/data", http.StatusOK, true, ""},
		{"unknown city", liveForecast(), "/forecast/atlantis/data", http.StatusNotFound, false, "UNKNOWN_CITY"},
		{"invalid chars", liveForecast(), "/forecast/bad%3Bcity/data", http.StatusBadRequest, false, "INVALID_CITY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := newTestHandler(t, nil, zap.NewNop())
			th.forecasts.res = tt.res

			w := th.serve(t, "GET", tt.path, "")

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantErrCode != "" {
				var env errorEnvelope
				decodeBody(t, w, &env)
				if env.Error.Code != tt.wantErrCode {
					t.Errorf("code = %q, want %q", env.Error.Code, tt.wantErrCode)
				}
				return
			}
			var resp forecastResponse
			decodeBody(t, w, &resp)
			if resp.Demo != tt.wantDemo {
				t.Errorf("demo = %v, want %v", resp.Demo, tt.wantDemo)
			}
			if len(resp.Dataset.Days) != forecast.Days {
				t.Errorf("days = %d, want %d", len(resp.Dataset.Days), forecast.Days)
			}
			if tt.wantDemo && !strings.HasPrefix(resp.Warning, "API error (showing demo data): ") {
				t.Errorf("warning = %q, want API error prefix", resp.Warning)
			}
			if !tt.wantDemo && resp.Warning != "" {
				t.Errorf("warning = %q, want none", resp.Warning)
			}
		})
	}
}

func TestHandler_GetForecastChart_FallbackHeaders(t *testing.T) {
	th := newTestHandler(t, nil, zap.NewNop())
	th.forecasts.res = fallbackForecast()

	w := th.serve(t, "GET", "/forecast/denver-co/chart", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get(dataSourceHeader); got != "demo" {
		t.Errorf("%s = %q, want demo", dataSourceHeader, got)
	}
	if !strings.Contains(w.Header().Get(warningHeader), "upstream timeout") {
		t.Errorf("%s = %q, want cause", warningHeader, w.Header().Get(warningHeader))
	}
	if !strings.Contains(w.Body.String(), "<svg") {
		t.Error("body is not an SVG")
	}
}

func TestHandler_AutoRefresh(t *testing.T) {
	th := newTestHandler(t, nil, zap.NewNop())

	// Arrange: starts idle with the default interval
	w := th.serve(t, "GET", "/forecast/auto-refresh", "")
	var status refresh.Status
	decodeBody(t, w, &status)
	if status.State != refresh.StateIdle || status.IntervalSeconds != 120 {
		t.Fatalf("initial status = %+v, want idle/120", status)
	}

	// Act: enable at 60s
	w = th.serve(t, "PUT", "/forecast/auto-refresh", `{"enabled":true,"intervalSeconds":60}`)

	// Assert
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	decodeBody(t, w, &status)
	if status.State != refresh.StateRefreshing || !status.Enabled || status.IntervalSeconds != 60 {
		t.Errorf("status = %+v, want refreshing/60", status)
	}
}

func TestHandler_PutAutoRefresh_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"too short", `{"enabled":true,"intervalSeconds":10}`, "INVALID_INTERVAL"},
		{"too long", `{"enabled":true,"intervalSeconds":301}`, "INVALID_INTERVAL"},
		{"negative", `{"enabled":true,"intervalSeconds":-5}`, "INVALID_INTERVAL"},
		{"missing enabled", `{"intervalSeconds":60}`, "INVALID_BODY"},
		{"unknown field", `{"enabled":true,"every":60}`, "INVALID_BODY"},
		{"not json", `on`, "INVALID_BODY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := newTestHandler(t, nil, zap.NewNop())

			w := th.serve(t, "PUT", "/forecast/auto-refresh", tt.body)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			var env errorEnvelope
			decodeBody(t, w, &env)
			if env.Error.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", env.Error.Code, tt.wantCode)
			}
			if th.refresher.Status().Enabled {
				t.Error("controller enabled after rejected PUT")
			}
		})
	}
}

func TestHandler_PostForecastRefresh(t *testing.T) {
	th := newTestHandler(t, nil, zap.NewNop())

	w := th.serve(t, "POST", "/forecast/refresh", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if th.reloads != 1 {
		t.Errorf("reloads = %d, want 1", th.reloads)
	}
	var status refresh.Status
	decodeBody(t, w, &status)
	if status.LastRefreshed == nil {
		t.Error("lastRefreshed not set after manual refresh")
	}
}

func TestHandler_GetBio_PhotoHint(t *testing.T) {
	th := newTestHandler(t, nil, zap.NewNop())

	w := th.serve(t, "GET", "/bio", "")

	var bio models.Bio
	decodeBody(t, w, &bio)
	if bio.Name != "Ada" {
		t.Errorf("name = %q, want Ada", bio.Name)
	}
	if bio.PhotoAvailable || bio.PhotoHint != models.PhotoHint {
		t.Errorf("photo = %v/%q, want unavailable with hint", bio.PhotoAvailable, bio.PhotoHint)
	}
}

func TestHandler_GetHealth(t *testing.T) {
	th := newTestHandler(t, &HealthConfig{CachePing: func() error { return nil }}, zap.NewNop())

	w := th.serve(t, "GET", "/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeBody(t, w, &resp)
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if resp.Checks["cache"] != "healthy" || resp.Checks["autoRefresh"] != "idle" {
		t.Errorf("checks = %v, want cache healthy, autoRefresh idle", resp.Checks)
	}
}

func TestHandler_GetHealth_Priority(t *testing.T) {
	hc := &HealthConfig{
		OverloadWindow:       time.Minute,
		OverloadThresholdPct: 50,
		RateLimitRPS:         1, // threshold = 30 requests per minute
		DegradedWindow:       time.Minute,
		DegradedFallbackPct:  50,
	}
	tests := []struct {
		name       string
		setup      func()
		wantStatus string
		wantCode   int
	}{
		{"healthy", func() {}, "healthy", http.StatusOK},
		{"degraded", func() {
			traffic.Record(traffic.Live)
			traffic.Record(traffic.Fallback)
		}, "degraded", http.StatusServiceUnavailable},
		{"below fallback threshold", func() {
			traffic.Record(traffic.Live)
			traffic.Record(traffic.Live)
			traffic.Record(traffic.Fallback)
		}, "healthy", http.StatusOK},
		{"overloaded beats degraded", func() {
			traffic.Record(traffic.Fallback)
			for i := 0; i < 31; i++ {
				traffic.Record(traffic.Denied)
			}
		}, "overloaded", http.StatusServiceUnavailable},
		{"shutting down beats all", func() {
			for i := 0; i < 31; i++ {
				traffic.Record(traffic.Served)
			}
			lifecycle.SetShuttingDown(true)
		}, "shutting-down", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := newTestHandler(t, hc, zap.NewNop())
			tt.setup()

			w := th.serve(t, "GET", "/health", "")

			if w.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", w.Code, tt.wantCode)
			}
			var resp struct {
				Status string `json:"status"`
			}
			decodeBody(t, w, &resp)
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
		})
	}
}

func TestHandler_GetHealth_CacheUnreachable(t *testing.T) {
	th := newTestHandler(t, &HealthConfig{CachePing: func() error { return errors.New("dial tcp: refused") }}, zap.NewNop())

	w := th.serve(t, "GET", "/health", "")

	var resp struct {
		Checks map[string]string `json:"checks"`
	}
	decodeBody(t, w, &resp)
	if resp.Checks["cache"] != "unhealthy" {
		t.Errorf("cache check = %q, want unhealthy", resp.Checks["cache"])
	}
}

func TestHandler_GetHealth_LogsTransition(t *testing.T) {
	// Arrange: observer logger and a handler with a degraded threshold
	core, logs := observer.New(zap.DebugLevel)
	th := newTestHandler(t, &HealthConfig{DegradedWindow: time.Minute, DegradedFallbackPct: 50}, zap.New(core))
	traffic.Record(traffic.Live)
	traffic.Record(traffic.Live)

	// Act: first call establishes the previous status
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	th.handler.GetHealth(w, req)

	// Assert
	if w.Code != http.StatusOK {
		t.Fatalf("first GetHealth status = %d, want 200", w.Code)
	}
	if n := logs.FilterMessage("health status transition").Len(); n != 0 {
		t.Fatalf("first call should not log transition; got %d", n)
	}

	// Act: breach the fallback threshold (2/4 = 50%)
	traffic.Record(traffic.Fallback)
	traffic.Record(traffic.Fallback)
	w2 := httptest.NewRecorder()
	th.handler.GetHealth(w2, req)

	// Assert
	if w2.Code != http.StatusServiceUnavailable {
		t.Fatalf("second GetHealth status = %d, want 503", w2.Code)
	}
	entries := logs.FilterMessage("health status transition").All()
	if len(entries) != 1 {
		t.Fatalf("want 1 transition log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["previous_status"] != "healthy" || fields["current_status"] != "degraded" || fields["reason"] != "fallback_rate_breach" {
		t.Errorf("transition fields = %v", fields)
	}

	// Act: unchanged status does not log again
	th.handler.GetHealth(httptest.NewRecorder(), req)
	if n := logs.FilterMessage("health status transition").Len(); n != 1 {
		t.Errorf("transition logs = %d, want 1", n)
	}
}
