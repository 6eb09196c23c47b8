package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/dataviz-dashboard/internal/config"
	"github.com/kjstillabower/dataviz-dashboard/internal/traffic"
	"github.com/kjstillabower/dataviz-dashboard/internal/validation"
)

func init() {
	pterm.DisableStyling()
}

// isolate points the config at a missing CSV and a failing forecast API so the
// commands run on demo data without touching the network.
func isolate(t *testing.T) {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(upstream.Close)
	t.Setenv("ENV_NAME", "cli-test-none")
	t.Setenv("CATEGORY_CSV", filepath.Join(t.TempDir(), "absent.csv"))
	t.Setenv("FORECAST_API_URL", upstream.URL)
	t.Setenv("CACHE_BACKEND", "in_memory")
	t.Setenv("LOG_LEVEL", "ERROR")
	traffic.Reset()
	t.Cleanup(traffic.Reset)
}

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err = root.Execute()
	return out.String(), errOut.String(), err
}

func TestPieCmd_SelectedNormalizedSorted(t *testing.T) {
	isolate(t)

	out, _, err := execute(t, "pie", "--category", "Launch Vehicle,Satellite")

	require.NoError(t, err)
	assert.Contains(t, out, "showing demo data")
	assert.Contains(t, out, "56.0%")
	assert.Contains(t, out, "44.0%")
	assert.NotContains(t, out, "Ground Systems")
	assert.Less(t, strings.Index(out, "Satellite"), strings.Index(out, "Launch Vehicle"))
}

func TestPieCmd_NothingSelected(t *testing.T) {
	isolate(t)

	out, _, err := execute(t, "pie", "--category", "Nope")

	require.NoError(t, err)
	assert.Contains(t, out, "No categories selected or data is empty.")
}

func TestPieCmd_WritesChart(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "pie.png")

	_, _, err := execute(t, "pie", "--hole", "0", "--out", path)

	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")), "want PNG file")
}

func TestPieCmd_InvalidInput(t *testing.T) {
	isolate(t)

	_, _, err := execute(t, "pie", "--hole", "0.9")
	assert.ErrorIs(t, err, validation.ErrInvalidParam)

	_, _, err = execute(t, "pie", "--out", filepath.Join(t.TempDir(), "pie.gif"))
	assert.ErrorIs(t, err, validation.ErrInvalidParam)
}

func TestForecastCmd_FallsBackToDemo(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "denver.svg")

	out, errOut, err := execute(t, "forecast", "--city", "denver-co", "--out", path)

	require.NoError(t, err)
	assert.Contains(t, errOut, "API error (showing demo data): ")
	assert.Contains(t, out, "Denver, CO (demo data)")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<svg")
}

func TestForecastCmd_UnknownCity(t *testing.T) {
	isolate(t)

	_, _, err := execute(t, "forecast", "--city", "Atlantis")

	assert.ErrorIs(t, err, validation.ErrCityUnknown)
}

func TestBioCmd(t *testing.T) {
	isolate(t)

	out, _, err := execute(t, "bio")

	require.NoError(t, err)
	assert.Contains(t, out, "Your Name")
	assert.Contains(t, out, "Add a photo")
}

func TestServeCmd_MissingConfig(t *testing.T) {
	isolate(t)

	_, _, err := execute(t, "serve")

	assert.ErrorIs(t, err, config.ErrNotFound)
}

func TestNewApp_RoutesWired(t *testing.T) {
	isolate(t)
	cfg, err := config.LoadOrDefaults()
	require.NoError(t, err)

	a, err := newApp(cfg, zap.NewNop(), clockwork.NewFakeClock())
	require.NoError(t, err)
	t.Cleanup(func() { a.close(zap.NewNop()) })

	serve := func(method, path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		a.router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
		return w
	}

	assert.Equal(t, http.StatusOK, serve("GET", "/health").Code)
	assert.Equal(t, http.StatusOK, serve("GET", "/bio").Code)
	assert.Equal(t, http.StatusOK, serve("GET", "/pie/data").Code)

	w := serve("GET", "/forecast/boulder-co/data")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Demo    bool   `json:"demo"`
		Warning string `json:"warning"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Demo)
	assert.Contains(t, body.Warning, "API error")

	w = serve("POST", "/forecast/refresh")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "lastRefreshed")
}

func TestNewApp_RefreshLogsWarmFailures(t *testing.T) {
	// Arrange: upstream always fails, so every city warms as demo data
	isolate(t)
	cfg, err := config.LoadOrDefaults()
	require.NoError(t, err)
	core, logs := observer.New(zapcore.WarnLevel)
	logger := zap.New(core)

	a, err := newApp(cfg, logger, clockwork.NewFakeClock())
	require.NoError(t, err)
	t.Cleanup(func() { a.close(zap.NewNop()) })

	// Act
	err = a.controller.RefreshNow(context.Background())

	// Assert: demo fallbacks are not a refresh failure but stay visible
	require.NoError(t, err)
	entries := logs.FilterMessage("forecast refresh served demo data").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], "cache warming")
}
