package http

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/kjstillabower/dataviz-dashboard/internal/category"
	"github.com/kjstillabower/dataviz-dashboard/internal/models"
	"github.com/kjstillabower/dataviz-dashboard/internal/observability"
	"github.com/kjstillabower/dataviz-dashboard/internal/render"
	"github.com/kjstillabower/dataviz-dashboard/internal/validation"
)

type pieResponse struct {
	Title      string   `json:"title"`
	Source     string   `json:"source"`
	Demo       bool     `json:"demo"`
	Categories []string `json:"categories"`
	category.Result
	Warning string `json:"warning,omitempty"`
}

type pieDebugResponse struct {
	category.DebugInfo
	Rows  int    `json:"rows"`
	Demo  bool   `json:"demo"`
	Error string `json:"error,omitempty"`
}

// parsePieQuery reads the pie controls. Normalize and sort default to on, as on the page.
func parsePieQuery(q url.Values) (category.Options, string, error) {
	values, present := q["category"]
	opts := category.Options{Selected: validation.SelectedCategories(values, present)}

	var err error
	if opts.Normalize, err = validation.ParseBool("normalize", q.Get("normalize"), true); err != nil {
		return category.Options{}, "", err
	}
	if opts.Sort, err = validation.ParseBool("sort", q.Get("sort"), true); err != nil {
		return category.Options{}, "", err
	}
	title := strings.TrimSpace(q.Get("title"))
	if title == "" {
		title = category.DefaultTitle
	}
	return opts, title, nil
}

// GetPieData handles GET /pie/data.
func (h *Handler) GetPieData(w http.ResponseWriter, r *http.Request) {
	opts, title, err := parsePieQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	ds, ok := h.loadCategories(w, r)
	if !ok {
		return
	}

	res := category.Transform(ds, opts)
	resp := pieResponse{
		Title:      title,
		Source:     ds.Source,
		Demo:       ds.Demo,
		Categories: ds.Categories(),
		Result:     res,
	}
	if res.Empty {
		resp.Warning = category.EmptyWarning
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetPieChart handles GET /pie/chart. An empty selection is answered with 422 and the
// same warning /pie/data carries; no chart is drawn.
func (h *Handler) GetPieChart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts, title, err := parsePieQuery(q)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	hole, err := validation.ParseHole(q.Get("hole"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	format, err := render.ParseFormat(q.Get("format"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	ds, ok := h.loadCategories(w, r)
	if !ok {
		return
	}

	res := category.Transform(ds, opts)
	if res.Empty {
		writeError(w, r, http.StatusUnprocessableEntity, "NOTHING_SELECTED", category.EmptyWarning)
		return
	}
	var buf bytes.Buffer
	if err := render.Pie(&buf, format, title, res.Slices, hole); err != nil {
		writeRenderError(w, r, err)
		return
	}
	writeChart(w, format, &buf)
}

// GetPieDebug handles GET /pie/debug. Load failures are reported in the body, not as errors.
func (h *Handler) GetPieDebug(w http.ResponseWriter, r *http.Request) {
	resp := pieDebugResponse{DebugInfo: h.categories.Debug()}
	ds, err := h.categories.Dataset(r.Context())
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Rows = len(ds.Rows)
		resp.Demo = ds.Demo
	}
	writeJSON(w, http.StatusOK, resp)
}

// PostPieRefresh handles POST /pie/refresh: the next read goes back to the file.
func (h *Handler) PostPieRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.categories.Invalidate(r.Context()); err != nil {
		observability.LoggerFromContext(r.Context()).Warn("category cache invalidate failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "REFRESH_FAILED", "Unable to clear cached category data")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "pipeline": observability.PipelineCategory})
}

func (h *Handler) loadCategories(w http.ResponseWriter, r *http.Request) (models.CategoryDataset, bool) {
	ds, err := h.categories.Dataset(r.Context())
	if err != nil {
		writeCategoryError(w, r, err)
		return models.CategoryDataset{}, false
	}
	return ds, true
}

// writeCategoryError maps loader failures to 422 for bad data and 500 for everything else.
func writeCategoryError(w http.ResponseWriter, r *http.Request, err error) {
	var schemaErr *category.SchemaError
	var emptyErr *category.EmptyResultError
	switch {
	case errors.As(err, &schemaErr):
		writeError(w, r, http.StatusUnprocessableEntity, "SCHEMA_ERROR", schemaErr.Error())
	case errors.As(err, &emptyErr):
		writeError(w, r, http.StatusUnprocessableEntity, "EMPTY_RESULT", emptyErr.Error())
	default:
		observability.LoggerFromContext(r.Context()).Error("category load failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "CATEGORY_LOAD_FAILED", "Unable to read category data")
	}
}

func writeRenderError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, render.ErrNoData) {
		writeError(w, r, http.StatusUnprocessableEntity, "NO_DATA", err.Error())
		return
	}
	observability.LoggerFromContext(r.Context()).Error("chart render failed", zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, "RENDER_FAILED", "Unable to render chart")
}

func writeChart(w http.ResponseWriter, format render.Format, buf *bytes.Buffer) {
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
