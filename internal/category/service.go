package category

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/dataviz-dashboard/internal/cache"
	"github.com/kjstillabower/dataviz-dashboard/internal/models"
	"github.com/kjstillabower/dataviz-dashboard/internal/observability"
)

// DebugInfo mirrors the page's diagnostics panel.
type DebugInfo struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

// Service serves the category dataset through a TTL cache keyed by file path.
type Service struct {
	path  string
	cache cache.Cache[models.CategoryDataset]
	ttl   time.Duration
	load  func(path string) (models.CategoryDataset, error)
}

// NewService returns a Service reading path through c with the given TTL.
func NewService(path string, c cache.Cache[models.CategoryDataset], ttl time.Duration) *Service {
	return &Service{path: path, cache: c, ttl: ttl, load: Load}
}

// Dataset returns the cleaned dataset, reading the file only on a cache miss.
// Load errors are returned and not cached.
func (s *Service) Dataset(ctx context.Context) (models.CategoryDataset, error) {
	logger := observability.LoggerFromContext(ctx)

	cached, ok, err := s.cache.Get(ctx, s.path)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues(observability.PipelineCategory, "get").Inc()
		logger.Warn("category cache get failed", zap.String("path", s.path), zap.Error(err))
	} else if ok {
		observability.CacheHitsTotal.WithLabelValues(observability.PipelineCategory).Inc()
		logger.Debug("cache hit", zap.String("path", s.path))
		return cached, nil
	}
	observability.CacheMissesTotal.WithLabelValues(observability.PipelineCategory).Inc()

	ds, err := s.load(s.path)
	if err != nil {
		observability.CategoryLoadErrorsTotal.WithLabelValues(errorKind(err)).Inc()
		return models.CategoryDataset{}, fmt.Errorf("load categories: %w", err)
	}
	if ds.Demo {
		logger.Debug("category file absent, using demo rows", zap.String("path", s.path))
	}

	if err := s.cache.Set(ctx, s.path, ds, s.ttl); err != nil {
		observability.CacheErrorsTotal.WithLabelValues(observability.PipelineCategory, "set").Inc()
		logger.Warn("category cache set failed", zap.String("path", s.path), zap.Error(err))
	}
	return ds, nil
}

// Invalidate drops every cached dataset so the next call re-reads the file.
func (s *Service) Invalidate(ctx context.Context) error {
	observability.CacheInvalidationsTotal.WithLabelValues(observability.PipelineCategory).Inc()
	return s.cache.Invalidate(ctx)
}

// Debug reports the configured path and whether it currently exists.
func (s *Service) Debug() DebugInfo {
	_, err := os.Stat(s.path)
	return DebugInfo{Path: s.path, Exists: err == nil}
}

// errorKind returns a stable metric label for a load error.
func errorKind(err error) string {
	var schemaErr *SchemaError
	var emptyErr *EmptyResultError
	switch {
	case errors.As(err, &schemaErr):
		return "schema"
	case errors.As(err, &emptyErr):
		return "empty"
	default:
		return "io"
	}
}
