package store

import (
	"context"
	"strings"
	"time"

	"aotcache/internal/metrics"
	"aotcache/pkg/logging"

	"go.uber.org/zap"
)

// LoggingStore wraps a Store with request-scoped logs and Prometheus
// hit/miss accounting, labeled by the backend it fronts.
type LoggingStore struct {
	inner   Store
	backend string
}

// NewLogging returns a store that logs and records metrics around inner.
func NewLogging(inner Store, backend string) Store {
	return &LoggingStore{inner: inner, backend: backend}
}

func (s *LoggingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	value, ok, err := s.inner.Get(ctx, key)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	logger := loggerFromContext(ctx)

	result := "miss"
	switch {
	case err != nil:
		result = "error"
		metrics.StoreErrorsTotal.WithLabelValues(s.backend).Inc()
	case ok:
		result = "hit"
		metrics.StoreHitsTotal.WithLabelValues(s.backend).Inc()
	default:
		metrics.StoreMissesTotal.WithLabelValues(s.backend).Inc()
	}

	fields := []zap.Field{
		zap.String("backend", s.backend),
		zap.String("cache_key", key),
		zap.String("result", result), // hit | miss | error
		zap.Float64("latency_ms", latencyMs),
	}
	fields = appendKeyParts(fields, key)

	if err != nil {
		logger.Error("artifact_store_get", append(fields, zap.Error(err))...)
	} else {
		logger.Info("artifact_store_get", fields...)
	}

	return value, ok, err
}

func (s *LoggingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := s.inner.Set(ctx, key, value, ttl)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	logger := loggerFromContext(ctx)

	fields := []zap.Field{
		zap.String("backend", s.backend),
		zap.String("cache_key", key),
		zap.Int("size_bytes", len(value)),
		zap.Float64("latency_ms", latencyMs),
	}
	fields = appendKeyParts(fields, key)

	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues(s.backend).Inc()
		logger.Error("artifact_store_set", append(fields, zap.Error(err))...)
	} else {
		logger.Info("artifact_store_set", fields...)
	}

	return err
}

func (s *LoggingStore) Delete(ctx context.Context, key string) error {
	err := s.inner.Delete(ctx, key)

	fields := []zap.Field{
		zap.String("backend", s.backend),
		zap.String("cache_key", key),
	}
	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues(s.backend).Inc()
		loggerFromContext(ctx).Error("artifact_store_delete", append(fields, zap.Error(err))...)
	} else {
		loggerFromContext(ctx).Info("artifact_store_delete", fields...)
	}

	return err
}

func (s *LoggingStore) Close() error { return s.inner.Close() }

func loggerFromContext(ctx context.Context) *zap.Logger {
	if l := logging.FromContext(ctx); l != nil {
		return l
	}
	return logging.L(ctx)
}

// A full cache key is "<prefix>" or "<prefix>|<session>|<fingerprint>".
// Session-scoped keys get their parts logged separately so operators can
// group by session without parsing.
func appendKeyParts(fields []zap.Field, key string) []zap.Field {
	parts := strings.Split(key, "|")
	if len(parts) != 3 {
		return fields
	}
	return append(fields,
		zap.String("key_prefix", parts[0]),
		zap.String("session_handle", parts[1]),
	)
}
