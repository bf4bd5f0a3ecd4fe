package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pixelgate-gateway/internal/blob"
	"pixelgate-gateway/internal/metrics"
	"pixelgate-gateway/pkg/logging/logging"
)

// LoggingExactCache wraps an ExactCache with logging + metrics.
type LoggingExactCache struct {
	inner ExactCache
}

// NewLoggingExactCache returns a cache that logs and records metrics.
func NewLoggingExactCache(inner ExactCache) ExactCache {
	return &LoggingExactCache{inner: inner}
}

func (c *LoggingExactCache) Lookup(ctx context.Context, key string) (*blob.Artifact, bool, error) {
	start := time.Now()
	artifact, ok, err := c.inner.Lookup(ctx, key)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	logger := logging.L(ctx)

	result := "miss"
	if err != nil {
		result = "error"
	} else if ok {
		result = "hit"
		metrics.ExactHitsTotal.Inc()
	}

	fields := []zap.Field{
		zap.String("cache_tier", "exact"),
		zap.String("cache_key", key),
		zap.String("cache_result", result), // hit | miss | error
		zap.Float64("latency_ms", latencyMs),
	}

	if err != nil {
		logger.Error("exact_cache_lookup", append(fields, zap.Error(err))...)
	} else {
		logger.Info("exact_cache_lookup", fields...)
	}

	return artifact, ok, err
}

func (c *LoggingExactCache) Populate(ctx context.Context, key string, artifact *blob.Artifact) error {
	start := time.Now()
	err := c.inner.Populate(ctx, key, artifact)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	logger := logging.L(ctx)

	fields := []zap.Field{
		zap.String("cache_tier", "exact"),
		zap.String("cache_key", key),
		zap.Int("size_bytes", len(artifact.Bytes)),
		zap.Float64("latency_ms", latencyMs),
	}

	if err != nil {
		logger.Error("exact_cache_populate", append(fields, zap.Error(err))...)
	} else {
		logger.Info("exact_cache_populate", fields...)
	}

	return err
}
