package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedEmbedder is a content-addressed Redis cache in front of an Embedder:
// the same prompt text never hits the provider twice while the entry lives.
// Cache failures are logged and fall through to the inner embedder.
type CachedEmbedder struct {
	inner  Embedder
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

type CacheConfig struct {
	Prefix string
	TTL    time.Duration
}

// NewCachedEmbedder wraps inner with a Redis embedding cache.
func NewCachedEmbedder(inner Embedder, client *redis.Client, cfg CacheConfig, logger *zap.Logger) *CachedEmbedder {
	if cfg.Prefix == "" {
		cfg.Prefix = "pixelgate:emb"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CachedEmbedder{
		inner:  inner,
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
		logger: logger.Named("embcache"),
	}
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.prefix + ":" + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var vector []float32
		if err := json.Unmarshal(data, &vector); err == nil && len(vector) > 0 {
			return vector, nil
		}
		c.logger.Warn("corrupt cached embedding, re-embedding", zap.String("key", key))
	} else if err != redis.Nil {
		c.logger.Warn("embedding cache get failed", zap.Error(err))
	}

	vector, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(vector)
	if err != nil {
		return vector, nil
	}
	if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		c.logger.Warn("embedding cache set failed", zap.Error(err))
	}

	return vector, nil
}

// Ping checks the Redis connection behind the cache.
func (c *CachedEmbedder) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("embedding cache ping failed: %w", err)
	}
	return nil
}
