package blob

import (
	"context"
	"time"
)

type Config struct {
	Backend string // "s3" or "memory"
	TTL     time.Duration
	S3      S3Config
}

// NewStore selects the blob backend from config.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "s3":
		return NewS3Store(ctx, cfg.S3)
	default:
		return NewMemoryStore(cfg.TTL, cfg.TTL), nil
	}
}
