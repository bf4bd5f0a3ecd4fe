package cache

import (
	"context"

	"pixelgate-gateway/internal/blob"
)

// Cache type tags set on hit responses.
const (
	TypeExact    = "EXACT"
	TypeSemantic = "SEMANTIC"
)

// ExactCache is tier 1: a deterministic key into the blob store. It hits only
// on byte-identical canonical requests and always runs before the semantic
// tier, which is more expensive.
type ExactCache interface {
	// Lookup fetches the artifact for key. Store errors are returned so the
	// caller can log them, but they are always treated as a miss.
	Lookup(ctx context.Context, key string) (*blob.Artifact, bool, error)

	// Populate writes the artifact under key. Invoked as a detached task
	// after a successful origin response; idempotent.
	Populate(ctx context.Context, key string, artifact *blob.Artifact) error
}

type exactCache struct {
	store blob.Store
}

// NewExactCache builds the exact tier over a blob store.
func NewExactCache(store blob.Store) ExactCache {
	return &exactCache{store: store}
}

func (c *exactCache) Lookup(ctx context.Context, key string) (*blob.Artifact, bool, error) {
	return c.store.Get(ctx, key)
}

func (c *exactCache) Populate(ctx context.Context, key string, artifact *blob.Artifact) error {
	return c.store.Put(ctx, key, artifact)
}
