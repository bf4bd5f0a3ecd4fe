package blob

import "context"

// Artifact is a generated media object plus the HTTP metadata needed to
// replay it. Entries are immutable once written; they are created on the
// first successful origin response for a key and never updated.
type Artifact struct {
	Bytes       []byte
	ContentType string
	Metadata    map[string]string
}

// Store is the content-addressable blob store behind the exact cache.
// Implemented by the in-memory store (dev/tests) and the S3 store (prod).
// Eviction, if any, is the backing store's own policy.
type Store interface {
	// Get returns the artifact for key, or ok=false on a clean miss.
	Get(ctx context.Context, key string) (*Artifact, bool, error)

	// Put writes the artifact under key. Writes are idempotent: the same key
	// always carries the same bytes, so last-write-wins is safe.
	Put(ctx context.Context, key string, artifact *Artifact) error
}
