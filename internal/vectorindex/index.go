package vectorindex

import "context"

// Metadata links a vector back to the exact-cache entry it was written for.
type Metadata struct {
	CacheKey string `json:"cacheKey"`
	Bucket   string `json:"bucket"`
}

// Entry is a point in the index. Entries are created only after a successful
// origin response and never mutated. The referenced blob may be evicted
// independently, leaving the entry dangling; the semantic cache detects that
// at lookup time.
type Entry struct {
	ID       string    `json:"id"`
	Values   []float32 `json:"values"`
	Metadata Metadata  `json:"metadata"`
}

// Match is one ranked query result.
type Match struct {
	ID       string   `json:"id"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// Index is the nearest-neighbor store behind the semantic cache.
// Implemented by the REST client (prod) and the in-memory cosine index
// (dev/tests).
type Index interface {
	// Query returns up to topK neighbors of vector inside bucket, ranked by
	// descending similarity. Ties keep the order the backend returned.
	Query(ctx context.Context, vector []float32, bucket string, topK int) ([]Match, error)

	// Upsert inserts an entry. Idempotent on ID.
	Upsert(ctx context.Context, entry Entry) error
}
