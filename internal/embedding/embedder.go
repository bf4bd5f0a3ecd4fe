package embedding

import "context"

// Embedder turns prompt text into a fixed-length vector. A nil error with a
// non-empty vector is the only success case; callers must treat any failure
// as "semantic caching unavailable for this request", never as a request
// failure.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
