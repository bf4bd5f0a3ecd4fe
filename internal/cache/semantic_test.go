package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"pixelgate-gateway/internal/blob"
	"pixelgate-gateway/internal/vectorindex"
)

// stubEmbedder maps prompts to fixed vectors.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	v, ok := s.vectors[text]
	if !ok {
		return nil, errors.New("no vector for prompt")
	}
	return v, nil
}

func newSemanticFixture(t *testing.T, threshold float64) (*SemanticCache, *stubEmbedder, *vectorindex.MemoryIndex, *blob.MemoryStore) {
	t.Helper()

	store := blob.NewMemoryStore(time.Minute, time.Minute)
	t.Cleanup(func() { store.Close() })

	idx := vectorindex.NewMemoryIndex()
	emb := &stubEmbedder{vectors: map[string][]float32{}}

	return NewSemanticCache(emb, idx, store, threshold), emb, idx, store
}

func TestSemanticLookupHitAtThreshold(t *testing.T) {
	sem, emb, idx, store := newSemanticFixture(t, 1.0)
	ctx := context.Background()

	canon := canonical("sunset", map[string]string{"width": "512", "height": "512", "seed": "7"})
	emb.vectors["sunset"] = []float32{1, 0}

	cachedKey := "stored-key"
	_ = store.Put(ctx, cachedKey, &blob.Artifact{Bytes: []byte("img"), ContentType: "image/png"})
	_ = idx.Upsert(ctx, vectorindex.Entry{
		ID:       "v1",
		Values:   []float32{1, 0}, // similarity exactly 1.0 == threshold
		Metadata: vectorindex.Metadata{CacheKey: cachedKey, Bucket: BuildBucket(canon)},
	})

	res := sem.Lookup(ctx, canon, "request-key")
	if !res.Hit {
		t.Fatalf("score equal to threshold must be a hit (inclusive bound): %#v", res)
	}
	if string(res.Artifact.Bytes) != "img" {
		t.Fatalf("wrong artifact resolved: %#v", res.Artifact)
	}
	if res.Similarity < 0.999 {
		t.Fatalf("similarity not annotated: %f", res.Similarity)
	}
	if res.Bucket != BuildBucket(canon) {
		t.Fatalf("bucket not annotated: %q", res.Bucket)
	}
	if len(res.Embedding) == 0 {
		t.Fatalf("embedding must be carried in the result")
	}
}

func TestSemanticLookupBelowThresholdMisses(t *testing.T) {
	sem, emb, idx, store := newSemanticFixture(t, 0.99)
	ctx := context.Background()

	canon := canonical("sunset", map[string]string{"width": "512", "height": "512"})
	emb.vectors["sunset"] = []float32{1, 0}

	_ = store.Put(ctx, "k", &blob.Artifact{Bytes: []byte("img")})
	_ = idx.Upsert(ctx, vectorindex.Entry{
		ID:       "v1",
		Values:   []float32{1, 0.5}, // similarity ~0.89, below 0.99
		Metadata: vectorindex.Metadata{CacheKey: "k", Bucket: BuildBucket(canon)},
	})

	res := sem.Lookup(ctx, canon, "rk")
	if res.Hit {
		t.Fatalf("score below threshold must miss: %#v", res)
	}
	if len(res.Embedding) == 0 {
		t.Fatalf("embedding should still be returned on miss for later populate")
	}
}

func TestSemanticLookupBucketIsolation(t *testing.T) {
	sem, emb, idx, store := newSemanticFixture(t, 0.5)
	ctx := context.Background()

	small := canonical("a cat", map[string]string{"width": "512", "height": "512"})
	large := canonical("a cat", map[string]string{"width": "1024", "height": "1024"})
	emb.vectors["a cat"] = []float32{1, 0}

	_ = store.Put(ctx, "k-small", &blob.Artifact{Bytes: []byte("img")})
	_ = idx.Upsert(ctx, vectorindex.Entry{
		ID:       "v1",
		Values:   []float32{1, 0},
		Metadata: vectorindex.Metadata{CacheKey: "k-small", Bucket: BuildBucket(small)},
	})

	if res := sem.Lookup(ctx, large, "rk"); res.Hit {
		t.Fatalf("identical prompt in a different bucket must never hit")
	}
}

func TestSemanticLookupDanglingEntryFallsThrough(t *testing.T) {
	sem, emb, idx, _ := newSemanticFixture(t, 0.5)
	ctx := context.Background()

	canon := canonical("sunset", map[string]string{"width": "512", "height": "512"})
	emb.vectors["sunset"] = []float32{1, 0}

	// Vector points at a blob that no longer exists.
	_ = idx.Upsert(ctx, vectorindex.Entry{
		ID:       "v1",
		Values:   []float32{1, 0},
		Metadata: vectorindex.Metadata{CacheKey: "evicted-key", Bucket: BuildBucket(canon)},
	})

	res := sem.Lookup(ctx, canon, "rk")
	if res.Hit {
		t.Fatalf("dangling entry must be a miss, not an error or a hit")
	}
}

func TestSemanticLookupEmbedderFailureSkipsTier(t *testing.T) {
	sem, emb, _, _ := newSemanticFixture(t, 0.5)
	emb.err = errors.New("provider unavailable")

	canon := canonical("sunset", map[string]string{})
	res := sem.Lookup(context.Background(), canon, "rk")

	if res.Hit {
		t.Fatalf("embedder failure must degrade to a miss")
	}
	if len(res.Embedding) != 0 {
		t.Fatalf("no embedding should be reported when the provider failed")
	}
}

func TestSemanticPopulateReusesEmbedding(t *testing.T) {
	sem, emb, idx, _ := newSemanticFixture(t, 0.5)
	ctx := context.Background()

	canon := canonical("sunset", map[string]string{"width": "512", "height": "512"})

	if err := sem.Populate(ctx, canon, "k", []float32{1, 0}); err != nil {
		t.Fatalf("Populate: %v", err)
	}
	if emb.calls != 0 {
		t.Fatalf("populate with a vector must not re-embed")
	}
	if idx.Len(BuildBucket(canon)) != 1 {
		t.Fatalf("expected one index entry")
	}

	// Without a vector, populate embeds on its own.
	emb.vectors["sunset"] = []float32{0, 1}
	if err := sem.Populate(ctx, canon, "k2", nil); err != nil {
		t.Fatalf("Populate without vector: %v", err)
	}
	if emb.calls != 1 {
		t.Fatalf("populate without a vector must embed once, got %d calls", emb.calls)
	}
}
