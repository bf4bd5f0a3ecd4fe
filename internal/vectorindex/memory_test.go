package vectorindex

import (
	"context"
	"math"
	"testing"
)

func TestMemoryIndexTopOneRanking(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	entries := []Entry{
		{ID: "far", Values: []float32{0, 1, 0}, Metadata: Metadata{CacheKey: "k-far", Bucket: "b"}},
		{ID: "near", Values: []float32{1, 0.1, 0}, Metadata: Metadata{CacheKey: "k-near", Bucket: "b"}},
	}
	for _, e := range entries {
		if err := idx.Upsert(ctx, e); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	matches, err := idx.Query(ctx, []float32{1, 0, 0}, "b", 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one match, got %d", len(matches))
	}
	if matches[0].ID != "near" || matches[0].Metadata.CacheKey != "k-near" {
		t.Fatalf("wrong top match: %#v", matches[0])
	}
}

func TestMemoryIndexBucketPartition(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	if err := idx.Upsert(ctx, Entry{
		ID:       "only-512",
		Values:   []float32{1, 0},
		Metadata: Metadata{CacheKey: "k", Bucket: "flux_512x512"},
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	matches, err := idx.Query(ctx, []float32{1, 0}, "flux_1024x1024", 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("identical vector must not match across buckets: %#v", matches)
	}
}

func TestMemoryIndexTieBreakFirstInserted(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	// Same vector twice: identical scores, first inserted must win.
	_ = idx.Upsert(ctx, Entry{ID: "first", Values: []float32{1, 1}, Metadata: Metadata{CacheKey: "k1", Bucket: "b"}})
	_ = idx.Upsert(ctx, Entry{ID: "second", Values: []float32{1, 1}, Metadata: Metadata{CacheKey: "k2", Bucket: "b"}})

	matches, _ := idx.Query(ctx, []float32{1, 1}, "b", 1)
	if len(matches) != 1 || matches[0].ID != "first" {
		t.Fatalf("tie must break to first inserted: %#v", matches)
	}
}

func TestMemoryIndexUpsertIdempotentOnID(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	e := Entry{ID: "x", Values: []float32{1, 0}, Metadata: Metadata{CacheKey: "k", Bucket: "b"}}
	_ = idx.Upsert(ctx, e)
	_ = idx.Upsert(ctx, e)

	if idx.Len("b") != 1 {
		t.Fatalf("duplicate ID must not grow the bucket, got %d entries", idx.Len("b"))
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("identical vectors should score 1, got %f", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-9 {
		t.Fatalf("orthogonal vectors should score 0, got %f", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{1}); got != 0 {
		t.Fatalf("mismatched lengths should score 0, got %f", got)
	}
}
