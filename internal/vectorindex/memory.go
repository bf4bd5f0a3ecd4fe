package vectorindex

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryIndex is an in-process cosine-similarity index for development and
// tests. Entries are bucket-partitioned; sorting is stable, so equal scores
// keep insertion order (first inserted wins a tie).
type MemoryIndex struct {
	mu      sync.RWMutex
	buckets map[string][]Entry
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		buckets: make(map[string][]Entry),
	}
}

func (m *MemoryIndex) Query(_ context.Context, vector []float32, bucket string, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 1
	}

	m.mu.RLock()
	entries := m.buckets[bucket]
	matches := make([]Match, 0, len(entries))
	for _, e := range entries {
		matches = append(matches, Match{
			ID:       e.ID,
			Score:    cosineSimilarity(vector, e.Values),
			Metadata: e.Metadata,
		})
	}
	m.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *MemoryIndex) Upsert(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := entry.Metadata.Bucket
	for i, e := range m.buckets[bucket] {
		if e.ID == entry.ID {
			m.buckets[bucket][i] = entry
			return nil
		}
	}
	m.buckets[bucket] = append(m.buckets[bucket], entry)
	return nil
}

// Len returns the number of entries in a bucket.
func (m *MemoryIndex) Len(bucket string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.buckets[bucket])
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
