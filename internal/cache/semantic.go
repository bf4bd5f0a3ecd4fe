package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pixelgate-gateway/internal/blob"
	"pixelgate-gateway/internal/embedding"
	"pixelgate-gateway/internal/metrics"
	"pixelgate-gateway/internal/params"
	"pixelgate-gateway/internal/vectorindex"
	"pixelgate-gateway/pkg/logging/logging"
)

// SemanticResult is the outcome of a semantic lookup. Embedding is set
// whenever the provider produced a vector, hit or not, so a later Populate
// does not have to re-embed the same prompt.
type SemanticResult struct {
	Hit        bool
	Artifact   *blob.Artifact
	Similarity float64
	Bucket     string
	Threshold  float64
	Embedding  []float32
}

// SemanticCache is tier 2: nearest-neighbor search over prompt embeddings,
// confined to a bucket of non-prompt parameters. Every internal failure
// degrades to a miss; this tier can never fail a request.
type SemanticCache struct {
	embedder  embedding.Embedder
	index     vectorindex.Index
	store     blob.Store
	threshold float64
}

// NewSemanticCache builds the semantic tier. threshold is the inclusive
// minimum similarity for a hit.
func NewSemanticCache(embedder embedding.Embedder, index vectorindex.Index, store blob.Store, threshold float64) *SemanticCache {
	if threshold <= 0 {
		threshold = 0.9
	}
	return &SemanticCache{
		embedder:  embedder,
		index:     index,
		store:     store,
		threshold: threshold,
	}
}

// Threshold returns the configured similarity threshold.
func (s *SemanticCache) Threshold() float64 {
	return s.threshold
}

// Lookup runs the semantic pipeline: embed the prompt, query the top
// neighbor inside the request's bucket, and resolve the neighbor's cache key
// in the blob store when the score clears the threshold. A vector whose
// referenced blob is gone (dangling entry) is logged and treated as a miss;
// repair is not attempted inline.
func (s *SemanticCache) Lookup(ctx context.Context, canon params.CanonicalRequest, cacheKey string) SemanticResult {
	logger := logging.L(ctx)
	start := time.Now()

	bucket := BuildBucket(canon)
	result := SemanticResult{Bucket: bucket, Threshold: s.threshold}

	vector, err := s.embedder.Embed(ctx, canon.Prompt)
	if err != nil {
		logger.Warn("semantic_cache_embed_unavailable", zap.Error(err))
		return result
	}
	result.Embedding = vector

	matches, err := s.index.Query(ctx, vector, bucket, 1)
	if err != nil {
		logger.Warn("semantic_cache_query_error", zap.Error(err))
		return result
	}

	if len(matches) == 0 {
		logger.Info("semantic_cache_lookup",
			zap.String("cache_tier", "semantic"),
			zap.String("cache_result", "miss"),
			zap.String("bucket", bucket),
			zap.Duration("latency", time.Since(start)),
		)
		return result
	}

	// Only the single highest-scoring neighbor is considered.
	top := matches[0]
	result.Similarity = top.Score

	if top.Score < s.threshold {
		logger.Info("semantic_cache_lookup",
			zap.String("cache_tier", "semantic"),
			zap.String("cache_result", "below_threshold"),
			zap.String("bucket", bucket),
			zap.Float64("similarity", top.Score),
			zap.Float64("threshold", s.threshold),
		)
		return result
	}

	artifact, ok, err := s.store.Get(ctx, top.Metadata.CacheKey)
	if err != nil {
		logger.Warn("semantic_cache_blob_error",
			zap.String("resolved_key", top.Metadata.CacheKey),
			zap.Error(err),
		)
		return result
	}
	if !ok {
		// Dangling index entry: the blob was evicted underneath the vector.
		logger.Warn("semantic_cache_dangling_entry",
			zap.String("vector_id", top.ID),
			zap.String("resolved_key", top.Metadata.CacheKey),
			zap.String("bucket", bucket),
		)
		return result
	}

	metrics.SemanticHitsTotal.Inc()
	metrics.SemanticSimilarity.Observe(top.Score)

	logger.Info("semantic_cache_lookup",
		zap.String("cache_tier", "semantic"),
		zap.String("cache_result", "hit"),
		zap.String("cache_key", cacheKey),
		zap.String("resolved_key", top.Metadata.CacheKey),
		zap.String("bucket", bucket),
		zap.Float64("similarity", top.Score),
		zap.Duration("latency", time.Since(start)),
	)

	result.Hit = true
	result.Artifact = artifact
	return result
}

// Populate links an embedding to the exact-cache key that now holds the
// artifact. Runs as a detached task after a successful origin response; the
// embedding computed during Lookup is reused when available.
func (s *SemanticCache) Populate(ctx context.Context, canon params.CanonicalRequest, cacheKey string, vector []float32) error {
	if len(vector) == 0 {
		var err error
		vector, err = s.embedder.Embed(ctx, canon.Prompt)
		if err != nil {
			return err
		}
	}

	return s.index.Upsert(ctx, vectorindex.Entry{
		ID:     uuid.New().String(),
		Values: vector,
		Metadata: vectorindex.Metadata{
			CacheKey: cacheKey,
			Bucket:   BuildBucket(canon),
		},
	})
}
