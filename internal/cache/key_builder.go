package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"pixelgate-gateway/internal/params"
)

// bucketFields is the JSON form of every canonical field except the prompt.
// JSON string escaping keeps the normalization injective: free-text fields
// like model or quality cannot forge a field boundary.
type bucketFields struct {
	Model          string `json:"model"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Seed           int    `json:"seed"`
	NegativePrompt string `json:"negative_prompt"`
	Quality        string `json:"quality"`
	Enhance        bool   `json:"enhance"`
	NoLogo         bool   `json:"nologo"`
	Safe           bool   `json:"safe"`
	NoFeed         bool   `json:"nofeed"`
	ReferenceImage string `json:"image"`
}

type cacheKeyFields struct {
	Prompt string `json:"prompt"`
	bucketFields
}

func newBucketFields(c params.CanonicalRequest) bucketFields {
	return bucketFields{
		Model:          c.Model,
		Width:          c.Width,
		Height:         c.Height,
		Seed:           c.Seed,
		NegativePrompt: c.NegativePrompt,
		Quality:        c.Quality,
		Enhance:        c.Enhance,
		NoLogo:         c.NoLogo,
		Safe:           c.Safe,
		NoFeed:         c.NoFeed,
		ReferenceImage: c.ReferenceImage,
	}
}

// BuildCacheKey derives the exact-cache key for a canonical request. The
// request is normalized to a stable JSON string and hashed, so identical
// canonical requests always map to the same key and distinct ones never
// share a pre-hash string.
func BuildCacheKey(c params.CanonicalRequest) string {
	normalized, _ := json.Marshal(cacheKeyFields{
		Prompt:       c.Prompt,
		bucketFields: newBucketFields(c),
	})

	sum := sha256.Sum256(normalized)
	return hex.EncodeToString(sum[:])
}

// BuildBucket derives the semantic-cache partition key from every canonical
// field except the prompt text. Matching only ever happens inside one bucket,
// so a cached 512x512 result can never satisfy a 1024x1024 request.
func BuildBucket(c params.CanonicalRequest) string {
	bucket, _ := json.Marshal(newBucketFields(c))
	return string(bucket)
}
