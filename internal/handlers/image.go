package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"pixelgate-gateway/internal/blob"
	"pixelgate-gateway/internal/cache"
	"pixelgate-gateway/internal/metrics"
	"pixelgate-gateway/internal/origin"
	"pixelgate-gateway/internal/params"
	"pixelgate-gateway/internal/tasks"
	"pixelgate-gateway/internal/telemetry"
	"pixelgate-gateway/pkg/logging/logging"
)

// cacheControl marks generated artifacts as immutable: the cache key pins
// every parameter, so the same URL can never yield different bytes.
const cacheControl = "public, max-age=31536000, immutable"

// ImageHandler holds dependencies for the /prompt/* endpoint.
type ImageHandler struct {
	Exact    cache.ExactCache
	Semantic *cache.SemanticCache // nil when the semantic tier is disabled
	Origin   origin.Client
	Relay    *telemetry.Relay
	Runner   *tasks.Runner
}

func NewImageHandler(exact cache.ExactCache, semantic *cache.SemanticCache, org origin.Client, relay *telemetry.Relay, runner *tasks.Runner) *ImageHandler {
	return &ImageHandler{
		Exact:    exact,
		Semantic: semantic,
		Origin:   org,
		Relay:    relay,
		Runner:   runner,
	}
}

// Generate handles GET /prompt/*: tier 1 exact lookup, tier 2 semantic
// lookup, then the origin. Exactly one terminal telemetry event is
// dispatched per request, on top of the baseline requested event.
func (h *ImageHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	canon := params.FromRequest(r)
	if canon.Prompt == "" {
		http.Error(w, "empty prompt", http.StatusBadRequest)
		return
	}

	info := telemetry.RequestInfo{
		Canon:     canon,
		ClientIP:  r.RemoteAddr,
		UserAgent: r.UserAgent(),
		Referrer:  r.Referer(),
	}
	h.Relay.Dispatch(telemetry.EventRequested, info)

	_, bypass := r.Header[http.CanonicalHeaderKey(params.BypassHeader)]
	key := cache.BuildCacheKey(canon)

	// tier 1: exact
	if !bypass {
		artifact, ok, err := h.Exact.Lookup(ctx, key)
		if err != nil {
			logger.Warn("exact lookup failed", zap.Error(err))
		}
		if ok {
			w.Header().Set("X-Cache", "HIT")
			w.Header().Set("X-Cache-Type", cache.TypeExact)
			writeArtifact(w, artifact)
			h.Relay.Dispatch(telemetry.EventExactHit, info)
			return
		}
	}

	// tier 2: semantic
	var semRes cache.SemanticResult
	if h.Semantic != nil && !bypass {
		semRes = h.Semantic.Lookup(ctx, canon, key)
		if semRes.Hit {
			w.Header().Set("X-Cache", "HIT")
			w.Header().Set("X-Cache-Type", cache.TypeSemantic)
			w.Header().Set("X-Semantic-Similarity", strconv.FormatFloat(semRes.Similarity, 'f', 4, 64))
			w.Header().Set("X-Semantic-Bucket", semRes.Bucket)
			w.Header().Set("X-Semantic-Threshold", strconv.FormatFloat(semRes.Threshold, 'f', 2, 64))
			writeArtifact(w, semRes.Artifact)
			info.Similarity = semRes.Similarity
			info.Bucket = semRes.Bucket
			h.Relay.Dispatch(telemetry.EventSemanticHit, info)
			return
		}
	}

	// both tiers missed, pay for a generation
	artifact, err := h.Origin.Generate(ctx, canon)
	if err != nil {
		metrics.GenerationFailuresTotal.Inc()
		logger.Error("origin generation failed", zap.Error(err))

		status := http.StatusBadGateway
		contentType := "application/json"
		body := []byte(`{"error":"generation_failed"}`)
		var upErr *origin.UpstreamError
		if errors.As(err, &upErr) {
			status = upErr.Status
			body = upErr.Body
			if upErr.ContentType != "" {
				contentType = upErr.ContentType
			}
		}
		info.Status = status
		h.Relay.Dispatch(telemetry.EventGenerationFailed, info)

		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = w.Write(body)
		return
	}
	metrics.GenerationsTotal.Inc()

	w.Header().Set("X-Cache", "MISS")
	writeArtifact(w, artifact)
	h.Relay.Dispatch(telemetry.EventGenerated, info)

	if !bypass {
		embeddingVec := semRes.Embedding
		h.Runner.Go("populate-exact", func(ctx context.Context) error {
			return h.Exact.Populate(ctx, key, artifact)
		})
		if h.Semantic != nil {
			h.Runner.Go("populate-semantic", func(ctx context.Context) error {
				return h.Semantic.Populate(ctx, canon, key, embeddingVec)
			})
		}
	}
}

func writeArtifact(w http.ResponseWriter, artifact *blob.Artifact) {
	contentType := artifact.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Bytes)))
	w.Header().Set("Cache-Control", cacheControl)
	_, _ = w.Write(artifact.Bytes)
}
