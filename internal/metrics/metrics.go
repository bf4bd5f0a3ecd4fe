package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counter: how many times we served from the exact cache.
	ExactHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "exact_hits_total",
			Help: "Total number of exact cache hits.",
		},
	)

	// Counter: how many times we served from the semantic cache.
	SemanticHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "semantic_hits_total",
			Help: "Total number of semantic cache hits.",
		},
	)

	// Counter: successful origin generations (cache misses that went upstream).
	GenerationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "generations_total",
			Help: "Total number of successful origin generations.",
		},
	)

	// Counter: origin generation failures propagated to the client.
	GenerationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "generation_failures_total",
			Help: "Total number of failed origin generations.",
		},
	)

	// Histogram: similarity scores of semantic cache hits.
	SemanticSimilarity = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "semantic_similarity",
			Help:    "Similarity score distribution for semantic cache hits.",
			Buckets: []float64{0.80, 0.85, 0.90, 0.92, 0.94, 0.96, 0.98, 1.0},
		},
	)

	// Histogram: gateway HTTP latency in seconds.
	GatewayLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_latency_seconds",
			Help:    "HTTP request latency for the gateway in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"path", "method", "status_code"},
	)
)

// Register is called once in main() to register metrics.
func Register() {
	prometheus.MustRegister(
		ExactHitsTotal,
		SemanticHitsTotal,
		GenerationsTotal,
		GenerationFailuresTotal,
		SemanticSimilarity,
		GatewayLatencySeconds,
	)
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures gateway latency for each HTTP request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// capture status code
		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		duration := time.Since(start).Seconds()

		GatewayLatencySeconds.
			WithLabelValues(routePattern(r), r.Method, strconv.Itoa(rec.statusCode)).
			Observe(duration)
	})
}

// routePattern collapses prompt paths so the label set stays bounded.
func routePattern(r *http.Request) string {
	path := r.URL.Path
	if len(path) > 8 && path[:8] == "/prompt/" {
		return "/prompt/*"
	}
	return path
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
