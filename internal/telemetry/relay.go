package telemetry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"pixelgate-gateway/internal/params"
	"pixelgate-gateway/internal/tasks"
)

// maxParamLen bounds every string field sent to the analytics backend so a
// hostile prompt cannot inflate the payload.
const maxParamLen = 100

// RequestInfo is everything the relay may report about one request. The raw
// client IP stays inside this struct; only the pseudonymous id derived from
// it ever leaves the process.
type RequestInfo struct {
	Canon      params.CanonicalRequest
	ClientIP   string
	UserAgent  string
	Referrer   string
	Similarity float64
	Bucket     string
	Status     int
}

// AnalyticsSink receives every event with full (truncated) parameters.
type AnalyticsSink interface {
	Send(ctx context.Context, clientID string, event Event, eventParams map[string]string) error
}

// CacheHitRow is one record for the structured-metrics backend.
type CacheHitRow struct {
	Event      string  `json:"event"`
	CacheType  string  `json:"cache_type"`
	Bucket     string  `json:"bucket"`
	Similarity float64 `json:"similarity,omitempty"`
	Model      string  `json:"model"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// MetricsSink receives only cache-hit events.
type MetricsSink interface {
	Send(ctx context.Context, row CacheHitRow) error
}

// Relay derives reporting payloads from request outcomes and fans them out:
// the analytics backend gets all events, the structured-metrics backend gets
// hit events only. Sends are detached best-effort tasks; a failed send is
// logged and never visible to the client. This relay is the single dispatch
// path for both backends.
type Relay struct {
	analytics   AnalyticsSink
	metricsFeed MetricsSink
	runner      *tasks.Runner
	logger      *zap.Logger
}

func NewRelay(analytics AnalyticsSink, metricsFeed MetricsSink, runner *tasks.Runner, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		analytics:   analytics,
		metricsFeed: metricsFeed,
		runner:      runner,
		logger:      logger.Named("telemetry"),
	}
}

// Dispatch schedules the outbound sends for one event. Returns immediately.
func (r *Relay) Dispatch(event Event, info RequestInfo) {
	if r.analytics != nil {
		clientID := pseudonymousID(info.ClientIP, info.UserAgent)
		eventParams := r.analyticsParams(event, info)

		r.runner.Go("analytics_"+string(event), func(ctx context.Context) error {
			return r.analytics.Send(ctx, clientID, event, eventParams)
		})
	}

	if r.metricsFeed != nil && event.IsCacheHit() {
		row := CacheHitRow{
			Event:      string(event),
			CacheType:  cacheType(event),
			Bucket:     info.Bucket,
			Similarity: info.Similarity,
			Model:      info.Canon.Model,
			Width:      info.Canon.Width,
			Height:     info.Canon.Height,
		}

		r.runner.Go("metrics_feed_"+string(event), func(ctx context.Context) error {
			return r.metricsFeed.Send(ctx, row)
		})
	}
}

func (r *Relay) analyticsParams(event Event, info RequestInfo) map[string]string {
	c := info.Canon

	p := map[string]string{
		"cache_status":    event.CacheStatus(),
		"prompt":          truncateParam(c.Prompt),
		"model":           truncateParam(c.Model),
		"width":           strconv.Itoa(c.Width),
		"height":          strconv.Itoa(c.Height),
		"seed":            strconv.Itoa(c.Seed),
		"negative_prompt": truncateParam(c.NegativePrompt),
		"quality":         truncateParam(c.Quality),
		"enhance":         strconv.FormatBool(c.Enhance),
		"nologo":          strconv.FormatBool(c.NoLogo),
		"safe":            strconv.FormatBool(c.Safe),
		"nofeed":          strconv.FormatBool(c.NoFeed),
	}

	if c.ReferenceImage != "" {
		p["image"] = truncateParam(c.ReferenceImage)
	}
	if info.Referrer != "" {
		p["referrer"] = truncateParam(info.Referrer)
	}
	if event.IsCacheHit() {
		p["cache_type"] = cacheType(event)
	}
	if event == EventSemanticHit {
		p["similarity"] = strconv.FormatFloat(info.Similarity, 'f', 4, 64)
		p["bucket"] = truncateParam(info.Bucket)
	}
	if event == EventGenerationFailed && info.Status != 0 {
		p["status"] = strconv.Itoa(info.Status)
	}

	return p
}

func cacheType(event Event) string {
	switch event {
	case EventExactHit:
		return "EXACT"
	case EventSemanticHit:
		return "SEMANTIC"
	default:
		return ""
	}
}

func truncateParam(s string) string {
	if len(s) <= maxParamLen {
		return s
	}
	return s[:maxParamLen]
}

// pseudonymousID hashes the truncated client IP plus user agent. The raw IP
// is never sent anywhere.
func pseudonymousID(ip, userAgent string) string {
	sum := sha256.Sum256([]byte(truncateIP(ip) + "|" + userAgent))
	return hex.EncodeToString(sum[:])[:16]
}

// truncateIP coarsens the address before hashing: /24 for IPv4, the first
// four groups for IPv6.
func truncateIP(ip string) string {
	if parts := strings.Split(ip, "."); len(parts) == 4 {
		return strings.Join(parts[:3], ".")
	}
	if parts := strings.Split(ip, ":"); len(parts) > 4 {
		return strings.Join(parts[:4], ":")
	}
	return ip
}
