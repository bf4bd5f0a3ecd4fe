package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// MetricsFeedConfig points at an events-ingest endpoint that accepts one
// JSON row per request (Tinybird-style /v0/events).
type MetricsFeedConfig struct {
	// required fields
	BaseURL  string
	APIToken string

	Dataset         string        // target dataset name (default: cache_hits)
	UpstreamTimeout time.Duration // per-request timeout (default: 5s)

	// Custom HTTP client (for testing or special configs)
	HTTPClient *http.Client
}

func (c *MetricsFeedConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("BaseURL is required")
	}
	if c.APIToken == "" {
		return errors.New("APIToken is required")
	}
	return nil
}

func (c *MetricsFeedConfig) WithDefaults() MetricsFeedConfig {
	cfg := *c
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Dataset == "" {
		cfg.Dataset = "cache_hits"
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 5 * time.Second
	}
	return cfg
}

type metricsFeedRow struct {
	Timestamp string `json:"timestamp"`
	CacheHitRow
}

type metricsFeedClient struct {
	cfg        MetricsFeedConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewMetricsFeedClient builds the structured-metrics sink. It only ever
// receives cache-hit rows; the relay enforces that.
func NewMetricsFeedClient(cfg MetricsFeedConfig, logger *zap.Logger) (MetricsSink, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.UpstreamTimeout}
	}

	return &metricsFeedClient{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.Named("metricsfeed"),
	}, nil
}

func (c *metricsFeedClient) Send(parentCtx context.Context, row CacheHitRow) error {
	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.UpstreamTimeout)
	defer cancel()

	body, err := json.Marshal(metricsFeedRow{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		CacheHitRow: row,
	})
	if err != nil {
		return fmt.Errorf("metricsfeed: marshal row: %w", err)
	}

	q := url.Values{}
	q.Set("name", c.cfg.Dataset)
	ingestURL := c.cfg.BaseURL + "/v0/events?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ingestURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("metricsfeed: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	req.Header.Set("Content-Type", "application/x-ndjson")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("metricsfeed: send: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("metricsfeed: backend %d", resp.StatusCode)
	}

	return nil
}
