package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	// required fields
	BaseURL  string
	APIToken string

	UpstreamTimeout time.Duration // per-call timeout (default: 5s)

	// Optional connection pool settings
	MaxIdleConns        int // default: 100
	MaxIdleConnsPerHost int // default: 100

	// Custom HTTP client (for testing or special configs)
	HTTPClient *http.Client
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("BaseURL is required")
	}
	if c.APIToken == "" {
		return errors.New("APIToken is required")
	}
	return nil
}

func (c *Config) WithDefaults() Config {
	cfg := *c

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 5 * time.Second
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 100
	}

	return cfg
}

type queryRequest struct {
	Vector         []float32         `json:"vector"`
	TopK           int               `json:"topK"`
	Filter         map[string]string `json:"filter,omitempty"`
	ReturnMetadata bool              `json:"returnMetadata"`
}

type queryResponse struct {
	Matches []Match `json:"matches"`
}

type upsertRequest struct {
	Vectors []Entry `json:"vectors"`
}

type httpIndex struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPIndex builds a client for a Vectorize-style REST vector index:
// POST /query with a bucket filter, POST /upsert with id/values/metadata.
// Calls enforce their own timeout and never retry; the semantic tier treats
// every failure here as a plain miss.
func NewHTTPIndex(cfg Config, logger *zap.Logger) (Index, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        cfg.MaxIdleConns,
				MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
				IdleConnTimeout:     90 * time.Second,

				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		}
	}

	return &httpIndex{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.Named("vectorindex"),
	}, nil
}

func (c *httpIndex) Query(parentCtx context.Context, vector []float32, bucket string, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 1
	}

	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.UpstreamTimeout)
	defer cancel()

	body, err := c.post(ctx, "/query", queryRequest{
		Vector:         vector,
		TopK:           topK,
		Filter:         map[string]string{"bucket": bucket},
		ReturnMetadata: true,
	})
	if err != nil {
		return nil, err
	}

	var resp queryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("vectorindex: decode query response: %w", err)
	}

	return resp.Matches, nil
}

func (c *httpIndex) Upsert(parentCtx context.Context, entry Entry) error {
	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.UpstreamTimeout)
	defer cancel()

	_, err := c.post(ctx, "/upsert", upsertRequest{Vectors: []Entry{entry}})
	return err
}

func (c *httpIndex) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("vectorindex: build HTTP request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("index call failed",
			zap.String("path", path),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, fmt.Errorf("vectorindex: upstream call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("index upstream error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("vectorindex: upstream %d: %s",
			resp.StatusCode, truncate(string(respBody), 200))
	}

	return respBody, nil
}

// Close releases resources held by the client.
func (c *httpIndex) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// truncate limits string length for logging
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
