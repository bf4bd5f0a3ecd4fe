package origin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"pixelgate-gateway/internal/blob"
	"pixelgate-gateway/internal/params"
)

const maxArtifactSize = 32 * 1024 * 1024 // refuse to buffer anything larger

// TokenSource supplies the bearer token for origin calls. Satisfied by
// token.Provider.
type TokenSource interface {
	Acquire(ctx context.Context) (string, error)
}

// Client invokes the origin generator on a cache miss.
type Client interface {
	Generate(ctx context.Context, canon params.CanonicalRequest) (*blob.Artifact, error)
}

// UpstreamError carries the origin's failure response unchanged so the
// handler can propagate it to the caller as-is. This core never retries;
// retry policy belongs to the origin or the calling client.
type UpstreamError struct {
	Status      int
	ContentType string
	Body        []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("origin: upstream %d: %s", e.Status, truncate(string(e.Body), 200))
}

type Config struct {
	// required fields
	BaseURL string

	UpstreamTimeout time.Duration // per-request timeout (default: 120s, generation is slow)

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
	return nil
}

func (c *Config) WithDefaults() Config {
	cfg := *c

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 120 * time.Second
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 100
	}

	return cfg
}

type client struct {
	cfg        Config
	tokens     TokenSource
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates the origin invocation adapter. tokens may be nil for
// origins that need no auth.
func NewClient(cfg Config, tokens TokenSource, logger *zap.Logger) (Client, error) {
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
					Timeout:   10 * time.Second,
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

	return &client{
		cfg:        cfg,
		tokens:     tokens,
		httpClient: httpClient,
		logger:     logger.Named("origin"),
	}, nil
}

func (c *client) Generate(parentCtx context.Context, canon params.CanonicalRequest) (*blob.Artifact, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.UpstreamTimeout)
	defer cancel()

	generateURL := c.cfg.BaseURL + "/prompt/" + url.PathEscape(canon.Prompt) +
		"?" + canon.Values().Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, generateURL, nil)
	if err != nil {
		return nil, fmt.Errorf("origin: build HTTP request: %w", err)
	}

	if c.tokens != nil {
		tok, err := c.tokens.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("origin: acquire token: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("origin request failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, fmt.Errorf("origin: upstream call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactSize+1))
	if err != nil {
		return nil, fmt.Errorf("origin: read body: %w", err)
	}
	if len(body) > maxArtifactSize {
		return nil, fmt.Errorf("origin: artifact too large (> %d bytes)", maxArtifactSize)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("origin generation failed",
			zap.Int("status", resp.StatusCode),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, &UpstreamError{
			Status:      resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        body,
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.logger.Info("origin generation completed",
		zap.String("model", canon.Model),
		zap.Int("size_bytes", len(body)),
		zap.Duration("duration", time.Since(start)),
	)

	return &blob.Artifact{
		Bytes:       body,
		ContentType: contentType,
	}, nil
}

// Close releases resources held by the client.
func (c *client) Close() error {
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
