package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// TokenHeader carries the proof-of-humanity token on incoming requests.
const TokenHeader = "X-Verification-Token"

// Verifier checks a proof-of-humanity token against the external
// verification service. ok=false with a nil error is a clean rejection;
// an error means the service itself could not be consulted.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

type Config struct {
	// required fields
	VerifyURL string
	Secret    string

	UpstreamTimeout time.Duration // per-request timeout (default: 5s)

	// Custom HTTP client (for testing or special configs)
	HTTPClient *http.Client
}

func (c *Config) Validate() error {
	if c.VerifyURL == "" {
		return errors.New("VerifyURL is required")
	}
	if c.Secret == "" {
		return errors.New("Secret is required")
	}
	return nil
}

func (c *Config) WithDefaults() Config {
	cfg := *c
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 5 * time.Second
	}
	return cfg
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

type client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds a Verifier against a siteverify-style endpoint.
func NewClient(cfg Config, logger *zap.Logger) (Verifier, error) {
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

	return &client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.Named("verify"),
	}, nil
}

func (c *client) Verify(parentCtx context.Context, token, remoteIP string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.UpstreamTimeout)
	defer cancel()

	form := url.Values{}
	form.Set("secret", c.cfg.Secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("verify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("verify: service call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("verify: service %d", resp.StatusCode)
	}

	var sv siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&sv); err != nil {
		return false, fmt.Errorf("verify: decode response: %w", err)
	}

	if !sv.Success && len(sv.ErrorCodes) > 0 {
		c.logger.Info("verification rejected",
			zap.Strings("error_codes", sv.ErrorCodes),
		)
	}

	return sv.Success, nil
}
