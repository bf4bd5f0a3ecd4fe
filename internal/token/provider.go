package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config for the client-credentials token endpoint used to authenticate
// against the origin generator.
type Config struct {
	// required fields
	TokenURL     string
	ClientID     string
	ClientSecret string

	// RefreshSkew renews the token this long before it actually expires
	// (default: 60s).
	RefreshSkew time.Duration

	// RefreshInterval drives the background renewal loop (default: 5m).
	RefreshInterval time.Duration

	UpstreamTimeout time.Duration // per-request timeout (default: 10s)

	// Custom HTTP client (for testing or special configs)
	HTTPClient *http.Client
}

func (c *Config) Validate() error {
	if c.TokenURL == "" {
		return errors.New("TokenURL is required")
	}
	if c.ClientID == "" {
		return errors.New("ClientID is required")
	}
	if c.ClientSecret == "" {
		return errors.New("ClientSecret is required")
	}
	return nil
}

func (c *Config) WithDefaults() Config {
	cfg := *c
	if cfg.RefreshSkew <= 0 {
		cfg.RefreshSkew = time.Minute
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 5 * time.Minute
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 10 * time.Second
	}
	return cfg
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Provider is an explicitly-lifecycled credential source: construct it,
// inject it, call Acquire per use, and Shutdown on exit. No module-global
// token cache, no implicit background timer.
type Provider struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger

	mu      sync.Mutex
	current string
	expires time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds a Provider and starts its background refresh loop.
func New(cfg Config, logger *zap.Logger) (*Provider, error) {
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

	p := &Provider{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.Named("tokenprovider"),
		stopCh:     make(chan struct{}),
	}

	go p.refreshLoop()

	return p, nil
}

// Acquire returns a valid token, refreshing synchronously if the cached one
// is missing or inside the expiry skew.
func (p *Provider) Acquire(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.current != "" && time.Until(p.expires) > p.cfg.RefreshSkew {
		tok := p.current
		p.mu.Unlock()
		return tok, nil
	}
	p.mu.Unlock()

	return p.refresh(ctx)
}

// Shutdown cancels the background refresh loop. Safe to call twice.
func (p *Provider) Shutdown() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
}

func (p *Provider) refreshLoop() {
	ticker := time.NewTicker(p.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), p.cfg.UpstreamTimeout)
			if _, err := p.refresh(ctx); err != nil {
				p.logger.Warn("background token refresh failed", zap.Error(err))
			}
			cancel()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Provider) refresh(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("tokenprovider: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tokenprovider: token endpoint call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("tokenprovider: token endpoint %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("tokenprovider: decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("tokenprovider: empty access_token")
	}

	expiresIn := time.Duration(tr.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}

	p.mu.Lock()
	p.current = tr.AccessToken
	p.expires = time.Now().Add(expiresIn)
	p.mu.Unlock()

	p.logger.Debug("token refreshed", zap.Duration("expires_in", expiresIn))

	return tr.AccessToken, nil
}
