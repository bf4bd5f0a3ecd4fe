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

// AnalyticsConfig points at a Measurement-Protocol-style collection
// endpoint.
type AnalyticsConfig struct {
	// required fields
	BaseURL       string
	MeasurementID string
	APISecret     string

	UpstreamTimeout time.Duration // per-request timeout (default: 5s)

	// Custom HTTP client (for testing or special configs)
	HTTPClient *http.Client
}

func (c *AnalyticsConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("BaseURL is required")
	}
	if c.MeasurementID == "" {
		return errors.New("MeasurementID is required")
	}
	if c.APISecret == "" {
		return errors.New("APISecret is required")
	}
	return nil
}

func (c *AnalyticsConfig) WithDefaults() AnalyticsConfig {
	cfg := *c
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 5 * time.Second
	}
	return cfg
}

type collectPayload struct {
	ClientID string         `json:"client_id"`
	Events   []collectEvent `json:"events"`
}

type collectEvent struct {
	Name   string            `json:"name"`
	Params map[string]string `json:"params"`
}

type analyticsClient struct {
	cfg        AnalyticsConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAnalyticsClient builds the general-purpose analytics sink.
func NewAnalyticsClient(cfg AnalyticsConfig, logger *zap.Logger) (AnalyticsSink, error) {
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

	return &analyticsClient{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.Named("analytics"),
	}, nil
}

func (c *analyticsClient) Send(parentCtx context.Context, clientID string, event Event, eventParams map[string]string) error {
	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.UpstreamTimeout)
	defer cancel()

	body, err := json.Marshal(collectPayload{
		ClientID: clientID,
		Events: []collectEvent{
			{Name: string(event), Params: eventParams},
		},
	})
	if err != nil {
		return fmt.Errorf("analytics: marshal payload: %w", err)
	}

	q := url.Values{}
	q.Set("measurement_id", c.cfg.MeasurementID)
	q.Set("api_secret", c.cfg.APISecret)
	collectURL := c.cfg.BaseURL + "/mp/collect?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, collectURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("analytics: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("analytics: send: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("analytics: backend %d", resp.StatusCode)
	}

	return nil
}
