package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"bmsbridge-launcher/internal/state"
)

const (
	healthPath          = "/api/health"
	kneeboardsPath      = "/api/kneeboards/"
	kneeboardsRefresh   = "/api/kneeboards/refresh"
	maxResponseBodySize = 1 << 20
)

// ServedKneeboard is one entry of the server's kneeboard listing
type ServedKneeboard struct {
	Path string `json:"path" yaml:"path"`
	Type string `json:"type" yaml:"type"`
}

// KneeboardListing is the payload of GET /api/kneeboards/{board}
type KneeboardListing struct {
	Success bool              `json:"success" yaml:"success"`
	Items   []ServedKneeboard `json:"items" yaml:"items"`
	Error   string            `json:"error,omitempty" yaml:"error,omitempty"`
}

// APIClient talks to the BMS Bridge server's local HTTP API
type APIClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewAPIClient creates a client for baseURL (e.g. http://localhost:8000).
// timeout bounds every request.
func NewAPIClient(baseURL string, timeout time.Duration, logger *zap.SugaredLogger) *APIClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 2
	transport.IdleConnTimeout = 30 * time.Second

	return &APIClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger,
	}
}

// BaseURL returns the server base URL
func (c *APIClient) BaseURL() string {
	return c.baseURL
}

// Health fetches /api/health once.
//
// A transport failure returns ErrHealthUnreachable. A non-2xx answer returns
// an ERROR state together with a *HealthStatusError so callers can treat it
// as an observation rather than a failure.
func (c *APIClient) Health(ctx context.Context) (state.ServerHealthState, error) {
	resp, err := c.get(ctx, healthPath)
	if err != nil {
		return state.ServerHealthState{}, fmt.Errorf("%w: %w", ErrHealthUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodySize))
		statusErr := &HealthStatusError{Code: resp.StatusCode, Status: resp.Status}
		return state.Errored(statusErr.Error()), statusErr
	}

	var health state.ServerHealthState
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodySize)).Decode(&health); err != nil {
		return state.ServerHealthState{}, fmt.Errorf("failed to decode health payload: %w", err)
	}
	health = health.Normalize()
	if health.ServerStatus == "" {
		return state.ServerHealthState{}, fmt.Errorf("health payload has no server_status")
	}

	return health, nil
}

// Kneeboards returns what the server currently publishes for board (left or right)
func (c *APIClient) Kneeboards(ctx context.Context, board string) (*KneeboardListing, error) {
	board = strings.ToLower(strings.TrimSpace(board))
	if board != "left" && board != "right" {
		return nil, fmt.Errorf("invalid board name %q (want left or right)", board)
	}

	resp, err := c.get(ctx, kneeboardsPath+url.PathEscape(board))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHealthUnreachable, err)
	}
	defer resp.Body.Close()

	var listing KneeboardListing
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodySize)).Decode(&listing); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &HealthStatusError{Code: resp.StatusCode, Status: resp.Status}
		}
		return nil, fmt.Errorf("failed to decode kneeboard listing: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &listing, &HealthStatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	return &listing, nil
}

// RefreshKneeboards asks a running server to rebuild its kneeboard cache
func (c *APIClient) RefreshKneeboards(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+kneeboardsRefresh, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHealthUnreachable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodySize))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HealthStatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	c.logger.Debugw("Kneeboard refresh requested", "base_url", c.baseURL)
	return nil
}

func (c *APIClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.httpClient.Do(req)
}
