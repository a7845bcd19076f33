package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/satriahrh/segstream/internal/api"
)

// HealthClient checks the liveness endpoint of an inference service
type HealthClient struct {
	client *http.Client
}

// NewHealthClient creates a client with the given request timeout
func NewHealthClient(timeout time.Duration) *HealthClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthClient{client: &http.Client{Timeout: timeout}}
}

// Check fetches the health payload and fails unless the service is healthy
// with its model loaded
func (h *HealthClient) Check(ctx context.Context, healthURL string) (*api.HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build health request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health check: unexpected status %d", resp.StatusCode)
	}

	var health api.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("decode health response: %w", err)
	}
	if health.Status != "healthy" {
		return &health, fmt.Errorf("service reports status %q", health.Status)
	}
	if !health.ModelLoaded {
		return &health, fmt.Errorf("service is up but the model is not loaded")
	}
	return &health, nil
}

// HealthURLFor derives the health endpoint from a ws:// or wss:// frame endpoint
func HealthURLFor(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	u.Path = "/health"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
