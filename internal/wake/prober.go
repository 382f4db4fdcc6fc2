package wake

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Prober issues a readiness check against the worker's health endpoint.
// Implemented over *http.Client in production; faked in tests to drive the
// state machine through its poll window without a real 120s wait.
type Prober interface {
	Probe(ctx context.Context) (healthy bool, err error)
}

// HTTPProber probes a worker's /health endpoint.
type HTTPProber struct {
	client  *http.Client
	url     string
	timeout time.Duration
}

// NewHTTPProber builds a Prober against baseURL + "/health", with the given
// per-probe timeout (§4.2 step 1: "≤ 2s").
func NewHTTPProber(client *http.Client, baseURL string, timeout time.Duration) *HTTPProber {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProber{client: client, url: baseURL + "/health", timeout: timeout}
}

func (p *HTTPProber) Probe(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, nil)
	if err != nil {
		return false, fmt.Errorf("wake: build probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false, nil // unreachable, not an error worth propagating
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK, nil
}
