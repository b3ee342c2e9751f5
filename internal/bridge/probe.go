package bridge

import (
	"context"
	"io"
	"net/http"
	"time"
)

// probeBodyLimit bounds how much of the ping response is read. The expected
// body is two bytes; anything longer is not a healthy bridge.
const probeBodyLimit = 64

// Prober answers whether a bridge is alive. It never returns an error:
// anything other than a 2xx response with body exactly "OK" counts as dead.
type Prober struct {
	client *http.Client
}

// NewProber creates a prober whose requests give up after timeout.
func NewProber(timeout time.Duration) *Prober {
	return &Prober{client: &http.Client{Timeout: timeout}}
}

// Probe issues a single GET against the endpoint's health URL. Retry policy
// belongs to the caller.
func (p *Prober) Probe(ctx context.Context, ep Endpoint) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.HealthURL, nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, probeBodyLimit))
	if err != nil {
		return false
	}

	return string(body) == "OK"
}
