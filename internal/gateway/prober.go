package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// TestCID is the IPFS whitepaper, a fixed well-known content address every
// functioning gateway can serve.
const TestCID = "QmR7GSQM93Cx5eAg6a6yRzNde1FQv7uL6X1o4k7zrJa3LX"

// ProbeResult is the outcome of one reachability check.
type ProbeResult struct {
	Host        string
	Success     bool
	RateLimited bool
	LatencyMS   float64 // meaningful only when Success
}

// Prober performs a single lightweight reachability check against a host.
type Prober interface {
	Probe(ctx context.Context, host string) ProbeResult
}

// HTTPProber checks gateways with a HEAD request for the test CID. Only an
// exact 200 counts as success; 429 is a failure flagged as rate-limited so
// callers can tell probe throttling apart from a dead endpoint.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber creates a prober whose requests are bounded by timeout
// (connect, TLS, and response read included).
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProber{
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProber) Probe(ctx context.Context, host string) ProbeResult {
	url := fmt.Sprintf("https://%s/ipfs/%s", host, TestCID)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return ProbeResult{Host: host}
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return ProbeResult{Host: host}
	}
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return ProbeResult{
			Host:      host,
			Success:   true,
			LatencyMS: float64(time.Since(start).Microseconds()) / 1000,
		}
	case http.StatusTooManyRequests:
		return ProbeResult{Host: host, RateLimited: true}
	default:
		return ProbeResult{Host: host}
	}
}
