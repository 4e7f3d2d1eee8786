package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func probeAgainst(t *testing.T, status int, delay time.Duration) ProbeResult {
	t.Helper()
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("probe used %s, want HEAD", r.Method)
		}
		if !strings.HasPrefix(r.URL.Path, "/ipfs/") {
			t.Errorf("probe path = %q, want /ipfs/ prefix", r.URL.Path)
		}
		time.Sleep(delay)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	p := &HTTPProber{client: srv.Client()}
	return p.Probe(context.Background(), strings.TrimPrefix(srv.URL, "https://"))
}

func TestProbeSuccessMeasuresLatency(t *testing.T) {
	result := probeAgainst(t, http.StatusOK, 20*time.Millisecond)
	if !result.Success {
		t.Fatal("200 response should count as success")
	}
	if result.RateLimited {
		t.Error("success must not be flagged rate-limited")
	}
	if result.LatencyMS < 20 {
		t.Errorf("latency = %vms, want at least the 20ms handler delay", result.LatencyMS)
	}
}

func TestProbeRateLimited(t *testing.T) {
	result := probeAgainst(t, http.StatusTooManyRequests, 0)
	if result.Success {
		t.Error("429 must not count as success")
	}
	if !result.RateLimited {
		t.Error("429 should be flagged rate-limited")
	}
}

func TestProbeNon200IsFailure(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusInternalServerError, http.StatusBadGateway} {
		result := probeAgainst(t, status, 0)
		if result.Success || result.RateLimited {
			t.Errorf("status %d: got %+v, want plain failure", status, result)
		}
	}
}

func TestProbeUnreachableHostIsFailure(t *testing.T) {
	p := NewHTTPProber(200 * time.Millisecond)
	result := p.Probe(context.Background(), "127.0.0.1:1")
	if result.Success {
		t.Error("connection refusal should count as failure")
	}
	if result.Host != "127.0.0.1:1" {
		t.Errorf("result host = %q", result.Host)
	}
}
