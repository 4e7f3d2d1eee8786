package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/easybook-dev/easybook/pkg/metrics"
)

// Monitor owns the configured gateway pool: it runs probe rounds, applies
// the sticky-available policy to the health store, and answers endpoint
// selection queries.
type Monitor struct {
	hosts     []string
	store     HealthStore
	prober    Prober
	threshold int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewMonitor creates a Monitor over the configured hosts. threshold is the
// number of consecutive probe failures after which a host is marked
// unavailable.
func NewMonitor(hosts []string, store HealthStore, prober Prober, threshold int, m *metrics.Metrics) *Monitor {
	if threshold <= 0 {
		threshold = 3
	}
	return &Monitor{
		hosts:     hosts,
		store:     store,
		prober:    prober,
		threshold: threshold,
		metrics:   m,
		logger:    slog.Default().With("component", "gateway-monitor"),
	}
}

// CheckAll runs one health-check round: every host is probed concurrently,
// and state updates are applied together once all probes have finished.
// Per-host store writes stay brief so selection reads are never blocked for
// the duration of a round.
func (m *Monitor) CheckAll(ctx context.Context) error {
	if len(m.hosts) == 0 {
		return nil
	}
	m.logger.Info("gateway health check started", "hosts", len(m.hosts))

	results := make([]ProbeResult, len(m.hosts))
	g, probeCtx := errgroup.WithContext(ctx)
	for i, host := range m.hosts {
		i, host := i, host
		g.Go(func() error {
			results[i] = m.prober.Probe(probeCtx, host)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		m.logger.Warn("gateway health check cancelled before applying updates")
		return err
	}

	now := time.Now().UTC()
	for _, result := range results {
		if err := m.applyResult(ctx, result, now); err != nil {
			m.logger.Error("gateway state update failed", "host", result.Host, "error", err)
		}
	}
	m.logger.Info("gateway health check finished")
	return nil
}

// applyResult folds one probe outcome into the host's stored state.
func (m *Monitor) applyResult(ctx context.Context, result ProbeResult, now time.Time) error {
	health, err := m.store.Get(ctx, result.Host)
	if err != nil {
		return err
	}
	if health == nil {
		health = &EndpointHealth{Host: result.Host}
	}
	health.LastCheckedAt = &now

	if result.Success {
		health.Available = true
		health.ConsecutiveFailures = 0
		latency := result.LatencyMS
		health.LatencyMS = &latency
		m.logger.Info("gateway ok", "host", result.Host, "latency_ms", result.LatencyMS)
		m.probeMetric(result.Host, "ok", health)
	} else {
		health.ConsecutiveFailures++
		if health.ConsecutiveFailures >= m.threshold {
			health.Available = false
			m.logger.Warn("gateway marked unavailable",
				"host", result.Host,
				"consecutive_failures", health.ConsecutiveFailures,
			)
		}
		if result.RateLimited {
			// The probe itself may be throttled, not the endpoint down.
			m.logger.Warn("gateway probe rate-limited", "host", result.Host)
			m.probeMetric(result.Host, "rate_limited", health)
		} else {
			m.logger.Warn("gateway probe failed",
				"host", result.Host,
				"consecutive_failures", health.ConsecutiveFailures,
			)
			m.probeMetric(result.Host, "failure", health)
		}
	}
	return m.store.Upsert(ctx, *health)
}

func (m *Monitor) probeMetric(host, result string, health *EndpointHealth) {
	if m.metrics == nil {
		return
	}
	m.metrics.GatewayProbesTotal.WithLabelValues(host, result).Inc()
	available := 0.0
	if health.Available {
		available = 1.0
	}
	m.metrics.GatewayAvailable.WithLabelValues(host).Set(available)
	if health.LatencyMS != nil {
		m.metrics.GatewayLatency.WithLabelValues(host).Set(*health.LatencyMS)
	}
}

// SelectBest returns the available host with the lowest recorded latency
// (never-measured hosts sort last). When no host is marked available it
// falls back to the first configured host, so download links stay degraded
// but functional. Only an empty pool yields "".
func (m *Monitor) SelectBest(ctx context.Context) string {
	if len(m.hosts) == 0 {
		return ""
	}
	candidates := m.availableByLatency(ctx, "")
	if len(candidates) == 0 {
		return m.hosts[0]
	}
	return candidates[0].Host
}

// Alternatives returns up to limit available hosts other than exclude,
// ordered by latency ascending. With no health data yet it falls back to
// configured order.
func (m *Monitor) Alternatives(ctx context.Context, exclude string, limit int) []string {
	if limit <= 0 {
		limit = 3
	}
	candidates := m.availableByLatency(ctx, exclude)
	hosts := make([]string, 0, limit)
	if len(candidates) == 0 {
		for _, h := range m.hosts {
			if h != exclude && len(hosts) < limit {
				hosts = append(hosts, h)
			}
		}
		return hosts
	}
	for _, c := range candidates {
		if len(hosts) == limit {
			break
		}
		hosts = append(hosts, c.Host)
	}
	return hosts
}

// availableByLatency lists available hosts sorted by latency ascending with
// never-measured hosts last.
func (m *Monitor) availableByLatency(ctx context.Context, exclude string) []EndpointHealth {
	all, err := m.store.List(ctx)
	if err != nil {
		m.logger.Error("listing gateway health failed", "error", err)
		return nil
	}
	available := make([]EndpointHealth, 0, len(all))
	for _, h := range all {
		if h.Available && h.Host != exclude {
			available = append(available, h)
		}
	}
	sort.SliceStable(available, func(i, j int) bool {
		li, lj := available[i].LatencyMS, available[j].LatencyMS
		switch {
		case li == nil:
			return false
		case lj == nil:
			return true
		default:
			return *li < *lj
		}
	})
	return available
}

// BuildDownloadURL composes the download link for a content address on the
// given gateway host. Pure string composition, no I/O.
func (m *Monitor) BuildDownloadURL(cid, host string) string {
	return fmt.Sprintf("https://%s/ipfs/%s", host, cid)
}
