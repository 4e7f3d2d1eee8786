// Package gateway probes a pool of IPFS content-delivery hosts, tracks their
// availability and latency, and selects the best one for building download
// links.
package gateway

import (
	"context"
	"time"
)

// EndpointHealth is the observed state of one gateway host.
//
// Availability follows a sticky-available policy: it flips to false only
// after ConsecutiveFailures reaches the configured threshold, and any
// success resets the count and flips it back true immediately. Entries are
// created on the first probe of a host and never deleted.
type EndpointHealth struct {
	Host                string     `json:"host"`
	Available           bool       `json:"available"`
	LatencyMS           *float64   `json:"latency_ms"` // nil = never measured
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastCheckedAt       *time.Time `json:"last_checked_at"`
}

// HealthStore persists per-host health state across probe rounds.
type HealthStore interface {
	// Get returns the state for host, or (nil, nil) for a never-probed host.
	Get(ctx context.Context, host string) (*EndpointHealth, error)
	Upsert(ctx context.Context, health EndpointHealth) error
	// List returns all known hosts in unspecified order.
	List(ctx context.Context) ([]EndpointHealth, error)
}
