package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/easybook-dev/easybook/pkg/postgres"
)

// MemoryStore keeps health state for the process lifetime. Updates are
// per-host and briefly locked, so readers are never blocked for a whole
// probe round.
type MemoryStore struct {
	mu    sync.RWMutex
	hosts map[string]EndpointHealth
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{hosts: make(map[string]EndpointHealth)}
}

func (s *MemoryStore) Get(ctx context.Context, host string) (*EndpointHealth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if h, ok := s.hosts[host]; ok {
		copied := h
		return &copied, nil
	}
	return nil, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, health EndpointHealth) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hosts[health.Host] = health
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]EndpointHealth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]EndpointHealth, 0, len(s.hosts))
	for _, h := range s.hosts {
		all = append(all, h)
	}
	return all, nil
}

// PostgresStore persists health state in the gateway_health table so
// availability survives restarts.
type PostgresStore struct {
	client *postgres.Client
}

const gatewayHealthSchema = `
CREATE TABLE IF NOT EXISTS gateway_health (
	host TEXT PRIMARY KEY,
	available BOOLEAN NOT NULL DEFAULT FALSE,
	latency_ms DOUBLE PRECISION,
	consecutive_failures INTEGER NOT NULL DEFAULT 0,
	last_checked_at TIMESTAMPTZ
)`

func NewPostgresStore(ctx context.Context, client *postgres.Client) (*PostgresStore, error) {
	if _, err := client.DB.ExecContext(ctx, gatewayHealthSchema); err != nil {
		return nil, fmt.Errorf("migrating gateway_health table: %w", err)
	}
	return &PostgresStore{client: client}, nil
}

func (s *PostgresStore) Get(ctx context.Context, host string) (*EndpointHealth, error) {
	row := s.client.DB.QueryRowContext(ctx,
		`SELECT host, available, latency_ms, consecutive_failures, last_checked_at
		 FROM gateway_health WHERE host = $1`, host)
	health, err := scanHealth(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading gateway health for %s: %w", host, err)
	}
	return health, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, health EndpointHealth) error {
	_, err := s.client.DB.ExecContext(ctx,
		`INSERT INTO gateway_health (host, available, latency_ms, consecutive_failures, last_checked_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (host) DO UPDATE SET
			available = EXCLUDED.available,
			latency_ms = EXCLUDED.latency_ms,
			consecutive_failures = EXCLUDED.consecutive_failures,
			last_checked_at = EXCLUDED.last_checked_at`,
		health.Host, health.Available, health.LatencyMS,
		health.ConsecutiveFailures, health.LastCheckedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting gateway health for %s: %w", health.Host, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]EndpointHealth, error) {
	rows, err := s.client.DB.QueryContext(ctx,
		`SELECT host, available, latency_ms, consecutive_failures, last_checked_at
		 FROM gateway_health`)
	if err != nil {
		return nil, fmt.Errorf("listing gateway health: %w", err)
	}
	defer rows.Close()

	all := make([]EndpointHealth, 0)
	for rows.Next() {
		health, err := scanHealth(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning gateway health: %w", err)
		}
		all = append(all, *health)
	}
	return all, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHealth(row rowScanner) (*EndpointHealth, error) {
	var h EndpointHealth
	var latency sql.NullFloat64
	var checkedAt sql.NullTime
	if err := row.Scan(&h.Host, &h.Available, &latency,
		&h.ConsecutiveFailures, &checkedAt); err != nil {
		return nil, err
	}
	if latency.Valid {
		h.LatencyMS = &latency.Float64
	}
	if checkedAt.Valid {
		h.LastCheckedAt = &checkedAt.Time
	}
	return &h, nil
}
