package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/easybook-dev/easybook/pkg/redis"
)

// SnapshotStore persists serialized collector state. Load returns (nil, nil)
// when no snapshot exists yet.
type SnapshotStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// persistedState is the durable subset of collector state. The latency ring
// is deliberately not persisted; it describes the running process.
type persistedState struct {
	SearchCount int64            `json:"search_count"`
	SearchTerms map[string]int64 `json:"search_terms"`
	TotalPV     int64            `json:"total_pv"`
	HourlyPV    map[string]int64 `json:"hourly_pv"`
	DailyPV     map[string]int64 `json:"daily_pv"`
	UniqueIDs   []string         `json:"unique_visitors"`
}

// Persist writes the current state to the snapshot store. Failures are
// returned for logging but must never be treated as fatal by callers.
func (c *Collector) Persist(ctx context.Context, store SnapshotStore) error {
	c.mu.Lock()
	state := persistedState{
		SearchCount: c.searchCount,
		SearchTerms: topTermsMap(c.searchTerms, maxSearchTerms),
		TotalPV:     c.totalPV,
		HourlyPV:    copyCounts(c.hourlyPV),
		DailyPV:     copyCounts(c.dailyPV),
		UniqueIDs:   make([]string, 0, len(c.visitors)),
	}
	for id := range c.visitors {
		state.UniqueIDs = append(state.UniqueIDs, id)
	}
	c.mu.Unlock()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling stats snapshot: %w", err)
	}
	if err := store.Save(ctx, data); err != nil {
		return fmt.Errorf("saving stats snapshot: %w", err)
	}
	return nil
}

// Restore replaces the collector state with the persisted snapshot. A missing
// or corrupt snapshot is logged and leaves the collector empty; restore is
// idempotent.
func (c *Collector) Restore(ctx context.Context, store SnapshotStore) error {
	data, err := store.Load(ctx)
	if err != nil {
		c.logger.Warn("stats snapshot load failed, starting empty", "error", err)
		return nil
	}
	if data == nil {
		c.logger.Info("no stats snapshot found, starting empty")
		return nil
	}
	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		c.logger.Warn("stats snapshot corrupt, starting empty", "error", err)
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.searchCount = state.SearchCount
	c.searchTerms = orEmpty(state.SearchTerms)
	c.totalPV = state.TotalPV
	c.hourlyPV = orEmpty(state.HourlyPV)
	c.dailyPV = orEmpty(state.DailyPV)
	c.visitors = make(map[string]struct{}, len(state.UniqueIDs))
	for _, id := range state.UniqueIDs {
		c.visitors[id] = struct{}{}
	}
	c.logger.Info("stats snapshot restored",
		"search_count", c.searchCount,
		"total_pv", c.totalPV,
	)
	return nil
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func orEmpty(m map[string]int64) map[string]int64 {
	if m == nil {
		return make(map[string]int64)
	}
	return m
}

// FileStore persists snapshots as a JSON file, written atomically via a
// temp-file rename.
type FileStore struct {
	Path string
}

func (s FileStore) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s FileStore) Save(ctx context.Context, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return err
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.Path)
}

// RedisStore persists snapshots under a single Redis key with no expiry.
type RedisStore struct {
	Client *redis.Client
	Key    string
}

func (s RedisStore) Load(ctx context.Context) ([]byte, error) {
	data, err := s.Client.Get(ctx, s.Key)
	if redis.IsNilError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s RedisStore) Save(ctx context.Context, data []byte) error {
	return s.Client.Set(ctx, s.Key, data, 0*time.Second)
}
