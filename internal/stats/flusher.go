package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/easybook-dev/easybook/pkg/metrics"
)

// Flusher persists collector state on a fixed interval and once more at
// shutdown. A failed flush is logged and skipped, never fatal.
type Flusher struct {
	collector *Collector
	store     SnapshotStore
	interval  time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewFlusher(collector *Collector, store SnapshotStore, interval time.Duration, m *metrics.Metrics) *Flusher {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Flusher{
		collector: collector,
		store:     store,
		interval:  interval,
		metrics:   m,
		logger:    slog.Default().With("component", "stats-flusher"),
	}
}

// Run blocks until ctx is cancelled, flushing every interval. The final
// flush after cancellation uses a short independent deadline.
func (f *Flusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	f.logger.Info("stats flusher started", "interval", f.interval)

	for {
		select {
		case <-ticker.C:
			f.flush(ctx)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			f.flush(flushCtx)
			cancel()
			f.logger.Info("stats flusher stopped")
			return
		}
	}
}

func (f *Flusher) flush(ctx context.Context) {
	if err := f.collector.Persist(ctx, f.store); err != nil {
		f.logger.Error("stats flush failed, skipping cycle", "error", err)
		if f.metrics != nil {
			f.metrics.StatsFlushesTotal.WithLabelValues("error").Inc()
		}
		return
	}
	if f.metrics != nil {
		f.metrics.StatsFlushesTotal.WithLabelValues("ok").Inc()
	}
}
