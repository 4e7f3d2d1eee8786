package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler runs health-check rounds on a fixed interval, plus one eager
// round at startup that must not block application readiness.
type Scheduler struct {
	monitor  *Monitor
	interval time.Duration
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *slog.Logger
}

func NewScheduler(monitor *Monitor, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{
		monitor:  monitor,
		interval: interval,
		logger:   slog.Default().With("component", "gateway-scheduler"),
	}
}

// Start launches the eager startup round and the periodic loop. Both run in
// goroutines tracked by the scheduler so Stop can wait for an in-flight
// round instead of abandoning it.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.monitor.CheckAll(runCtx); err != nil {
			s.logger.Warn("startup health check incomplete", "error", err)
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.monitor.CheckAll(runCtx); err != nil {
					s.logger.Warn("scheduled health check incomplete", "error", err)
				}
			case <-runCtx.Done():
				return
			}
		}
	}()

	s.logger.Info("gateway scheduler started", "interval", s.interval)
}

// Stop cancels any in-flight round cooperatively and waits for the current
// tick (if any) to finish before returning.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.logger.Info("gateway scheduler stopped")
}
