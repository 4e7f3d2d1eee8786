// Package events exports search events to Kafka for downstream analytics.
// The exporter is optional; when Kafka is disabled the orchestrator simply
// receives a nil tracker.
package events

import (
	"context"
	"log/slog"

	"github.com/easybook-dev/easybook/pkg/kafka"
)

// Exporter buffers events and publishes them asynchronously. Track never
// blocks the request path: when the buffer is full the event is dropped and
// a warning logged.
type Exporter struct {
	producer *kafka.Producer
	eventCh  chan any
	logger   *slog.Logger
	done     chan struct{}
}

func NewExporter(producer *kafka.Producer, bufferSize int) *Exporter {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Exporter{
		producer: producer,
		eventCh:  make(chan any, bufferSize),
		logger:   slog.Default().With("component", "event-exporter"),
		done:     make(chan struct{}),
	}
}

// Start launches the publish loop. On ctx cancellation remaining buffered
// events are drained best-effort before the loop exits.
func (e *Exporter) Start(ctx context.Context) {
	go func() {
		defer close(e.done)
		for {
			select {
			case event, ok := <-e.eventCh:
				if !ok {
					return
				}
				if err := e.producer.Publish(ctx, kafka.Event{
					Key:   "search",
					Value: event,
				}); err != nil {
					e.logger.Error("failed to publish search event", "error", err)
				}
			case <-ctx.Done():
				e.drainRemaining()
				return
			}
		}
	}()
	e.logger.Info("event exporter started", "buffer_size", cap(e.eventCh))
}

// Track enqueues an event without blocking.
func (e *Exporter) Track(event any) {
	select {
	case e.eventCh <- event:
	default:
		e.logger.Warn("search event dropped (buffer full)")
	}
}

// Close stops accepting events and waits for the publish loop to finish.
func (e *Exporter) Close() {
	close(e.eventCh)
	<-e.done
}

func (e *Exporter) drainRemaining() {
	for {
		select {
		case event, ok := <-e.eventCh:
			if !ok {
				return
			}
			if err := e.producer.Publish(context.Background(), kafka.Event{
				Key:   "search",
				Value: event,
			}); err != nil {
				e.logger.Error("failed to publish remaining event", "error", err)
			}
		default:
			return
		}
	}
}
