// Package notify fans lifecycle events out to notification surfaces.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mixelka/otprelay/pkg/models"
)

// Sink receives lifecycle events. Emit must not block for long; it is called
// from poller and sweeper ticks.
type Sink interface {
	Emit(ctx context.Context, event models.LifecycleEvent)
}

// NewEvent builds an event with a fresh id and timestamp
func NewEvent(eventType models.LifecycleEventType, requestID, source, reason string) models.LifecycleEvent {
	return models.LifecycleEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		RequestID: requestID,
		Source:    source,
		Reason:    reason,
		At:        time.Now().UTC(),
	}
}

// LogSink writes events to a structured logger
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs every event
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("component", "lifecycle_events")}
}

// Emit implements Sink
func (s *LogSink) Emit(ctx context.Context, event models.LifecycleEvent) {
	level := slog.LevelInfo
	if event.Type == models.EventDeliveryFailed {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "lifecycle event",
		"event_id", event.ID,
		"type", event.Type,
		"request_id", event.RequestID,
		"source", event.Source,
		"reason", event.Reason,
	)
}

// Multi emits every event to each sink in order
type Multi []Sink

// Emit implements Sink
func (m Multi) Emit(ctx context.Context, event models.LifecycleEvent) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(ctx, event)
		}
	}
}
