// Package sweeper retires pending requests whose deadline has passed.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/mixelka/otprelay/internal/metrics"
	"github.com/mixelka/otprelay/internal/notify"
	"github.com/mixelka/otprelay/internal/registry"
	"github.com/mixelka/otprelay/pkg/models"
)

// Sweeper removes expired requests and reports them
type Sweeper struct {
	registry *registry.Registry
	sink     notify.Sink
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a sweeper
func New(reg *registry.Registry, sink notify.Sink, m *metrics.Metrics, logger *slog.Logger) *Sweeper {
	if sink == nil {
		sink = notify.Multi{}
	}
	return &Sweeper{
		registry: reg,
		sink:     sink,
		metrics:  m,
		now:      time.Now,
		logger:   logger.With("component", "sweeper"),
	}
}

// Tick runs one sweep. It never fails.
func (s *Sweeper) Tick(ctx context.Context) error {
	expired := s.registry.SweepExpired(s.now())
	s.metrics.SetPending(s.registry.Len())
	if len(expired) == 0 {
		return nil
	}

	s.metrics.AddExpired(len(expired))
	for _, id := range expired {
		s.logger.Info("request expired", "request_id", id)
		s.sink.Emit(ctx, notify.NewEvent(models.EventExpired, id, "", "deadline passed"))
	}
	return nil
}
