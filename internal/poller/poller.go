// Package poller scans a capture source for new messages and matches the
// codes they carry against pending requests.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mixelka/otprelay/internal/database"
	"github.com/mixelka/otprelay/internal/delivery"
	"github.com/mixelka/otprelay/internal/metrics"
	"github.com/mixelka/otprelay/internal/parser"
	"github.com/mixelka/otprelay/internal/registry"
	"github.com/mixelka/otprelay/internal/source"
	"github.com/mixelka/otprelay/pkg/models"
)

// CursorStore persists the last committed cursor per source
type CursorStore interface {
	LoadCursor(ctx context.Context, source string) (models.Cursor, error)
	SaveCursor(ctx context.Context, cursor models.Cursor) error
}

// Deliverer hands a matched code to the policy API
type Deliverer interface {
	Deliver(ctx context.Context, match *models.MatchedOTP) (*delivery.Result, error)
}

// Config for a poller
type Config struct {
	Source        source.Source
	Registry      *registry.Registry
	Detector      *parser.CodeDetector
	Deliverer     Deliverer
	Cursors       CursorStore // optional
	Metrics       *metrics.Metrics
	MinConfidence float64
	Logger        *slog.Logger
}

// Poller drives one source. Tick is not safe for concurrent use; the
// scheduler never overlaps ticks of the same task.
type Poller struct {
	src           source.Source
	registry      *registry.Registry
	detector      *parser.CodeDetector
	deliverer     Deliverer
	cursors       CursorStore
	metrics       *metrics.Metrics
	minConfidence float64
	logger        *slog.Logger

	cursor models.Cursor
}

// New creates a poller for cfg.Source
func New(cfg Config) *Poller {
	return &Poller{
		src:           cfg.Source,
		registry:      cfg.Registry,
		detector:      cfg.Detector,
		deliverer:     cfg.Deliverer,
		cursors:       cfg.Cursors,
		metrics:       cfg.Metrics,
		minConfidence: cfg.MinConfidence,
		logger:        cfg.Logger.With("component", "poller", "source", cfg.Source.Name()),
	}
}

// Name returns the polled source name
func (p *Poller) Name() string {
	return p.src.Name()
}

// Cursor returns the last committed cursor
func (p *Poller) Cursor() models.Cursor {
	return p.cursor
}

// Tick runs one poll cycle. The starting cursor is established on the first
// tick even when nothing is pending, so messages arriving after a request is
// approved are always ahead of it. Listing changes is skipped while the
// registry is empty.
func (p *Poller) Tick(ctx context.Context) error {
	if p.cursor.IsZero() {
		cursor, err := p.initialCursor(ctx)
		if err != nil {
			p.metrics.IncPollError(p.src.Name())
			return err
		}
		p.cursor = cursor
	}

	if p.registry.Len() == 0 {
		return nil
	}

	next, ids, err := p.src.Changes(ctx, p.cursor)
	if errors.Is(err, source.ErrCursorInvalid) {
		p.logger.Warn("cursor invalid, re-baselining", "cursor", p.cursor.HistoryID)
		p.metrics.IncCursorReset(p.src.Name())
		return p.rebaseline(ctx)
	}
	if err != nil {
		p.metrics.IncPollError(p.src.Name())
		return fmt.Errorf("failed to list changes: %w", err)
	}

	for _, id := range ids {
		msg, err := p.src.Fetch(ctx, id)
		if errors.Is(err, source.ErrMessageGone) {
			p.logger.Debug("message gone, skipping", "message_id", id)
			continue
		}
		if err != nil {
			p.metrics.IncPollError(p.src.Name())
			return fmt.Errorf("failed to fetch message %s: %w", id, err)
		}
		p.metrics.IncScanned(p.src.Name())
		p.process(ctx, msg)
	}

	p.commit(ctx, next)
	return nil
}

func (p *Poller) process(ctx context.Context, msg *models.SourceMessage) {
	candidate := p.detector.Extract(msg.Subject, msg.Body)
	if candidate == nil {
		return
	}
	p.metrics.IncCandidate(candidate.PatternID)

	if candidate.Confidence < p.minConfidence {
		p.logger.Debug("candidate below minimum confidence",
			"message_id", msg.ID,
			"pattern", candidate.PatternID,
			"confidence", candidate.Confidence,
		)
		return
	}

	match := p.registry.FindAndConsumeMatch(*candidate, msg)
	if match == nil {
		return
	}
	p.metrics.IncMatch(p.src.Name())
	p.metrics.SetPending(p.registry.Len())

	p.logger.Info("code matched",
		"request_id", match.RequestID,
		"message_id", msg.ID,
		"pattern", candidate.PatternID,
		"confidence", candidate.Confidence,
	)

	// Delivery failures are reported by the dispatcher; the scan goes on.
	if _, err := p.deliverer.Deliver(ctx, match); err != nil {
		p.logger.Debug("delivery did not succeed", "request_id", match.RequestID, "error", err)
	}
}

func (p *Poller) initialCursor(ctx context.Context) (models.Cursor, error) {
	if p.cursors != nil {
		cursor, err := p.cursors.LoadCursor(ctx, p.src.Name())
		switch {
		case err == nil && !cursor.IsZero():
			// A stored cursor the source no longer accepts is replaced now,
			// before any request can depend on it.
			_, _, err := p.src.Changes(ctx, cursor)
			if err == nil {
				p.logger.Info("resuming from stored cursor", "cursor", cursor.HistoryID)
				return cursor, nil
			}
			if !errors.Is(err, source.ErrCursorInvalid) {
				return models.Cursor{}, fmt.Errorf("failed to check stored cursor: %w", err)
			}
			p.logger.Warn("stored cursor invalid, using baseline", "cursor", cursor.HistoryID)
			p.metrics.IncCursorReset(p.src.Name())
		case err != nil && !errors.Is(err, database.ErrNotFound):
			p.logger.Warn("failed to load cursor, using baseline", "error", err)
		}
	}

	cursor, err := p.src.Baseline(ctx)
	if err != nil {
		return models.Cursor{}, fmt.Errorf("failed to baseline source: %w", err)
	}
	p.logger.Info("baseline established", "cursor", cursor.HistoryID)
	return cursor, nil
}

func (p *Poller) rebaseline(ctx context.Context) error {
	cursor, err := p.src.Baseline(ctx)
	if err != nil {
		p.metrics.IncPollError(p.src.Name())
		p.cursor = models.Cursor{}
		return fmt.Errorf("failed to re-baseline source: %w", err)
	}
	p.commit(ctx, cursor)
	return nil
}

func (p *Poller) commit(ctx context.Context, cursor models.Cursor) {
	p.cursor = cursor
	if p.cursors == nil {
		return
	}
	if err := p.cursors.SaveCursor(ctx, cursor); err != nil {
		p.logger.Error("failed to persist cursor", "cursor", cursor.HistoryID, "error", err)
	}
}
