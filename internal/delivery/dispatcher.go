// Package delivery seals matched codes and submits them to the policy API.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mixelka/otprelay/internal/envelope"
	"github.com/mixelka/otprelay/internal/metrics"
	"github.com/mixelka/otprelay/internal/notify"
	"github.com/mixelka/otprelay/internal/policy"
	"github.com/mixelka/otprelay/pkg/models"
)

// Sealer encrypts a code to a public key
type Sealer interface {
	Seal(code, publicKey string) (*models.EncryptedEnvelope, error)
}

// Submitter hands a sealed code to the policy API
type Submitter interface {
	SubmitOTP(ctx context.Context, requestID string, sub policy.Submission) error
}

// Result is the outcome of one delivery
type Result struct {
	RequestID string
	Delivered bool
	Envelope  *models.EncryptedEnvelope
}

// Deps dependencies for creating a dispatcher
type Deps struct {
	Sealer    Sealer
	Submitter Submitter
	Sink      notify.Sink
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Dispatcher delivers matched codes. A failed delivery is terminal: the
// request was consumed at match time and is never put back.
type Dispatcher struct {
	sealer    Sealer
	submitter Submitter
	sink      notify.Sink
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a dispatcher
func New(deps Deps) *Dispatcher {
	sink := deps.Sink
	if sink == nil {
		sink = notify.Multi{}
	}
	return &Dispatcher{
		sealer:    deps.Sealer,
		submitter: deps.Submitter,
		sink:      sink,
		metrics:   deps.Metrics,
		logger:    deps.Logger.With("component", "dispatcher"),
	}
}

// Deliver seals the matched code and submits it. On failure the loss is
// reported to the sink and the error is returned.
func (d *Dispatcher) Deliver(ctx context.Context, match *models.MatchedOTP) (*Result, error) {
	result := &Result{RequestID: match.RequestID}
	logger := d.logger.With("request_id", match.RequestID, "source", match.Source, "message_id", match.SourceMessageID)

	env, err := d.sealer.Seal(match.Code, match.RecipientPublicKey)
	if err != nil {
		d.fail(ctx, logger, match, metrics.OutcomeEncryptionError, err)
		return result, fmt.Errorf("failed to seal code: %w", err)
	}
	result.Envelope = env

	sub, err := policy.NewSubmission(match, env)
	if err != nil {
		d.fail(ctx, logger, match, metrics.OutcomeEncryptionError, err)
		return result, err
	}

	if err := d.submitter.SubmitOTP(ctx, match.RequestID, sub); err != nil {
		outcome := metrics.OutcomeTransportError
		if errors.Is(err, policy.ErrDeliveryRejected) {
			outcome = metrics.OutcomeRejected
		}
		d.fail(ctx, logger, match, outcome, err)
		return result, fmt.Errorf("failed to submit code: %w", err)
	}

	result.Delivered = true
	d.metrics.IncDelivery(metrics.OutcomeDelivered)
	d.sink.Emit(ctx, notify.NewEvent(models.EventDelivered, match.RequestID, match.Source, ""))
	logger.Info("code delivered", "algorithm", env.Algorithm, "confidence", match.Confidence)
	return result, nil
}

func (d *Dispatcher) fail(ctx context.Context, logger *slog.Logger, match *models.MatchedOTP, outcome string, err error) {
	d.metrics.IncDelivery(outcome)
	logger.Error("delivery failed, request is lost", "outcome", outcome, "error", err)
	d.sink.Emit(ctx, notify.NewEvent(models.EventDeliveryFailed, match.RequestID, match.Source, outcome))
}

var _ Sealer = (*envelope.Sealer)(nil)
var _ Submitter = (*policy.Client)(nil)
