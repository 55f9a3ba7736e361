package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/mixelka/otprelay/internal/envelope"
	"github.com/mixelka/otprelay/internal/registry"
	"github.com/mixelka/otprelay/pkg/models"
)

// Lifecycle event names sent by the policy service
const (
	EventApproved  = "approved"
	EventCancelled = "cancelled"
	EventExpired   = "expired"
	EventConsumed  = "consumed"
)

type lifecycleEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type approvedData struct {
	RequestID      string     `json:"requestId"`
	PublicKey      string     `json:"publicKey"`
	ExpectedSender string     `json:"expectedSender"`
	Filter         *filter    `json:"filter"`
	CreatedAt      *time.Time `json:"createdAt"`
	ExpiresAt      *time.Time `json:"expiresAt"`
}

type filter struct {
	Sources       []string `json:"sources"`
	SenderPattern string   `json:"senderPattern"`
}

type retireData struct {
	RequestID string `json:"requestId"`
}

func (h *Handler) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", middleware.GetReqID(ctx))

	var evt lifecycleEvent
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		writeError(w, fmt.Errorf("%w: malformed body", ErrValidation))
		return
	}

	var err error
	switch evt.Event {
	case EventApproved:
		err = h.approve(evt.Data)
	case EventCancelled, EventExpired, EventConsumed:
		err = h.retire(evt.Event, evt.Data)
	default:
		err = fmt.Errorf("%w: unknown event %q", ErrValidation, evt.Event)
	}
	if err != nil {
		if status, _ := statusFor(err); status >= http.StatusInternalServerError {
			logger.ErrorContext(ctx, "lifecycle event failed", "event", evt.Event, "error", err)
		} else {
			logger.InfoContext(ctx, "lifecycle event rejected", "event", evt.Event, "error", err)
		}
		writeError(w, err)
		return
	}

	h.metrics.SetPending(h.registry.Len())
	writeJSON(w, http.StatusOK, response{Success: true})
}

func (h *Handler) approve(raw json.RawMessage) error {
	var data approvedData
	if err := decodeData(raw, &data); err != nil {
		return err
	}

	req, err := h.pendingRequest(data)
	if err != nil {
		return err
	}

	if err := h.registry.Add(req); err != nil {
		if errors.Is(err, registry.ErrInvalidRequest) {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return fmt.Errorf("failed to register request: %w", err)
	}

	h.logger.Info("request approved",
		"otp_request_id", req.RequestID,
		"sources", req.AcceptedSources,
		"expires_at", req.ExpiresAt,
	)
	return nil
}

func (h *Handler) pendingRequest(data approvedData) (models.PendingRequest, error) {
	if strings.TrimSpace(data.RequestID) == "" {
		return models.PendingRequest{}, fmt.Errorf("%w: requestId is required", ErrValidation)
	}
	if data.PublicKey == "" {
		return models.PendingRequest{}, fmt.Errorf("%w: publicKey is required", ErrValidation)
	}
	if err := envelope.ValidatePublicKey(data.PublicKey); err != nil {
		return models.PendingRequest{}, fmt.Errorf("%w: publicKey is not a supported key", ErrValidation)
	}

	sources := h.cfg.EnabledSources
	var senderPattern string
	if data.Filter != nil {
		senderPattern = data.Filter.SenderPattern
		if len(data.Filter.Sources) > 0 {
			for _, s := range data.Filter.Sources {
				if !slices.Contains(h.cfg.EnabledSources, s) {
					return models.PendingRequest{}, fmt.Errorf("%w: source %q is not enabled", ErrValidation, s)
				}
			}
			sources = data.Filter.Sources
		}
	}

	createdAt := h.now().UTC()
	if data.CreatedAt != nil {
		createdAt = *data.CreatedAt
	}
	expiresAt := createdAt.Add(h.cfg.DefaultTTL)
	if data.ExpiresAt != nil {
		expiresAt = *data.ExpiresAt
	}

	return models.PendingRequest{
		RequestID:          data.RequestID,
		RecipientPublicKey: data.PublicKey,
		ExpectedSenderHint: data.ExpectedSender,
		SenderPattern:      senderPattern,
		AcceptedSources:    slices.Clone(sources),
		CreatedAt:          createdAt,
		ExpiresAt:          expiresAt,
	}, nil
}

func (h *Handler) retire(event string, raw json.RawMessage) error {
	var data retireData
	if err := decodeData(raw, &data); err != nil {
		return err
	}
	if data.RequestID == "" {
		return fmt.Errorf("%w: requestId is required", ErrValidation)
	}

	removed := h.registry.Remove(data.RequestID)
	h.logger.Info("request retired", "otp_request_id", data.RequestID, "event", event, "was_pending", removed)
	return nil
}

func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("%w: data is required", ErrValidation)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: malformed data", ErrValidation)
	}
	return nil
}
