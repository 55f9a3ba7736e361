package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mixelka/otprelay/internal/source"
)

type inboundSMS struct {
	ID         string     `json:"id"`
	From       string     `json:"from"`
	Body       string     `json:"body"`
	ReceivedAt *time.Time `json:"receivedAt"`
}

func (h *Handler) handleSMS(w http.ResponseWriter, r *http.Request) {
	if h.inbox == nil {
		writeJSON(w, http.StatusNotFound, response{Error: "sms source is disabled"})
		return
	}

	var body inboundSMS
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, fmt.Errorf("%w: malformed body", ErrValidation))
		return
	}
	if strings.TrimSpace(body.From) == "" || strings.TrimSpace(body.Body) == "" {
		writeError(w, fmt.Errorf("%w: from and body are required", ErrValidation))
		return
	}

	sms := source.InboundSMS{ID: body.ID, From: body.From, Body: body.Body}
	if body.ReceivedAt != nil {
		sms.ReceivedAt = *body.ReceivedAt
	}
	id, err := h.inbox.Append(sms)
	if errors.Is(err, source.ErrDuplicateMessage) {
		writeJSON(w, http.StatusConflict, response{Error: "duplicate message id"})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Debug("sms received", "message_id", id, "from", body.From)
	writeJSON(w, http.StatusOK, response{Success: true, ID: id})
}
