// Package registry holds the pending OTP requests that are waiting for a code.
//
// The registry is the only state shared between webhook handlers, pollers and
// the expiry sweeper. Every exported method takes the same lock and performs
// no I/O while holding it, so a request id is retired by exactly one of
// match, explicit removal or expiry.
package registry

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mixelka/otprelay/internal/parser"
	"github.com/mixelka/otprelay/pkg/models"
)

// arrivalSkew is how far a message may predate a request and still satisfy it
const arrivalSkew = 30 * time.Second

// ErrInvalidRequest is returned when a request cannot be registered
var ErrInvalidRequest = errors.New("invalid pending request")

// Registry is a synchronized set of pending requests keyed by request id
type Registry struct {
	mu      sync.Mutex
	entries map[string]*models.PendingRequest
	now     func() time.Time
}

// Option configures a Registry
type Option func(*Registry)

// WithClock overrides the clock used to skip requests past their deadline
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New creates an empty registry
func New(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*models.PendingRequest),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers a request. Re-adding an id replaces the previous entry.
func (r *Registry) Add(req models.PendingRequest) error {
	if req.RequestID == "" {
		return fmt.Errorf("%w: request id is required", ErrInvalidRequest)
	}
	if req.RecipientPublicKey == "" {
		return fmt.Errorf("%w: public key is required", ErrInvalidRequest)
	}
	if !req.ExpiresAt.After(req.CreatedAt) {
		return fmt.Errorf("%w: expiresAt must be after createdAt", ErrInvalidRequest)
	}
	if len(req.AcceptedSources) == 0 {
		return fmt.Errorf("%w: at least one source is required", ErrInvalidRequest)
	}

	entry := req
	entry.AcceptedSources = slices.Clone(req.AcceptedSources)

	r.mu.Lock()
	r.entries[entry.RequestID] = &entry
	r.mu.Unlock()
	return nil
}

// Remove deletes a request. It reports whether the id was present; removing
// an absent id is not an error.
func (r *Registry) Remove(requestID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[requestID]; !ok {
		return false
	}
	delete(r.entries, requestID)
	return true
}

// FindAndConsumeMatch finds the oldest request that accepts msg and passes
// its sender filters, removes it and returns the match. Messages received
// before a request was created do not satisfy it. It returns nil when
// nothing matches. Selection and removal happen under one lock.
func (r *Registry) FindAndConsumeMatch(candidate models.ExtractedCandidate, msg *models.SourceMessage) *models.MatchedOTP {
	content := strings.Join([]string{msg.From, msg.FromName, msg.Subject, msg.Body}, " ")

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, entry := range r.ordered() {
		if !entry.Accepts(msg.Source) || entry.ExpiredAt(now) {
			continue
		}
		if !msg.ReceivedAt.IsZero() && msg.ReceivedAt.Before(entry.CreatedAt.Add(-arrivalSkew)) {
			continue
		}
		if entry.SenderPattern != "" && !parser.MatchesPattern(msg.From, entry.SenderPattern) {
			continue
		}
		if entry.ExpectedSenderHint != "" && !parser.MentionsSender(content, entry.ExpectedSenderHint) {
			continue
		}

		delete(r.entries, entry.RequestID)
		return &models.MatchedOTP{
			RequestID:          entry.RequestID,
			Code:               candidate.Code,
			Confidence:         candidate.Confidence,
			Source:             msg.Source,
			SourceMessageID:    msg.ID,
			SenderRaw:          msg.From,
			SubjectRaw:         msg.Subject,
			ReceivedAt:         msg.ReceivedAt,
			RecipientPublicKey: entry.RecipientPublicKey,
		}
	}
	return nil
}

// SweepExpired removes every request with ExpiresAt <= now and returns their ids
func (r *Registry) SweepExpired(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []string
	for id, entry := range r.entries {
		if entry.ExpiredAt(now) {
			expired = append(expired, id)
			delete(r.entries, id)
		}
	}
	slices.Sort(expired)
	return expired
}

// Len returns the number of pending requests
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Snapshot returns copies of all pending requests, oldest first
func (r *Registry) Snapshot() []models.PendingRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.PendingRequest, 0, len(r.entries))
	for _, entry := range r.ordered() {
		cp := *entry
		cp.AcceptedSources = slices.Clone(entry.AcceptedSources)
		out = append(out, cp)
	}
	return out
}

// ordered returns entries by creation time, then id. Caller holds mu.
func (r *Registry) ordered() []*models.PendingRequest {
	entries := make([]*models.PendingRequest, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	slices.SortFunc(entries, func(a, b *models.PendingRequest) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.RequestID, b.RequestID)
	})
	return entries
}
