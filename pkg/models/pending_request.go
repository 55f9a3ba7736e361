package models

import (
	"slices"
	"time"
)

// Capture source names
const (
	SourceEmail = "email"
	SourceSMS   = "sms"
)

// PendingRequest is an approved request waiting for a single OTP
type PendingRequest struct {
	RequestID          string    `json:"requestId"`
	RecipientPublicKey string    `json:"-"`                        // base64 SPKI or age1... recipient
	ExpectedSenderHint string    `json:"expectedSender,omitempty"` // weak filter over sender/subject/body
	SenderPattern      string    `json:"senderPattern,omitempty"`  // glob over the raw sender
	AcceptedSources    []string  `json:"sources"`
	CreatedAt          time.Time `json:"createdAt"`
	ExpiresAt          time.Time `json:"expiresAt"`
}

// Accepts reports whether the request accepts codes from the given source
func (r *PendingRequest) Accepts(source string) bool {
	return slices.Contains(r.AcceptedSources, source)
}

// ExpiredAt reports whether the request deadline has passed at t
func (r *PendingRequest) ExpiredAt(t time.Time) bool {
	return !r.ExpiresAt.After(t)
}
