package models

import "time"

// SourceMessage is an inbound message fetched from a capture source
type SourceMessage struct {
	ID         string    // Source-specific message id (IMAP UID, SMS id)
	Source     string    // "email" or "sms"
	From       string    // Raw sender string (address for email, number or alias for SMS)
	FromName   string    // Display name, if any
	Subject    string    // Empty for SMS
	Body       string    // Plain text body
	ReceivedAt time.Time // When the source received it
}

// ExtractedCandidate is a best-guess code found in a message
type ExtractedCandidate struct {
	Code       string  `json:"code"`       // Normalized, no dashes or whitespace
	Confidence float64 `json:"confidence"` // 0..1
	PatternID  string  `json:"pattern"`    // Rule that fired
}

// MatchedOTP is a code that was matched to, and consumed, a pending request
type MatchedOTP struct {
	RequestID       string
	Code            string
	Confidence      float64
	Source          string
	SourceMessageID string
	SenderRaw       string
	SubjectRaw      string
	ReceivedAt      time.Time

	// RecipientPublicKey is carried over from the consumed request so the
	// registry does not have to be consulted again after removal.
	RecipientPublicKey string `json:"-"`
}
