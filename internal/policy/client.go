// Package policy is the client for the external policy API that receives
// sealed codes.
package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mixelka/otprelay/pkg/models"
)

// ErrDeliveryRejected is returned when the policy API answers with a non-2xx status
var ErrDeliveryRejected = errors.New("delivery rejected")

// maxErrorBody bounds how much of an error response is kept
const maxErrorBody = 4 << 10

// RejectedError carries the policy API's non-2xx response
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("policy API rejected submission: status %d: %s", e.StatusCode, e.Body)
}

func (e *RejectedError) Unwrap() error {
	return ErrDeliveryRejected
}

// Config for the policy API client
type Config struct {
	BaseURL string // e.g., https://policy.example.com
	Token   string // bearer token
	Timeout time.Duration
}

// Client is a policy API client
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Metadata is the non-secret context sent alongside a sealed code
type Metadata struct {
	EmailID    string  `json:"emailId,omitempty"`
	SMSID      string  `json:"smsId,omitempty"`
	From       string  `json:"from"`
	Subject    string  `json:"subject,omitempty"`
	ReceivedAt string  `json:"receivedAt"`
	Confidence float64 `json:"confidence"`
}

// Submission is the body of a receive-OTP call
type Submission struct {
	EncryptedPayload string   `json:"encryptedPayload"` // JSON-encoded envelope
	Source           string   `json:"source"`
	Metadata         Metadata `json:"metadata"`
}

// NewClient creates a new policy API client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewSubmission builds the receive-OTP body for a match and its envelope
func NewSubmission(match *models.MatchedOTP, env *models.EncryptedEnvelope) (Submission, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return Submission{}, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	meta := Metadata{
		From:       match.SenderRaw,
		Subject:    match.SubjectRaw,
		ReceivedAt: match.ReceivedAt.UTC().Format(time.RFC3339),
		Confidence: match.Confidence,
	}
	if match.Source == models.SourceSMS {
		meta.SMSID = match.SourceMessageID
	} else {
		meta.EmailID = match.SourceMessageID
	}

	return Submission{
		EncryptedPayload: string(payload),
		Source:           match.Source,
		Metadata:         meta,
	}, nil
}

// SubmitOTP posts a sealed code for requestID
func (c *Client) SubmitOTP(ctx context.Context, requestID string, sub Submission) error {
	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := c.baseURL + "/v1/otp/" + url.PathEscape(requestID) + "/receive"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &RejectedError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
