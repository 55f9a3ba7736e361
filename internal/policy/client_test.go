package policy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/otprelay/pkg/models"
)

func TestNewSubmission(t *testing.T) {
	received := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	env := &models.EncryptedEnvelope{Version: 1, Algorithm: "RSA-OAEP-256", Ciphertext: "Y2lwaGVy", ProducedAt: "2026-10-16T08:00:01Z"}

	t.Run("email", func(t *testing.T) {
		sub, err := NewSubmission(&models.MatchedOTP{
			Source: models.SourceEmail, SourceMessageID: "42", SenderRaw: "noreply@acme.com",
			SubjectRaw: "Your code", ReceivedAt: received, Confidence: 0.9,
		}, env)
		require.NoError(t, err)

		assert.Equal(t, models.SourceEmail, sub.Source)
		assert.Equal(t, "42", sub.Metadata.EmailID)
		assert.Empty(t, sub.Metadata.SMSID)
		assert.Equal(t, "2026-10-16T08:00:00Z", sub.Metadata.ReceivedAt)

		var decoded models.EncryptedEnvelope
		require.NoError(t, json.Unmarshal([]byte(sub.EncryptedPayload), &decoded))
		assert.Equal(t, *env, decoded)
	})

	t.Run("sms", func(t *testing.T) {
		sub, err := NewSubmission(&models.MatchedOTP{Source: models.SourceSMS, SourceMessageID: "sms-1", ReceivedAt: received}, env)
		require.NoError(t, err)
		assert.Equal(t, "sms-1", sub.Metadata.SMSID)
		assert.Empty(t, sub.Metadata.EmailID)
	})
}

func TestSubmitOTP(t *testing.T) {
	t.Run("posts to receive endpoint with bearer token", func(t *testing.T) {
		var gotPath, gotAuth string
		var gotBody map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotAuth = r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			w.WriteHeader(http.StatusAccepted)
		}))
		defer srv.Close()

		c := NewClient(Config{BaseURL: srv.URL + "/", Token: "tok"})
		err := c.SubmitOTP(context.Background(), "req-1", Submission{EncryptedPayload: "{}", Source: "email", Metadata: Metadata{From: "a@b.c"}})
		require.NoError(t, err)

		assert.Equal(t, "/v1/otp/req-1/receive", gotPath)
		assert.Equal(t, "Bearer tok", gotAuth)
		assert.Equal(t, "email", gotBody["source"])
		meta := gotBody["metadata"].(map[string]any)
		assert.Equal(t, "a@b.c", meta["from"])
		assert.NotContains(t, meta, "subject")
	})

	t.Run("non-2xx is a rejection", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "request not pending", http.StatusConflict)
		}))
		defer srv.Close()

		err := NewClient(Config{BaseURL: srv.URL, Token: "tok"}).SubmitOTP(context.Background(), "req-1", Submission{})
		require.ErrorIs(t, err, ErrDeliveryRejected)

		var rejected *RejectedError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, http.StatusConflict, rejected.StatusCode)
		assert.Equal(t, "request not pending", rejected.Body)
	})
}
