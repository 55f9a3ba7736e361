package delivery

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/otprelay/internal/envelope"
	"github.com/mixelka/otprelay/internal/policy"
	"github.com/mixelka/otprelay/pkg/models"
)

type recordingSink struct {
	mu     sync.Mutex
	events []models.LifecycleEvent
}

func (r *recordingSink) Emit(_ context.Context, e models.LifecycleEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) types() []models.LifecycleEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.LifecycleEventType
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type policyAPI struct {
	status int
	calls  int
	body   policy.Submission
	path   string
}

func (p *policyAPI) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.calls++
		p.path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p.body))
		w.WriteHeader(p.status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return key, base64.StdEncoding.EncodeToString(der)
}

func newDispatcher(srv *httptest.Server, sink *recordingSink) *Dispatcher {
	return New(Deps{
		Sealer:    envelope.New(),
		Submitter: policy.NewClient(policy.Config{BaseURL: srv.URL, Token: "tok"}),
		Sink:      sink,
		Logger:    slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	})
}

func match(publicKey string) *models.MatchedOTP {
	return &models.MatchedOTP{
		RequestID:          "req-1",
		Code:               "123456",
		Confidence:         0.9,
		Source:             models.SourceEmail,
		SourceMessageID:    "77",
		SenderRaw:          "noreply@acme.com",
		SubjectRaw:         "Your code",
		ReceivedAt:         time.Date(2026, 10, 16, 7, 0, 0, 0, time.UTC),
		RecipientPublicKey: publicKey,
	}
}

func TestDeliver_Success(t *testing.T) {
	key, publicKey := newKey(t)
	api := &policyAPI{status: http.StatusOK}
	sink := &recordingSink{}

	result, err := newDispatcher(api.server(t), sink).Deliver(context.Background(), match(publicKey))
	require.NoError(t, err)
	assert.True(t, result.Delivered)

	assert.Equal(t, "/v1/otp/req-1/receive", api.path)
	assert.Equal(t, "77", api.body.Metadata.EmailID)
	assert.Equal(t, "noreply@acme.com", api.body.Metadata.From)
	assert.NotContains(t, api.body.EncryptedPayload, "123456")

	var env models.EncryptedEnvelope
	require.NoError(t, json.Unmarshal([]byte(api.body.EncryptedPayload), &env))
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	require.NoError(t, err)
	plaintext, err := rsa.DecryptOAEP(sha256.New(), nil, key, ciphertext, nil)
	require.NoError(t, err)
	assert.Equal(t, "123456", string(plaintext))

	assert.Equal(t, []models.LifecycleEventType{models.EventDelivered}, sink.types())
}

func TestDeliver_Rejected(t *testing.T) {
	_, publicKey := newKey(t)
	api := &policyAPI{status: http.StatusGone}
	sink := &recordingSink{}

	result, err := newDispatcher(api.server(t), sink).Deliver(context.Background(), match(publicKey))
	require.ErrorIs(t, err, policy.ErrDeliveryRejected)
	assert.False(t, result.Delivered)
	assert.Equal(t, 1, api.calls, "no automatic retry")
	assert.Equal(t, []models.LifecycleEventType{models.EventDeliveryFailed}, sink.types())
}

func TestDeliver_EncryptionError(t *testing.T) {
	api := &policyAPI{status: http.StatusOK}
	sink := &recordingSink{}

	result, err := newDispatcher(api.server(t), sink).Deliver(context.Background(), match("not-a-key"))
	require.ErrorIs(t, err, envelope.ErrEncryption)
	assert.False(t, result.Delivered)
	assert.Zero(t, api.calls, "nothing is submitted when sealing fails")
	assert.Equal(t, []models.LifecycleEventType{models.EventDeliveryFailed}, sink.types())
}
