// Package webhook exposes the HTTP ingress of the relay: lifecycle events from
// the policy service, inbound SMS, health and metrics.
package webhook

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mixelka/otprelay/internal/metrics"
	"github.com/mixelka/otprelay/internal/registry"
	"github.com/mixelka/otprelay/internal/source"
)

const (
	DefaultSecretHeader = "X-Webhook-Secret"
	maxBodyBytes        = 64 << 10
)

// Config for the webhook handler
type Config struct {
	Secret         string
	SecretHeader   string        // defaults to X-Webhook-Secret
	DefaultTTL     time.Duration // used when an approved request has no expiresAt
	EnabledSources []string      // default accepted sources of an approved request
}

// Deps dependencies for creating a handler
type Deps struct {
	Registry *registry.Registry
	Inbox    *source.SMSInbox      // nil when the SMS source is disabled
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer // served on /metrics when set
	Logger   *slog.Logger
}

// Handler serves the relay's HTTP endpoints
type Handler struct {
	cfg      Config
	registry *registry.Registry
	inbox    *source.SMSInbox
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a handler
func New(cfg Config, deps Deps) *Handler {
	if cfg.SecretHeader == "" {
		cfg.SecretHeader = DefaultSecretHeader
	}
	return &Handler{
		cfg:      cfg,
		registry: deps.Registry,
		inbox:    deps.Inbox,
		metrics:  deps.Metrics,
		gatherer: deps.Gatherer,
		now:      time.Now,
		logger:   deps.Logger.With("component", "webhook"),
	}
}

// Router builds the full route tree
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.accessLog)

	r.Get("/healthz", h.handleHealth)
	if h.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
	h.Register(r)
	return r
}

// Register mounts the authenticated webhook routes on r
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.requireSecret)
		r.Post("/v1/webhooks/lifecycle", h.handleLifecycle)
		r.Post("/v1/webhooks/sms", h.handleSMS)
	})
}

// requireSecret rejects requests without the shared secret before the body is read
func (h *Handler) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(h.cfg.SecretHeader)
		if h.cfg.Secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.cfg.Secret)) != 1 {
			h.logger.WarnContext(r.Context(), "webhook secret mismatch",
				"request_id", middleware.GetReqID(r.Context()),
				"path", r.URL.Path,
			)
			writeError(w, ErrUnauthorized)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.DebugContext(r.Context(), "http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, response{Success: true})
}
