package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery outcomes
const (
	OutcomeDelivered       = "delivered"
	OutcomeEncryptionError = "encryption_error"
	OutcomeRejected        = "rejected"
	OutcomeTransportError  = "transport_error"
)

// Metrics holds the Prometheus collectors for the relay. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	PendingRequests     prometheus.Gauge
	MessagesScanned     *prometheus.CounterVec
	CandidatesExtracted *prometheus.CounterVec
	Matches             *prometheus.CounterVec
	Deliveries          *prometheus.CounterVec
	Expired             prometheus.Counter
	CursorResets        *prometheus.CounterVec
	PollErrors          *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PendingRequests: factory.NewGauge(prometheus.GaugeOpts{
			Name: "otprelay_pending_requests",
			Help: "Current number of pending OTP requests",
		}),
		MessagesScanned: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "otprelay_messages_scanned_total",
			Help: "Total number of inbound messages scanned for codes",
		}, []string{"source"}),
		CandidatesExtracted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "otprelay_candidates_extracted_total",
			Help: "Total number of code candidates extracted, by rule",
		}, []string{"pattern"}),
		Matches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "otprelay_matches_total",
			Help: "Total number of candidates matched to a pending request",
		}, []string{"source"}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "otprelay_deliveries_total",
			Help: "Total number of delivery attempts, by outcome",
		}, []string{"outcome"}),
		Expired: factory.NewCounter(prometheus.CounterOpts{
			Name: "otprelay_expired_total",
			Help: "Total number of pending requests evicted by the sweeper",
		}),
		CursorResets: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "otprelay_cursor_resets_total",
			Help: "Total number of cursor re-baselines after the source invalidated the cursor",
		}, []string{"source"}),
		PollErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "otprelay_poll_errors_total",
			Help: "Total number of failed poll ticks",
		}, []string{"source"}),
	}
}

// SetPending records the number of pending requests
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.PendingRequests.Set(float64(n))
}

// IncScanned counts a message fetched from source
func (m *Metrics) IncScanned(source string) {
	if m == nil {
		return
	}
	m.MessagesScanned.WithLabelValues(source).Inc()
}

// IncCandidate counts a code candidate produced by pattern
func (m *Metrics) IncCandidate(pattern string) {
	if m == nil {
		return
	}
	m.CandidatesExtracted.WithLabelValues(pattern).Inc()
}

// IncMatch counts a request consumed by a message from source
func (m *Metrics) IncMatch(source string) {
	if m == nil {
		return
	}
	m.Matches.WithLabelValues(source).Inc()
}

// IncDelivery counts a delivery attempt by outcome
func (m *Metrics) IncDelivery(outcome string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(outcome).Inc()
}

// AddExpired counts requests retired by the sweeper
func (m *Metrics) AddExpired(n int) {
	if m == nil {
		return
	}
	m.Expired.Add(float64(n))
}

// IncCursorReset counts a re-baseline of source
func (m *Metrics) IncCursorReset(source string) {
	if m == nil {
		return
	}
	m.CursorResets.WithLabelValues(source).Inc()
}

// IncPollError counts a failed poll tick of source
func (m *Metrics) IncPollError(source string) {
	if m == nil {
		return
	}
	m.PollErrors.WithLabelValues(source).Inc()
}
