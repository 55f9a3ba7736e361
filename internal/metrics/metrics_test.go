package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetPending(3)
	m.IncMatch("email")
	m.IncMatch("email")
	m.IncDelivery(OutcomeRejected)
	m.AddExpired(2)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.PendingRequests))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Matches.WithLabelValues("email")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues(OutcomeRejected)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Expired))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetPending(1)
		m.IncScanned("sms")
		m.IncCandidate("keyword_en")
		m.IncCursorReset("email")
		m.IncPollError("email")
	})
}
