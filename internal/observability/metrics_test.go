package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBackendRequestsTotal(t *testing.T) {
	before := testutil.ToFloat64(BackendRequestsTotal.WithLabelValues("GET", "200"))
	BackendRequestsTotal.WithLabelValues("GET", "200").Inc()
	after := testutil.ToFloat64(BackendRequestsTotal.WithLabelValues("GET", "200"))

	assert.Equal(t, before+1, after)
}

func TestTokenRefreshTotal(t *testing.T) {
	for _, result := range []string{"success", "failure"} {
		t.Run(result, func(t *testing.T) {
			before := testutil.ToFloat64(TokenRefreshTotal.WithLabelValues(result))
			TokenRefreshTotal.WithLabelValues(result).Inc()
			assert.Equal(t, before+1, testutil.ToFloat64(TokenRefreshTotal.WithLabelValues(result)))
		})
	}
}

func TestHistogramsAcceptObservations(t *testing.T) {
	assert.NotPanics(t, func() {
		HTTPRequestDuration.WithLabelValues("GET", "/api/v1/map", "200").Observe(0.02)
		BackendRequestDuration.WithLabelValues("POST").Observe(0.3)
	})
}

func TestStateCounters(t *testing.T) {
	before := testutil.ToFloat64(StaleResponsesTotal.WithLabelValues("persona"))
	StaleResponsesTotal.WithLabelValues("persona").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(StaleResponsesTotal.WithLabelValues("persona")))

	StateTransitionsTotal.WithLabelValues("session.authenticated").Inc()
	assert.GreaterOrEqual(t, testutil.ToFloat64(StateTransitionsTotal.WithLabelValues("session.authenticated")), 1.0)

	WebSocketConnectionsActive.Inc()
	WebSocketConnectionsActive.Dec()
}
