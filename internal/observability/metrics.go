package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Views server metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Views HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of views HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Backend API metrics
	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trip_client_request_duration_seconds",
			Help:    "Backend API round trip latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method"},
	)

	BackendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trip_client_requests_total",
			Help: "Total number of backend API requests by status code",
		},
		[]string{"method", "status"},
	)

	TokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trip_client_token_refresh_total",
			Help: "Access token refresh attempts by result",
		},
		[]string{"result"},
	)

	// State layer metrics
	StateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trip_client_state_transitions_total",
			Help: "State events published on the client event bus",
		},
		[]string{"kind"},
	)

	StaleResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trip_client_stale_responses_total",
			Help: "Responses discarded because a newer request superseded them",
		},
		[]string{"component"},
	)

	EventsFannedOutTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trip_client_events_fanned_out_total",
			Help: "State events published to the message broker by result",
		},
		[]string{"result"},
	)

	WebSocketMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "State-feed messages queued to WebSocket clients",
		},
		[]string{"type"},
	)

	WebSocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active state-feed WebSocket connections",
		},
	)
)
