package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"
)

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string         `json:"status"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// BrokerStatus is the part of the RabbitMQ connection the readiness probe checks
type BrokerStatus interface {
	IsClosed() bool
}

// BackendPinger checks that the trip-planner backend answers
type BackendPinger interface {
	Ping(ctx context.Context) error
}

// Ready checks the optional dependencies in parallel. A nil db or broker is
// reported as disabled and does not fail readiness.
func Ready(db *sql.DB, broker BrokerStatus, backend BackendPinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		dbResult := make(chan HealthCheckResult, 1)
		brokerResult := make(chan HealthCheckResult, 1)
		backendResult := make(chan HealthCheckResult, 1)

		go func() { dbResult <- checkDatabase(ctx, db) }()
		go func() { brokerResult <- checkRabbitMQ(broker) }()
		go func() { backendResult <- checkBackend(ctx, backend) }()

		checks := map[string]HealthCheckResult{
			"database": <-dbResult,
			"rabbitmq": <-brokerResult,
			"backend":  <-backendResult,
		}

		status, code := "ready", http.StatusOK
		for _, c := range checks {
			if c.Status == "down" {
				status, code = "not_ready", http.StatusServiceUnavailable
			}
		}

		writeJSON(w, code, map[string]any{
			"status":    status,
			"timestamp": time.Now().Format(time.RFC3339),
			"checks":    checks,
		})
	}
}

func checkDatabase(ctx context.Context, db *sql.DB) HealthCheckResult {
	if db == nil {
		return HealthCheckResult{Status: "disabled"}
	}

	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)
	if err != nil {
		return HealthCheckResult{Status: "down", LatencyMs: latency.Milliseconds(), Error: err.Error()}
	}

	stats := db.Stats()
	return HealthCheckResult{
		Status:    "up",
		LatencyMs: latency.Milliseconds(),
		Metadata: map[string]any{
			"connections_open":   stats.OpenConnections,
			"connections_in_use": stats.InUse,
			"connections_idle":   stats.Idle,
			"max_open":           stats.MaxOpenConnections,
		},
	}
}

func checkRabbitMQ(broker BrokerStatus) HealthCheckResult {
	if broker == nil {
		return HealthCheckResult{Status: "disabled"}
	}
	if broker.IsClosed() {
		return HealthCheckResult{Status: "down", Error: "connection closed"}
	}
	return HealthCheckResult{Status: "up"}
}

func checkBackend(ctx context.Context, backend BackendPinger) HealthCheckResult {
	if backend == nil {
		return HealthCheckResult{Status: "disabled"}
	}

	start := time.Now()
	if err := backend.Ping(ctx); err != nil {
		return HealthCheckResult{Status: "down", LatencyMs: time.Since(start).Milliseconds(), Error: err.Error()}
	}
	return HealthCheckResult{Status: "up", LatencyMs: time.Since(start).Milliseconds()}
}
