// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

// Package metrics provides Prometheus instrumentation for the bridge:
// vendor API request performance, token refresh outcomes, circuit breaker
// state, fleet batch operations and the local HTTP API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Vendor API metrics
	VendorRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raven_vendor_requests_total",
			Help: "Total number of requests issued to the Raven vendor API",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	VendorRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raven_vendor_request_duration_seconds",
			Help:    "Vendor API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	VendorRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raven_vendor_request_errors_total",
			Help: "Total number of transport-level vendor API failures",
		},
		[]string{"endpoint"},
	)

	VendorRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raven_vendor_rate_limit_hits_total",
			Help: "Total number of HTTP 429 responses from the vendor API",
		},
		[]string{"endpoint"},
	)

	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raven_token_refreshes_total",
			Help: "Total number of bearer token refresh attempts",
		},
		[]string{"outcome"}, // "success" or "failure"
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "raven_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raven_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raven_circuit_breaker_requests_total",
			Help: "Total number of requests through the circuit breaker",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "raven_circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive circuit breaker failures",
		},
		[]string{"name"},
	)

	// Fleet batch metrics
	BatchOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raven_fleet_batch_operations_total",
			Help: "Total number of fleet batch operations",
		},
		[]string{"operation", "outcome"},
	)

	BatchItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raven_fleet_batch_items_total",
			Help: "Total number of items processed by fleet batch operations",
		},
		[]string{"operation", "outcome"},
	)

	PoolInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "raven_pool_in_flight",
			Help: "Number of batch items currently being processed by the task runner",
		},
	)

	PollerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raven_fleet_poller_runs_total",
			Help: "Total number of fleet snapshot poller runs",
		},
		[]string{"outcome"},
	)

	// Local HTTP API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raven_api_requests_total",
			Help: "Total number of local API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raven_api_request_duration_seconds",
			Help:    "Local API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "raven_api_active_requests",
			Help: "Current number of active local API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raven_api_rate_limit_hits_total",
			Help: "Total number of local API rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// WebSocket metrics
	WebsocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "raven_websocket_connections",
			Help: "Current number of connected dashboard websocket clients",
		},
	)

	WebsocketBroadcasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raven_websocket_broadcasts_total",
			Help: "Total number of snapshot broadcasts to websocket clients",
		},
	)

	// Audit metrics
	AuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raven_audit_events_total",
			Help: "Total number of audit events recorded",
		},
		[]string{"type"},
	)

	AuditEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raven_audit_events_dropped_total",
			Help: "Total number of audit events dropped due to a full buffer",
		},
	)
)

// ObserveAPIRequest records a completed local API request.
func ObserveAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
