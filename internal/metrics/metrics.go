package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch origins.
const (
	OriginRequest = "request"
	OriginPoll    = "poll"
)

// Fetch outcomes.
const (
	OutcomeSuccess           = "success"
	OutcomeError             = "error"
	OutcomeMissingCapability = "missing_capability"
	OutcomeStale             = "stale"
)

var (
	// Telemetry controller metrics
	TelemetryFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openmct_telemetry_fetches_total",
			Help: "Total number of telemetry fetches by origin and outcome",
		},
		[]string{"origin", "outcome"},
	)

	TelemetryFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openmct_telemetry_fetch_duration_seconds",
			Help:    "Duration of telemetry capability requests",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
		[]string{"origin"},
	)

	TelemetryPendingRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "openmct_telemetry_pending_requests",
			Help: "Tracked telemetry requests currently outstanding across all controllers",
		},
	)

	TelemetryBroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "openmct_telemetry_broadcasts_total",
			Help: "Total number of telemetryUpdate notifications emitted",
		},
	)

	// Export metrics
	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openmct_exports_total",
			Help: "Total number of tree exports by outcome",
		},
		[]string{"outcome"},
	)

	ExportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "openmct_export_duration_seconds",
			Help:    "Duration of tree walks including serialization",
			Buckets: prometheus.DefBuckets,
		},
	)

	ExportObjects = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "openmct_export_objects",
			Help:    "Number of objects in exported trees",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		},
	)

	// HTTP API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openmct_api_requests_total",
			Help: "Total number of API requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openmct_api_request_duration_seconds",
			Help:    "API request latency",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	// Websocket metrics
	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "openmct_websocket_clients",
			Help: "Number of connected websocket clients",
		},
	)
)

// RecordFetch records a settled telemetry fetch.
func RecordFetch(origin, outcome string, duration time.Duration) {
	TelemetryFetchesTotal.WithLabelValues(origin, outcome).Inc()
	if outcome != OutcomeMissingCapability {
		TelemetryFetchDuration.WithLabelValues(origin).Observe(duration.Seconds())
	}
}

// AddPending adjusts the outstanding tracked request gauge.
func AddPending(delta int) {
	TelemetryPendingRequests.Add(float64(delta))
}

// RecordBroadcast records an emitted telemetryUpdate.
func RecordBroadcast() {
	TelemetryBroadcastsTotal.Inc()
}

// RecordExport records a finished export.
func RecordExport(success bool, duration time.Duration, objects int) {
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeError
	}
	ExportsTotal.WithLabelValues(outcome).Inc()
	ExportDuration.Observe(duration.Seconds())
	if success {
		ExportObjects.Observe(float64(objects))
	}
}

// WebsocketClientConnected increments the client gauge.
func WebsocketClientConnected() {
	WebsocketClients.Inc()
}

// WebsocketClientDisconnected decrements the client gauge.
func WebsocketClientDisconnected() {
	WebsocketClients.Dec()
}

// RecordAPIRequest records a served API request. route is the matched mux
// pattern, not the raw path.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
