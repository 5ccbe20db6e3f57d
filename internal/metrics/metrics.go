package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotel_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hotel_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Relay
	RelayConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_connections",
			Help: "Open relay connections",
		},
		[]string{"transport"},
	)

	RelayEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_total",
			Help: "Inbound relay events by name",
		},
		[]string{"event"},
	)

	MessagesRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_total",
			Help: "Messages broadcast by the relay",
		},
		[]string{"kind"}, // "guest", "staff" or "system"
	)

	StoreFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_store_failures_total",
			Help: "Message store operations that failed",
		},
		[]string{"op"},
	)

	SlowConsumersEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_slow_consumers_evicted_total",
			Help: "Connections dropped because their send buffer was full",
		},
	)

	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_store_latency_seconds",
			Help:    "Message store operation latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .5, 1, 3},
		},
		[]string{"op"},
	)

	// Store connection pool, sampled periodically.
	PoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "store_pool_connections",
			Help: "Message store pool connections by state",
		},
		[]string{"state"}, // "acquired", "idle", "total", "max"
	)

	// Collaborators
	BookingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_requests_total",
			Help: "Booking form submissions by outcome",
		},
		[]string{"outcome"},
	)

	AdminLogins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_logins_total",
			Help: "Admin login attempts by outcome",
		},
		[]string{"outcome"},
	)

	ReviewsParsed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reviews_parsed",
			Help: "Reviews parsed from each CSV source on the last load",
		},
		[]string{"source"},
	)
)
