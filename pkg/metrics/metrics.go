package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API metrics
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
	APIRequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// GraphQL metrics
	GraphQLOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphql_operation_duration_seconds",
			Help:    "GraphQL operation duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind", "operation", "status"},
	)
	ResolverErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphql_resolver_errors_total",
			Help: "Resolver errors by field and code",
		},
		[]string{"field", "code"},
	)

	// Subscription metrics
	ActiveSubscriptions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pubsub_active_subscriptions",
			Help: "Currently open subscriptions per topic",
		},
		[]string{"topic"},
	)
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pubsub_events_published_total",
			Help: "Events published per topic",
		},
		[]string{"topic"},
	)
	EventsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pubsub_events_delivered_total",
			Help: "Events handed to subscriber channels",
		},
		[]string{"topic"},
	)
	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pubsub_events_dropped_total",
			Help: "Events dropped because a subscriber fell behind",
		},
		[]string{"topic"},
	)
	WebSocketConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_websocket_connections",
			Help: "Open GraphQL websocket connections",
		})

	// Record store metrics
	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Record store operation duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation", "status"},
	)
	StoreErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_errors_total",
			Help: "Record store errors",
		},
		[]string{"backend", "operation"},
	)

	// Redis metrics
	RedisOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)
	RedisErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_errors_total",
			Help: "Total Redis errors",
		},
		[]string{"operation"},
	)

	// Database metrics
	DatabaseHealthCheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "database_health_check_duration_seconds",
			Help:    "Database health check duration",
			Buckets: prometheus.DefBuckets,
		})
	DatabaseHealthCheckErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "database_health_check_errors_total",
			Help: "Total database health check errors",
		})

	// Authorization metrics
	AuthDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_decisions_total",
			Help: "Capability checks by capability and outcome",
		},
		[]string{"capability", "outcome"},
	)
	AuthTokenErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_errors_total",
			Help: "Rejected bearer tokens",
		},
		[]string{"reason"},
	)
)

func init() {
	// MustRegister panics if registration fails (e.g. duplicate)
	prometheus.MustRegister(
		APIRequestDuration, APIRequestTotal,
		GraphQLOperationDuration, ResolverErrors,
		ActiveSubscriptions, EventsPublished, EventsDelivered, EventsDropped, WebSocketConnections,
		StoreOperationDuration, StoreErrors,
		RedisOperationDuration, RedisErrors,
		DatabaseHealthCheckDuration, DatabaseHealthCheckErrors,
		AuthDecisions, AuthTokenErrors,
	)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Status maps an error to the status label used across collectors.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
