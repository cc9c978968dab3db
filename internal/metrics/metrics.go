// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tessera"

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	// Operations counts unit outcomes; result is "ok" or an error code.
	Operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Card operations by name and result.",
	}, []string{"operation", "result"})

	TokenVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_verifications_total",
		Help:      "Token verification results.",
	}, []string{"result"})

	SalesRevenue = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sales_revenue_euros_total",
		Help:      "Sum of committed sale prices. Annulments are not subtracted.",
	})

	DBConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_connections",
		Help:      "Database pool connections by state.",
	}, []string{"state"})

	DBWaitSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_wait_seconds",
		Help:      "Cumulative time spent waiting for a pool connection.",
	})

	PublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_publish_failures_total",
		Help:      "Domain events that could not be published.",
	}, []string{"subject"})
)

// ObserveOperation records one finished unit.
func ObserveOperation(operation, result string) {
	Operations.WithLabelValues(operation, result).Inc()
}
