// Package metrics provides Prometheus metrics definitions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pizzeria"

var (
	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route", "status_code"},
	)

	// DBPoolConnections tracks PostgreSQL connection pool state.
	DBPoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "pool_connections",
			Help:      "Number of database connections by state",
		},
		[]string{"state"},
	)

	// MongoPoolEvents counts MongoDB connection pool events by type.
	MongoPoolEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mongo",
			Name:      "pool_events_total",
			Help:      "MongoDB connection pool events by type",
		},
		[]string{"type"},
	)

	// OrderBulkOutcomes counts bulk order operations by outcome.
	OrderBulkOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "bulk_outcomes_total",
			Help:      "Bulk order operations by operation and outcome (full, partial, none, failed)",
		},
		[]string{"operation", "outcome"},
	)
)

// RecordBulkOutcome increments the bulk outcome counter.
func RecordBulkOutcome(operation, outcome string) {
	OrderBulkOutcomes.WithLabelValues(operation, outcome).Inc()
}
