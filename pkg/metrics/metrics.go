package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	CollaboratorCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collaborator_call_latency_ms",
			Help:    "Scoring/extraction collaborator call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"endpoint", "status"},
	)

	SourceFetchCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_fetch_count",
			Help: "Total number of source fetch attempts",
		},
		[]string{"source_type", "status"}, // status: success, not_modified, transient_error, invalid
	)

	ItemsDiscoveredCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "items_discovered_count",
			Help: "New items persisted per source type (duplicates excluded)",
		},
		[]string{"source_type"},
	)

	ItemProcessedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "item_processed_count",
			Help: "Items leaving the processing worker",
		},
		[]string{"status"}, // status: done, retried, error, skipped
	)

	ReportGeneratedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_generated_count",
			Help: "Reports generated per brief frequency",
		},
		[]string{"frequency"},
	)

	EmailIngestedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_ingested_count",
			Help: "Inbound emails by routing outcome",
		},
		[]string{"outcome"}, // outcome: accepted, unrouted, inactive, extract_failed
	)
)

func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

func RecordCollaboratorCallLatency(endpoint, status string, duration time.Duration) {
	CollaboratorCallLatency.WithLabelValues(endpoint, status).Observe(float64(duration.Milliseconds()))
}

func IncrementSourceFetch(sourceType, status string) {
	SourceFetchCount.WithLabelValues(sourceType, status).Inc()
}

func AddItemsDiscovered(sourceType string, n int) {
	ItemsDiscoveredCount.WithLabelValues(sourceType).Add(float64(n))
}

func IncrementItemProcessed(status string) {
	ItemProcessedCount.WithLabelValues(status).Inc()
}

func IncrementReportGenerated(frequency string) {
	ReportGeneratedCount.WithLabelValues(frequency).Inc()
}

func IncrementEmailIngested(outcome string) {
	EmailIngestedCount.WithLabelValues(outcome).Inc()
}
