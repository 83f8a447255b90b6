package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Webhook ingestion metrics, labeled by channel and outcome
	// (applied, skipped_unknown_id, skipped_stale, best_effort, failed).
	WebhookEventsTotal  *prometheus.CounterVec
	WebhookBatchSize    *prometheus.HistogramVec
	WebhookProcessingMs *prometheus.HistogramVec

	// Outbox related metrics
	OutboxEventsProcessed prometheus.Counter
	OutboxEventsFailed    prometheus.Counter
	OutboxPublishLatency  prometheus.Histogram
	OutboxRetries         *prometheus.CounterVec

	// Client aggregation metrics
	TrackerSubscriptions prometheus.Gauge
	TrackerEventsTotal   *prometheus.CounterVec

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		WebhookEventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "webhook_events_total",
			Help:      "Webhook events processed, by channel and outcome",
		}, []string{"channel", "outcome"}),
		WebhookBatchSize: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "webhook_batch_size",
			Help:      "Number of events per webhook call",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		}, []string{"channel"}),
		WebhookProcessingMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "webhook_processing_duration_seconds",
			Help:      "Time spent processing one webhook call",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"channel"}),
		OutboxEventsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_events_processed_total",
			Help:      "Total number of successfully published change events",
		}),
		OutboxEventsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of change events that failed to publish",
		}),
		OutboxPublishLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_publish_duration_seconds",
			Help:      "Time spent publishing a batch of change events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		OutboxRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_retry_attempts_total",
			Help:      "Number of publish retries per event type",
		}, []string{"event_type"}),
		TrackerSubscriptions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tracker_active_subscriptions",
			Help:      "Currently active delivery tracker subscriptions",
		}),
		TrackerEventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tracker_events_total",
			Help:      "Change events consumed by trackers, by channel and outcome",
		}, []string{"channel", "outcome"}),
		DatabaseOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operations_total",
			Help:      "Database operations, by operation and result",
		}, []string{"operation", "result"}),
	}
}
