// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Event store metrics
	EventsAppended *prometheus.CounterVec
	EventsRejected *prometheus.CounterVec

	// Ingestion metrics
	FeedMessages       prometheus.Counter
	FeedReconnects     prometheus.Counter
	BackfillsTriggered prometheus.Counter
	WSMessageLatency   prometheus.Histogram

	// Snapshot metrics
	SnapshotsWritten       prometheus.Counter
	BatchRunsTotal         *prometheus.CounterVec
	BatchDuration          prometheus.Histogram
	BatchEntityFailures    prometheus.Counter
	VerificationDivergence prometheus.Counter

	// Query metrics
	QueriesTotal *prometheus.CounterVec
	QueryLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulIngestion prometheus.Gauge
	LastSuccessfulBatch     prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "nba_temporal_panel"
	}

	return &Metrics{
		// Event store metrics
		EventsAppended: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "appended_total",
			Help:      "Total number of events appended by source",
		}, []string{"source"}),
		EventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "rejected_total",
			Help:      "Total number of events rejected at append by reason",
		}, []string{"reason"}),

		// Ingestion metrics
		FeedMessages: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "feed_messages_total",
			Help:      "Total number of messages read from ingestion feeds",
		}),
		FeedReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "feed_reconnects_total",
			Help:      "Total number of WebSocket feed reconnects",
		}),
		BackfillsTriggered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "backfills_triggered_total",
			Help:      "Total number of entity snapshot backfills triggered by late events",
		}),
		WSMessageLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "ws_message_latency_seconds",
			Help:      "WebSocket message processing latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Snapshot metrics
		SnapshotsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "written_total",
			Help:      "Total number of snapshots written",
		}),
		BatchRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "batch_runs_total",
			Help:      "Total number of snapshot batch runs by status",
		}, []string{"status"}),
		BatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "batch_duration_seconds",
			Help:      "Snapshot batch duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		BatchEntityFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "entity_failures_total",
			Help:      "Total number of entities that failed during batch generation",
		}),
		VerificationDivergence: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "verification_divergences_total",
			Help:      "Total number of stored snapshots that differ from a recomputation",
		}),

		// Query metrics
		QueriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "total",
			Help:      "Total number of point-in-time queries by path and outcome",
		}, []string{"path", "outcome"}),
		QueryLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "latency_seconds",
			Help:      "Point-in-time query latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulIngestion: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingestion_timestamp",
			Help:      "Unix timestamp of last successful ingestion",
		}),
		LastSuccessfulBatch: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_batch_timestamp",
			Help:      "Unix timestamp of last snapshot batch without failures",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEventAppended increments the appended counter for a source.
func RecordEventAppended(source string) {
	DefaultMetrics.EventsAppended.WithLabelValues(source).Inc()
}

// RecordEventRejected records an event rejected at append.
func RecordEventRejected(reason string) {
	DefaultMetrics.EventsRejected.WithLabelValues(reason).Inc()
}

// RecordFeedMessage records one message read from a feed.
func RecordFeedMessage() {
	DefaultMetrics.FeedMessages.Inc()
}

// RecordFeedReconnect records a feed reconnect.
func RecordFeedReconnect() {
	DefaultMetrics.FeedReconnects.Inc()
}

// RecordBackfill records a snapshot backfill triggered by a late event.
func RecordBackfill() {
	DefaultMetrics.BackfillsTriggered.Inc()
}

// RecordWSMessageLatency records the time spent handling one WebSocket message.
func RecordWSMessageLatency(seconds float64) {
	DefaultMetrics.WSMessageLatency.Observe(seconds)
}

// RecordSnapshotsWritten adds n to the snapshots written counter.
func RecordSnapshotsWritten(n int) {
	DefaultMetrics.SnapshotsWritten.Add(float64(n))
}

// RecordBatchRun records a batch run. Status is "ok" or "partial".
func RecordBatchRun(status string, durationSeconds float64, failures int) {
	DefaultMetrics.BatchRunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.BatchDuration.Observe(durationSeconds)
	DefaultMetrics.BatchEntityFailures.Add(float64(failures))
}

// RecordVerificationDivergence records a snapshot that failed verification.
func RecordVerificationDivergence() {
	DefaultMetrics.VerificationDivergence.Inc()
}

// RecordQuery records query latency and outcome. Path is "snapshot" or "slow".
func RecordQuery(path, outcome string, seconds float64) {
	DefaultMetrics.QueriesTotal.WithLabelValues(path, outcome).Inc()
	DefaultMetrics.QueryLatency.WithLabelValues(path).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// MarkIngestionSuccess sets the last successful ingestion timestamp.
func MarkIngestionSuccess(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulIngestion.Set(float64(unixSeconds))
}

// MarkBatchSuccess sets the last successful batch timestamp.
func MarkBatchSuccess(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulBatch.Set(float64(unixSeconds))
}
