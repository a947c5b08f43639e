package ledger

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"agroledger/pkg/domain"
)

// PrometheusRecorder exports service metrics through a Prometheus
// registerer. It implements both MetricsRecorder and SignalRecorder so one
// instance can observe operation outcomes and count emitted signals.
type PrometheusRecorder struct {
	operations  *prometheus.CounterVec
	durations   *prometheus.HistogramVec
	submissions *prometheus.CounterVec
	anomalies   *prometheus.CounterVec
}

// NewPrometheusRecorder constructs a recorder and registers its collectors.
// A nil registerer falls back to the default registry.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agroledger",
			Name:      "operations_total",
			Help:      "Ledger operations by name and outcome.",
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agroledger",
			Name:      "operation_duration_seconds",
			Help:      "Ledger operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agroledger",
			Name:      "submissions_total",
			Help:      "Appended records by kind.",
		}, []string{"kind"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agroledger",
			Name:      "anomaly_signals_total",
			Help:      "Advisory anomaly signals by category.",
		}, []string{"category"}),
	}
	reg.MustRegister(r.operations, r.durations, r.submissions, r.anomalies)
	return r
}

// Observe implements MetricsRecorder.
func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordSubmission implements SignalRecorder.
func (r *PrometheusRecorder) RecordSubmission(_ context.Context, sig domain.SubmissionSignal) {
	r.submissions.WithLabelValues(string(sig.Kind)).Inc()
}

// RecordAnomaly implements SignalRecorder.
func (r *PrometheusRecorder) RecordAnomaly(_ context.Context, sig domain.AnomalySignal) {
	r.anomalies.WithLabelValues(string(sig.Category)).Inc()
}
