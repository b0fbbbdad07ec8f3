// Package metrics provides Prometheus metrics for Budget Deviation Guardian.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/engine"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
)

const namespace = "bdg"

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)
)

// Evaluation metrics
var (
	// ProjectEvaluationsTotal counts project evaluations by outcome.
	ProjectEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "projects_total",
			Help:      "Project evaluations by outcome (success, failure, skipped)",
		},
		[]string{"outcome"},
	)

	// ProjectEvaluationDuration tracks how long a project evaluation takes.
	ProjectEvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "project_duration_seconds",
			Help:      "Project evaluation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// AlertChangesTotal counts alert creations, escalations and auto-resolutions.
	AlertChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "changes_total",
			Help:      "Alert changes by kind and severity",
		},
		[]string{"change", "severity"},
	)
)

// Notification metrics
var (
	// DeliveryAttemptsTotal counts delivery attempts by channel and result.
	DeliveryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "delivery_attempts_total",
			Help:      "Notification delivery attempts by channel and result",
		},
		[]string{"channel", "result"},
	)

	// DeliveryDuration tracks delivery latency per channel.
	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "delivery_duration_seconds",
			Help:      "Notification delivery latency in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel"},
	)

	// NotificationsSettledTotal counts notifications reaching SENT or FAILED.
	NotificationsSettledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "settled_total",
			Help:      "Notifications reaching a terminal status",
		},
		[]string{"channel", "status"},
	)
)

// Recorder feeds engine measurements into the package metrics.
type Recorder struct{}

var _ engine.Recorder = Recorder{}

func (Recorder) ProjectEvaluated(outcome string, d time.Duration) {
	ProjectEvaluationsTotal.WithLabelValues(outcome).Inc()
	if outcome != engine.OutcomeSkipped {
		ProjectEvaluationDuration.Observe(d.Seconds())
	}
}

func (Recorder) AlertChanged(change engine.Change, severity model.Severity) {
	AlertChangesTotal.WithLabelValues(string(change), string(severity)).Inc()
}

func (Recorder) DeliveryAttempted(channel model.Channel, err error, d time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	DeliveryAttemptsTotal.WithLabelValues(string(channel), result).Inc()
	DeliveryDuration.WithLabelValues(string(channel)).Observe(d.Seconds())
}

func (Recorder) NotificationSettled(channel model.Channel, status model.NotificationStatus) {
	NotificationsSettledTotal.WithLabelValues(string(channel), string(status)).Inc()
}
