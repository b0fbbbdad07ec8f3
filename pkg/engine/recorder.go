// Package engine evaluates project budgets, keeps deviation alerts current and
// delivers their notifications.
package engine

import (
	"time"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
)

// Recorder receives engine measurements. internal/metrics exports them to Prometheus.
type Recorder interface {
	ProjectEvaluated(outcome string, d time.Duration)
	AlertChanged(change Change, severity model.Severity)
	DeliveryAttempted(channel model.Channel, err error, d time.Duration)
	NotificationSettled(channel model.Channel, status model.NotificationStatus)
}

// NopRecorder discards all measurements.
type NopRecorder struct{}

func (NopRecorder) ProjectEvaluated(string, time.Duration) {}
func (NopRecorder) AlertChanged(Change, model.Severity) {}
func (NopRecorder) DeliveryAttempted(model.Channel, error, time.Duration) {}
func (NopRecorder) NotificationSettled(model.Channel, model.NotificationStatus) {}
