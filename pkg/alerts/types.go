// Package alerts delivers deviation alert notifications over the supported channels.
package alerts

import (
	"context"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
)

// Message is one rendered notification handed to a channel.
type Message struct {
	NotificationID string               `json:"notification_id"`
	TenantID       string               `json:"tenant_id"`
	Event          model.EventType      `json:"event"`
	Alert          model.DeviationAlert `json:"alert"`
	RecipientID    string               `json:"recipient_id,omitempty"`
	Address        string               `json:"address,omitempty"`
	Content        Content              `json:"content"`
}

// Notifier sends a notification on one channel.
type Notifier interface {
	// Name returns the notifier identifier.
	Name() string

	// Channel returns the delivery channel the notifier serves.
	Channel() model.Channel

	// Send delivers a message. Implementations must be safe for concurrent use.
	// Failures are returned as *apperrors.DeliveryError.
	Send(ctx context.Context, msg Message) error
}

// OperatorNotifier tells operators about notifications that will not be retried again.
type OperatorNotifier interface {
	NotifyFailure(ctx context.Context, n model.AlertNotification, alert *model.DeviationAlert) error
}
