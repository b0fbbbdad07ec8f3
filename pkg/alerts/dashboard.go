package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/apperrors"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
)

// Publisher is the part of a Redis client the dashboard feed uses.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// DashboardNotifier delivers in-app notifications. The notification row is the
// inbox entry itself; when a publisher is set, each delivery is also pushed to
// the tenant's live feed so open dashboards refresh without polling.
type DashboardNotifier struct {
	publisher Publisher
	prefix    string
}

// NewDashboardNotifier creates a dashboard notifier. publisher may be nil.
func NewDashboardNotifier(publisher Publisher, prefix string) *DashboardNotifier {
	if prefix == "" {
		prefix = "bdg:dashboard"
	}
	return &DashboardNotifier{publisher: publisher, prefix: prefix}
}

// NewRedisPublisher connects to Redis for the dashboard feed.
func NewRedisPublisher(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func (d *DashboardNotifier) Name() string { return "dashboard" }

func (d *DashboardNotifier) Channel() model.Channel { return model.ChannelDashboard }

// Topic returns the pub/sub channel for a tenant.
func (d *DashboardNotifier) Topic(tenantID string) string {
	return d.prefix + ":" + tenantID
}

// DashboardEvent is the JSON pushed to the live feed.
type DashboardEvent struct {
	NotificationID string             `json:"notification_id"`
	RecipientID    string             `json:"recipient_id"`
	Event          model.EventType    `json:"event"`
	AlertID        string             `json:"alert_id"`
	ProjectID      string             `json:"project_id"`
	Severity       model.Severity     `json:"severity"`
	SeverityInfo   model.SeverityInfo `json:"severity_info"`
	Title          string             `json:"title"`
	Message        string             `json:"message"`
	Timestamp      time.Time          `json:"timestamp"`
}

func (d *DashboardNotifier) Send(ctx context.Context, msg Message) error {
	if d.publisher == nil {
		return nil
	}

	data, err := json.Marshal(DashboardEvent{
		NotificationID: msg.NotificationID,
		RecipientID:    msg.RecipientID,
		Event:          msg.Event,
		AlertID:        msg.Alert.ID,
		ProjectID:      msg.Alert.ProjectID,
		Severity:       msg.Alert.Severity,
		SeverityInfo:   msg.Alert.Severity.Info(),
		Title:          msg.Content.Title,
		Message:        msg.Content.Body,
		Timestamp:      time.Now().UTC(),
	})
	if err != nil {
		return &apperrors.DeliveryError{Channel: "dashboard", Err: fmt.Errorf("marshal dashboard event: %w", err)}
	}

	if err := d.publisher.Publish(ctx, d.Topic(msg.TenantID), data).Err(); err != nil {
		return &apperrors.DeliveryError{Channel: "dashboard", Err: err}
	}
	return nil
}
