package alerts

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/apperrors"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
)

// UserAgent identifies webhook deliveries.
const UserAgent = "ObrasAI-Alerts/1.0"

// WebhookNotifier posts alert events to the URL configured for the project.
type WebhookNotifier struct {
	secret string
	client *http.Client
	now    func() time.Time
}

// NewWebhookNotifier creates a webhook notifier.
// If secret is non-empty, requests are signed with HMAC-SHA256.
func NewWebhookNotifier(secret string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		secret: secret,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

func (w *WebhookNotifier) Name() string { return "webhook" }

func (w *WebhookNotifier) Channel() model.Channel { return model.ChannelWebhook }

// Send posts the event to msg.Address.
func (w *WebhookNotifier) Send(ctx context.Context, msg Message) error {
	if msg.Address == "" {
		return &apperrors.DeliveryError{Channel: "webhook", Err: fmt.Errorf("no webhook url")}
	}

	body, err := json.Marshal(NewWebhookPayload(msg, w.now()))
	if err != nil {
		return &apperrors.DeliveryError{Channel: "webhook", Err: fmt.Errorf("marshal webhook payload: %w", err)}
	}

	header := http.Header{}
	header.Set("User-Agent", UserAgent)
	header.Set("X-Event-Type", string(msg.Event))
	if w.secret != "" {
		header.Set("X-Signature-256", "sha256="+computeHMAC(body, []byte(w.secret)))
	}

	code, err := postJSON(ctx, w.client, msg.Address, body, header)
	if err != nil {
		return &apperrors.DeliveryError{Channel: "webhook", StatusCode: code, Err: err}
	}
	return nil
}

// WebhookPayload is the JSON body posted to integrations.
type WebhookPayload struct {
	Event          model.EventType `json:"event"`
	Timestamp      string          `json:"timestamp"`
	NotificationID string          `json:"notification_id"`
	TenantID       string          `json:"tenant_id"`
	Alert          WebhookAlert    `json:"alert"`
}

// WebhookAlert carries the alert figures in the webhook payload.
type WebhookAlert struct {
	ID             string             `json:"id"`
	ProjectID      string             `json:"project_id"`
	Category       string             `json:"category,omitempty"`
	Stage          string             `json:"stage,omitempty"`
	Severity       model.Severity     `json:"severity"`
	SeverityInfo   model.SeverityInfo `json:"severity_info"`
	Status         model.AlertStatus  `json:"status"`
	Planned        float64            `json:"planned"`
	Realized       float64            `json:"realized"`
	DeviationValue float64            `json:"deviation_value"`
	DeviationPct   model.Percentage   `json:"deviation_pct"`
	Description    string             `json:"description"`
	CreatedAt      string             `json:"created_at"`
}

// NewWebhookPayload builds the payload for msg.
func NewWebhookPayload(msg Message, at time.Time) WebhookPayload {
	a := msg.Alert
	return WebhookPayload{
		Event:          msg.Event,
		Timestamp:      at.UTC().Format(time.RFC3339),
		NotificationID: msg.NotificationID,
		TenantID:       msg.TenantID,
		Alert: WebhookAlert{
			ID:             a.ID,
			ProjectID:      a.ProjectID,
			Category:       a.Category,
			Stage:          a.Stage,
			Severity:       a.Severity,
			SeverityInfo:   a.Severity.Info(),
			Status:         a.Status,
			Planned:        a.Planned,
			Realized:       a.Realized,
			DeviationValue: a.DeviationValue,
			DeviationPct:   a.DeviationPct,
			Description:    a.Description,
			CreatedAt:      a.CreatedAt.UTC().Format(time.RFC3339),
		},
	}
}

func computeHMAC(message, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}
