package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/deviation"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
)

// SlackNotifier tells the operations channel that a notification went to
// FAILED and needs a manual resend.
type SlackNotifier struct {
	webhookURL string
	channel    string
	client     *http.Client
	now        func() time.Time
}

// NewSlackNotifier creates an operator notifier for a Slack incoming webhook.
func NewSlackNotifier(webhookURL, channel string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		channel:    channel,
		client:     &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

func (s *SlackNotifier) Name() string { return "slack" }

// NotifyFailure reports a FAILED notification. alert is nil when the alert
// was purged before the last attempt.
func (s *SlackNotifier) NotifyFailure(ctx context.Context, n model.AlertNotification, alert *model.DeviationAlert) error {
	att := slackAttachment{
		Color:  n.Severity.Info().Color,
		Title:  fmt.Sprintf("Notificação %s falhou após %d/%d tentativas", n.Channel, n.Attempts, n.MaxAttempts),
		Text:   n.Payload.LastError,
		Footer: "Budget Deviation Guardian · " + n.TenantID,
		Ts:     s.now().Unix(),
		Fields: []slackField{
			{Title: "Notification", Value: n.ID, Short: true},
			{Title: "Recipient", Value: n.RecipientID, Short: true},
		},
	}
	if alert != nil {
		att.Fields = append(att.Fields,
			slackField{Title: "Project", Value: alert.ProjectID, Short: true},
			slackField{Title: "Severity", Value: alert.Severity.Info().Label, Short: true},
			slackField{Title: "Deviation", Value: deviation.FormatPct(alert.DeviationPct) + " / " + deviation.FormatBRL(alert.DeviationValue), Short: false},
		)
	}

	body, err := json.Marshal(slackPayload{Channel: s.channel, Attachments: []slackAttachment{att}})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	if _, err := postJSON(ctx, s.client, s.webhookURL, body, nil); err != nil {
		return fmt.Errorf("slack operator message: %w", err)
	}
	return nil
}

type slackPayload struct {
	Channel     string            `json:"channel,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text,omitempty"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	Ts     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}
