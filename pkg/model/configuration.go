package model

import (
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/apperrors"
)

// MinCheckFrequency is the shortest allowed scheduled-evaluation cadence, in minutes.
const MinCheckFrequency = 5

// Thresholds are the lower bounds, in percent, of each severity tier.
type Thresholds struct {
	Low      float64 `json:"low" mapstructure:"low"`
	Medium   float64 `json:"medium" mapstructure:"medium"`
	High     float64 `json:"high" mapstructure:"high"`
	Critical float64 `json:"critical" mapstructure:"critical"`
}

// Bound is the inclusive lower bound of one tier.
type Bound struct {
	Severity Severity
	Min      float64
}

// Bounds returns the tier bounds, highest first.
func (t Thresholds) Bounds() []Bound {
	return []Bound{
		{SeverityCritical, t.Critical},
		{SeverityHigh, t.High},
		{SeverityMedium, t.Medium},
		{SeverityLow, t.Low},
	}
}

func (t Thresholds) problems() []string {
	var out []string
	for _, v := range []float64{t.Low, t.Medium, t.High, t.Critical} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			out = append(out, "thresholds must be finite and non-negative")
			break
		}
	}
	if t.Low >= t.Medium {
		out = append(out, "low threshold must be below medium")
	}
	if t.Medium >= t.High {
		out = append(out, "medium threshold must be below high")
	}
	if t.High >= t.Critical {
		out = append(out, "high threshold must be below critical")
	}
	return out
}

// ChannelConfig is the per-channel variant of a configuration.
type ChannelConfig interface {
	Channel() Channel
	IsEnabled() bool
	problems() []string
}

// DashboardChannel configures in-app notifications.
type DashboardChannel struct {
	Enabled bool `json:"enabled"`
}

func (DashboardChannel) Channel() Channel { return ChannelDashboard }
func (c DashboardChannel) IsEnabled() bool { return c.Enabled }
func (DashboardChannel) problems() []string { return nil }

// EmailChannel configures email notifications to the project's responsible users.
type EmailChannel struct {
	Enabled bool `json:"enabled"`
}

func (EmailChannel) Channel() Channel { return ChannelEmail }
func (c EmailChannel) IsEnabled() bool { return c.Enabled }
func (EmailChannel) problems() []string { return nil }

// WebhookChannel configures HTTP callbacks. URL is required when enabled.
type WebhookChannel struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url,omitempty"`
}

func (WebhookChannel) Channel() Channel { return ChannelWebhook }
func (c WebhookChannel) IsEnabled() bool { return c.Enabled }

func (c WebhookChannel) problems() []string {
	if c.URL == "" {
		if c.Enabled {
			return []string{"webhook url is required when the webhook channel is enabled"}
		}
		return nil
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return []string{fmt.Sprintf("webhook url %q must be an absolute http(s) url", c.URL)}
	}
	return nil
}

// ChannelSettings holds one variant per channel.
type ChannelSettings struct {
	Dashboard DashboardChannel `json:"dashboard"`
	Email     EmailChannel     `json:"email"`
	Webhook   WebhookChannel   `json:"webhook"`
}

// All returns the variants in delivery order.
func (s ChannelSettings) All() []ChannelConfig {
	return []ChannelConfig{s.Dashboard, s.Email, s.Webhook}
}

// Enabled returns the channels switched on.
func (s ChannelSettings) Enabled() []Channel {
	var out []Channel
	for _, c := range s.All() {
		if c.IsEnabled() {
			out = append(out, c.Channel())
		}
	}
	return out
}

// AlertConfiguration holds the per-project (optionally per-user) alerting settings.
// An empty UserID is the project-wide configuration.
type AlertConfiguration struct {
	ID                    string          `json:"id" db:"id"`
	TenantID              string          `json:"tenant_id" db:"tenant_id"`
	ProjectID             string          `json:"project_id" db:"project_id"`
	UserID                string          `json:"user_id,omitempty" db:"user_id"`
	Thresholds            Thresholds      `json:"thresholds"`
	Channels              ChannelSettings `json:"channels"`
	PerCategory           bool            `json:"per_category" db:"per_category"`
	PerStage              bool            `json:"per_stage" db:"per_stage"`
	CheckFrequencyMinutes int             `json:"check_frequency_minutes" db:"check_frequency_minutes"`
	Active                bool            `json:"active" db:"active"`
	CreatedAt             time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at" db:"updated_at"`
}

// Validate checks every write-time rule and reports all violations at once.
func (c *AlertConfiguration) Validate() error {
	var problems []string
	if c.ProjectID == "" {
		problems = append(problems, "project id is required")
	}
	problems = append(problems, c.Thresholds.problems()...)
	for _, ch := range c.Channels.All() {
		problems = append(problems, ch.problems()...)
	}
	if len(c.Channels.Enabled()) == 0 {
		problems = append(problems, "at least one notification channel must be enabled")
	}
	if c.CheckFrequencyMinutes < MinCheckFrequency {
		problems = append(problems, fmt.Sprintf("check frequency must be at least %d minutes", MinCheckFrequency))
	}
	if len(problems) > 0 {
		return &apperrors.ValidationError{Problems: problems}
	}
	return nil
}

// CheckFrequency returns the scheduled-evaluation cadence.
func (c *AlertConfiguration) CheckFrequency() time.Duration {
	return time.Duration(c.CheckFrequencyMinutes) * time.Minute
}

// DefaultConfiguration returns the system-wide configuration used when a project has none.
func DefaultConfiguration() AlertConfiguration {
	return AlertConfiguration{
		Thresholds: Thresholds{Low: 5, Medium: 15, High: 25, Critical: 40},
		Channels: ChannelSettings{
			Dashboard: DashboardChannel{Enabled: true},
			Email:     EmailChannel{Enabled: true},
		},
		PerCategory:           true,
		PerStage:              true,
		CheckFrequencyMinutes: 60,
		Active:                true,
	}
}
