package model

import (
	"encoding/json"
	"math"
	"time"
)

// Project is a construction project as exposed by the project module.
type Project struct {
	ID             string        `json:"id" db:"id" yaml:"id"`
	TenantID       string        `json:"tenant_id" db:"tenant_id" yaml:"tenant_id"`
	Name           string        `json:"name" db:"name" yaml:"name"`
	TotalBudget    float64       `json:"total_budget" db:"total_budget" yaml:"total_budget"`
	StartDate      time.Time     `json:"start_date" db:"start_date" yaml:"start_date"`
	PlannedEndDate time.Time     `json:"planned_end_date" db:"planned_end_date" yaml:"planned_end_date"`
	Status         ProjectStatus `json:"status" db:"status" yaml:"status"`
}

// Eligible reports whether the project takes part in a bulk evaluation at asOf.
func (p Project) Eligible(asOf time.Time) bool {
	return !p.Status.Closed() && !p.StartDate.IsZero() && !p.StartDate.After(asOf)
}

// Recipient is a user responsible for a project.
type Recipient struct {
	UserID string `json:"user_id" db:"user_id" yaml:"user_id"`
	Email  string `json:"email,omitempty" db:"email" yaml:"email"`
}

// Expenditure is one recorded spend against a project.
type Expenditure struct {
	ID        string    `json:"id" db:"id" yaml:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id" yaml:"tenant_id"`
	ProjectID string    `json:"project_id" db:"project_id" yaml:"project_id"`
	Category  string    `json:"category,omitempty" db:"category" yaml:"category"`
	Stage     string    `json:"stage,omitempty" db:"stage" yaml:"stage"`
	Amount    float64   `json:"amount" db:"amount" yaml:"amount"`
	SpentAt   time.Time `json:"spent_at" db:"spent_at" yaml:"spent_at"`
}

// BudgetAllocation is the planned value for one category or stage of a project.
type BudgetAllocation struct {
	TenantID  string  `json:"tenant_id" db:"tenant_id" yaml:"tenant_id"`
	ProjectID string  `json:"project_id" db:"project_id" yaml:"project_id"`
	Category  string  `json:"category,omitempty" db:"category" yaml:"category"`
	Stage     string  `json:"stage,omitempty" db:"stage" yaml:"stage"`
	Planned   float64 `json:"planned" db:"planned" yaml:"planned"`
}

// PartitionKey identifies the slice of a project an alert is about.
// The zero value is the whole project.
type PartitionKey struct {
	Category string `json:"category,omitempty"`
	Stage    string `json:"stage,omitempty"`
}

// IsProject reports whether k is the project-level partition.
func (k PartitionKey) IsProject() bool { return k.Category == "" && k.Stage == "" }

func (k PartitionKey) String() string {
	switch {
	case k.IsProject():
		return "project"
	case k.Stage == "":
		return "category:" + k.Category
	case k.Category == "":
		return "stage:" + k.Stage
	}
	return "category:" + k.Category + "/stage:" + k.Stage
}

// Percentage is a signed deviation percentage. +Inf marks spend against a zero plan.
type Percentage float64

// Unbounded reports whether p is the zero-plan sentinel.
func (p Percentage) Unbounded() bool { return math.IsInf(float64(p), 0) }

func (p Percentage) MarshalJSON() ([]byte, error) {
	if p.Unbounded() {
		return []byte(`"+Inf"`), nil
	}
	return json.Marshal(float64(p))
}

func (p *Percentage) UnmarshalJSON(data []byte) error {
	if string(data) == `"+Inf"` {
		*p = Percentage(math.Inf(1))
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*p = Percentage(f)
	return nil
}

// DeviationAlert is the live or historical record of a deviation for a partition.
type DeviationAlert struct {
	ID             string       `json:"id" db:"id"`
	TenantID       string       `json:"tenant_id" db:"tenant_id"`
	ProjectID      string       `json:"project_id" db:"project_id"`
	Category       string       `json:"category,omitempty" db:"category"`
	Stage          string       `json:"stage,omitempty" db:"stage"`
	Severity       Severity     `json:"severity" db:"severity"`
	SeverityInfo   SeverityInfo `json:"severity_info"`
	DeviationPct   Percentage   `json:"deviation_pct" db:"deviation_pct"`
	Planned        float64      `json:"planned" db:"planned"`
	Realized       float64      `json:"realized" db:"realized"`
	DeviationValue float64      `json:"deviation_value" db:"deviation_value"`
	Description    string       `json:"description" db:"description"`
	Status         AlertStatus  `json:"status" db:"status"`
	ViewedBy       string       `json:"viewed_by,omitempty" db:"viewed_by"`
	ViewedAt       *time.Time   `json:"viewed_at,omitempty" db:"viewed_at"`
	ResolvedBy     string       `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt     *time.Time   `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolutionNote string       `json:"resolution_note,omitempty" db:"resolution_note"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" db:"updated_at"`
}

// Key returns the partition the alert belongs to.
func (a *DeviationAlert) Key() PartitionKey {
	return PartitionKey{Category: a.Category, Stage: a.Stage}
}

// AlertNotification is one delivery of one alert event on one channel to one recipient.
type AlertNotification struct {
	ID            string             `json:"id" db:"id"`
	AlertID       string             `json:"alert_id" db:"alert_id"`
	TenantID      string             `json:"tenant_id" db:"tenant_id"`
	RecipientID   string             `json:"recipient_id,omitempty" db:"recipient_id"`
	Channel       Channel            `json:"channel" db:"channel"`
	Event         EventType          `json:"event" db:"event"`
	Severity      Severity           `json:"severity" db:"severity"`
	Status        NotificationStatus `json:"status" db:"status"`
	Attempts      int                `json:"attempts" db:"attempts"`
	MaxAttempts   int                `json:"max_attempts" db:"max_attempts"`
	NextAttemptAt *time.Time         `json:"next_attempt_at,omitempty" db:"next_attempt_at"`
	SentAt        *time.Time         `json:"sent_at,omitempty" db:"sent_at"`
	Read          bool               `json:"read" db:"read"`
	ReadAt        *time.Time         `json:"read_at,omitempty" db:"read_at"`
	Payload       NotificationData   `json:"payload" db:"payload"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" db:"updated_at"`
}

// NotificationData is the auxiliary payload kept with a notification.
type NotificationData struct {
	Template  string `json:"template"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Address   string `json:"address,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// AlertHistoryEntry records one change to an alert.
type AlertHistoryEntry struct {
	ID               string        `json:"id" db:"id"`
	AlertID          string        `json:"alert_id" db:"alert_id"`
	TenantID         string        `json:"tenant_id" db:"tenant_id"`
	Action           HistoryAction `json:"action" db:"action"`
	PreviousStatus   AlertStatus   `json:"previous_status,omitempty" db:"previous_status"`
	NewStatus        AlertStatus   `json:"new_status" db:"new_status"`
	PreviousSeverity Severity      `json:"previous_severity,omitempty" db:"previous_severity"`
	NewSeverity      Severity      `json:"new_severity" db:"new_severity"`
	DeviationPct     Percentage    `json:"deviation_pct" db:"deviation_pct"`
	DeviationValue   float64       `json:"deviation_value" db:"deviation_value"`
	Actor            Actor         `json:"actor"`
	Note             string        `json:"note,omitempty" db:"note"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
}

// AlertFilter controls which alerts are listed.
type AlertFilter struct {
	ProjectID  string        `json:"project_id,omitempty"`
	Statuses   []AlertStatus `json:"statuses,omitempty"`
	Severities []Severity    `json:"severities,omitempty"`
	From       time.Time     `json:"from,omitempty"`
	To         time.Time     `json:"to,omitempty"`
	Limit      int           `json:"limit,omitempty"`
}

// NotificationFilter controls which notifications are listed.
type NotificationFilter struct {
	AlertID     string             `json:"alert_id,omitempty"`
	RecipientID string             `json:"recipient_id,omitempty"`
	Status      NotificationStatus `json:"status,omitempty"`
	Channel     Channel            `json:"channel,omitempty"`
	UnreadOnly  bool               `json:"unread_only,omitempty"`
	Limit       int                `json:"limit,omitempty"`
}

// AlertSummary aggregates a tenant's alerts. Tier counts cover live alerts only.
type AlertSummary struct {
	Total                int     `json:"total"`
	Active               int     `json:"active"`
	Viewed               int     `json:"viewed"`
	Low                  int     `json:"low"`
	Medium               int     `json:"medium"`
	High                 int     `json:"high"`
	Critical             int     `json:"critical"`
	Resolved             int     `json:"resolved"`
	Ignored              int     `json:"ignored"`
	AvgResolutionMinutes float64 `json:"avg_resolution_minutes"`
}
