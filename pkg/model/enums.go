package model

import (
	"fmt"
	"strings"
)

// Severity is the tier a deviation is classified into.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Severities lists every tier in ascending order.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// SeverityInfo is the presentation contract for a tier. Consumers render it as is.
type SeverityInfo struct {
	Rank    int    `json:"rank"`
	Label   string `json:"label"`
	Color   string `json:"color"`
	Variant string `json:"variant"`
}

var severityInfo = map[Severity]SeverityInfo{
	SeverityLow:      {Rank: 1, Label: "Baixo", Color: "#2563eb", Variant: "secondary"},
	SeverityMedium:   {Rank: 2, Label: "Médio", Color: "#ca8a04", Variant: "default"},
	SeverityHigh:     {Rank: 3, Label: "Alto", Color: "#ea580c", Variant: "warning"},
	SeverityCritical: {Rank: 4, Label: "Crítico", Color: "#dc2626", Variant: "destructive"},
}

// Info returns the metadata for s. Unknown tiers get a zero rank.
func (s Severity) Info() SeverityInfo {
	return severityInfo[s]
}

// Valid reports whether s is a known tier.
func (s Severity) Valid() bool {
	_, ok := severityInfo[s]
	return ok
}

// Rank orders tiers; zero means "no tier".
func (s Severity) Rank() int { return severityInfo[s].Rank }

// ParseSeverity accepts the English and Portuguese spellings, case-insensitive.
func ParseSeverity(v string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "LOW", "BAIXO":
		return SeverityLow, nil
	case "MEDIUM", "MEDIO", "MÉDIO":
		return SeverityMedium, nil
	case "HIGH", "ALTO":
		return SeverityHigh, nil
	case "CRITICAL", "CRITICO", "CRÍTICO":
		return SeverityCritical, nil
	}
	return "", fmt.Errorf("unknown severity %q", v)
}

// AlertStatus is the lifecycle state of a DeviationAlert.
type AlertStatus string

const (
	StatusActive   AlertStatus = "ACTIVE"
	StatusViewed   AlertStatus = "VIEWED"
	StatusResolved AlertStatus = "RESOLVED"
	StatusIgnored  AlertStatus = "IGNORED"
)

// Valid reports whether s is a known status.
func (s AlertStatus) Valid() bool {
	switch s {
	case StatusActive, StatusViewed, StatusResolved, StatusIgnored:
		return true
	}
	return false
}

// Live reports whether the alert still represents the current evaluation of its key.
func (s AlertStatus) Live() bool {
	return s == StatusActive || s == StatusViewed
}

// Terminal reports whether no further transition is possible.
func (s AlertStatus) Terminal() bool {
	return s == StatusResolved || s == StatusIgnored
}

// ParseAlertStatus accepts the English and Portuguese spellings, case-insensitive.
func ParseAlertStatus(v string) (AlertStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "ACTIVE", "ATIVO":
		return StatusActive, nil
	case "VIEWED", "VISUALIZADO":
		return StatusViewed, nil
	case "RESOLVED", "RESOLVIDO":
		return StatusResolved, nil
	case "IGNORED", "IGNORADO":
		return StatusIgnored, nil
	}
	return "", fmt.Errorf("unknown alert status %q", v)
}

// NotificationStatus is the delivery state of an AlertNotification.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "PENDING"
	NotificationSent    NotificationStatus = "SENT"
	NotificationFailed  NotificationStatus = "FAILED"
)

// Channel is a notification delivery mechanism.
type Channel string

const (
	ChannelDashboard Channel = "dashboard"
	ChannelEmail     Channel = "email"
	ChannelWebhook   Channel = "webhook"
)

// Channels lists every delivery channel.
var Channels = []Channel{ChannelDashboard, ChannelEmail, ChannelWebhook}

// EventType is what happened to an alert during an evaluation.
type EventType string

const (
	EventCreated      EventType = "created"
	EventEscalated    EventType = "escalated"
	EventAutoResolved EventType = "auto_resolved"
)

// Notifies reports whether ch should receive notifications for e.
// Auto-resolution is announced in-app and to integrations but not by email.
func (e EventType) Notifies(ch Channel) bool {
	switch e {
	case EventCreated, EventEscalated:
		return true
	case EventAutoResolved:
		return ch != ChannelEmail
	}
	return false
}

// ActorKind attributes a lifecycle change.
type ActorKind string

const (
	ActorUser   ActorKind = "user"
	ActorSystem ActorKind = "system"
)

// Actor identifies who performed a lifecycle change.
type Actor struct {
	Kind ActorKind `json:"kind"`
	ID   string    `json:"id,omitempty"`
}

// SystemActor attributes changes made by the evaluator.
var SystemActor = Actor{Kind: ActorSystem, ID: "system"}

// UserActor attributes a change to the given user.
func UserActor(id string) Actor { return Actor{Kind: ActorUser, ID: id} }

// HistoryAction labels an entry in an alert's history.
type HistoryAction string

const (
	ActionCreated      HistoryAction = "created"
	ActionUpdated      HistoryAction = "updated"
	ActionEscalated    HistoryAction = "escalated"
	ActionViewed       HistoryAction = "viewed"
	ActionResolved     HistoryAction = "resolved"
	ActionIgnored      HistoryAction = "ignored"
	ActionAutoResolved HistoryAction = "auto_resolved"
)

// TriggerType distinguishes user-initiated from scheduler-initiated evaluations.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerScheduled TriggerType = "scheduled"
)

// ProjectStatus is owned by the project module; the engine only reads it.
type ProjectStatus string

const (
	ProjectPlanning   ProjectStatus = "planning"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectPaused     ProjectStatus = "paused"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectCancelled  ProjectStatus = "cancelled"
)

// Closed reports whether the project no longer takes part in bulk evaluations.
func (s ProjectStatus) Closed() bool {
	return s == ProjectCompleted || s == ProjectCancelled
}
