// Package lifecycle owns the legal status transitions of a deviation alert.
//
//	ACTIVE -> VIEWED | RESOLVED | IGNORED
//	VIEWED -> RESOLVED | IGNORED
//
// RESOLVED and IGNORED are terminal. A concern that comes back is a new alert.
package lifecycle

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/apperrors"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
)

var transitions = map[model.AlertStatus]map[model.AlertStatus]model.HistoryAction{
	model.StatusActive: {
		model.StatusViewed:   model.ActionViewed,
		model.StatusResolved: model.ActionResolved,
		model.StatusIgnored:  model.ActionIgnored,
	},
	model.StatusViewed: {
		model.StatusResolved: model.ActionResolved,
		model.StatusIgnored:  model.ActionIgnored,
	},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to model.AlertStatus) bool {
	_, ok := transitions[from][to]
	return ok
}

// Allowed returns the statuses reachable from the given one.
func Allowed(from model.AlertStatus) []model.AlertStatus {
	var out []model.AlertStatus
	for _, s := range []model.AlertStatus{model.StatusViewed, model.StatusResolved, model.StatusIgnored} {
		if CanTransition(from, s) {
			out = append(out, s)
		}
	}
	return out
}

// Transition moves alert to status to and returns the history entry describing it.
// On an illegal request the alert is left untouched.
func Transition(alert *model.DeviationAlert, to model.AlertStatus, actor model.Actor, note string, at time.Time) (*model.AlertHistoryEntry, error) {
	action, ok := transitions[alert.Status][to]
	if !ok {
		return nil, &apperrors.InvalidTransitionError{
			AlertID: alert.ID,
			From:    string(alert.Status),
			To:      string(to),
		}
	}
	if actor.Kind == model.ActorSystem && to == model.StatusResolved {
		action = model.ActionAutoResolved
	}

	entry := &model.AlertHistoryEntry{
		ID:               NewEntryID(at),
		AlertID:          alert.ID,
		TenantID:         alert.TenantID,
		Action:           action,
		PreviousStatus:   alert.Status,
		NewStatus:        to,
		PreviousSeverity: alert.Severity,
		NewSeverity:      alert.Severity,
		DeviationPct:     alert.DeviationPct,
		DeviationValue:   alert.DeviationValue,
		Actor:            actor,
		Note:             note,
		CreatedAt:        at,
	}

	alert.Status = to
	alert.UpdatedAt = at
	switch to {
	case model.StatusViewed:
		alert.ViewedBy = actor.ID
		alert.ViewedAt = &at
	case model.StatusResolved, model.StatusIgnored:
		alert.ResolvedBy = actor.ID
		alert.ResolvedAt = &at
		alert.ResolutionNote = note
	}
	return entry, nil
}

// Record builds a history entry for an evaluation-driven change that keeps the status,
// such as creation, a figure refresh or a tier change.
func Record(alert *model.DeviationAlert, action model.HistoryAction, previous model.Severity, at time.Time) *model.AlertHistoryEntry {
	prevStatus := alert.Status
	if action == model.ActionCreated {
		prevStatus = ""
	}
	return &model.AlertHistoryEntry{
		ID:               NewEntryID(at),
		AlertID:          alert.ID,
		TenantID:         alert.TenantID,
		Action:           action,
		PreviousStatus:   prevStatus,
		NewStatus:        alert.Status,
		PreviousSeverity: previous,
		NewSeverity:      alert.Severity,
		DeviationPct:     alert.DeviationPct,
		DeviationValue:   alert.DeviationValue,
		Actor:            model.SystemActor,
		CreatedAt:        at,
	}
}

// NewEntryID returns a time-ordered history id.
func NewEntryID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
}
