package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/apperrors"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/deviation"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/lifecycle"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/storage"
)

// Change is what applying an evaluation did to a partition's live alert.
type Change string

const (
	ChangeNone         Change = "none"
	ChangeCreated      Change = "created"
	ChangeEscalated    Change = "escalated"
	ChangeAutoResolved Change = "auto_resolved"
	ChangeUpdated      Change = "updated"
	ChangeUnchanged    Change = "unchanged"
)

// Event returns the notification event for c, if any.
func (c Change) Event() (model.EventType, bool) {
	switch c {
	case ChangeCreated:
		return model.EventCreated, true
	case ChangeEscalated:
		return model.EventEscalated, true
	case ChangeAutoResolved:
		return model.EventAutoResolved, true
	}
	return "", false
}

// Evaluation is the classified result for one partition.
type Evaluation struct {
	Result      deviation.Result
	Severity    model.Severity
	Alerting    bool
	Description string
	// Plan builds the notifications for an alert event. They are written in
	// the same transaction as the alert change. Nil plans none.
	Plan Planner
}

// Planner returns the notifications an alert event raises.
type Planner func(alert *model.DeviationAlert, event model.EventType) []*model.AlertNotification

// Outcome reports the effect of AlertStore.Apply.
type Outcome struct {
	Alert            *model.DeviationAlert
	Change           Change
	PreviousSeverity model.Severity
	// Notifications were committed with the alert change and await delivery.
	Notifications []*model.AlertNotification
}

func (ev Evaluation) notifications(alert *model.DeviationAlert, c Change) []*model.AlertNotification {
	event, ok := c.Event()
	if !ok || ev.Plan == nil {
		return nil
	}
	return ev.Plan(alert, event)
}

// AutoResolveNote is recorded on alerts closed by the evaluator.
const AutoResolveNote = "Desvio abaixo do limite mínimo configurado"

// AlertStore keeps at most one live alert per (project, category, stage).
type AlertStore struct {
	store  storage.Storage
	logger *slog.Logger
	now    func() time.Time
}

// NewAlertStore creates an alert store over the engine storage.
func NewAlertStore(store storage.Storage, logger *slog.Logger) *AlertStore {
	return &AlertStore{store: store, logger: logger, now: time.Now}
}

// WithClock replaces the time source.
func (s *AlertStore) WithClock(now func() time.Time) *AlertStore {
	s.now = now
	return s
}

// Apply reconciles the live alert of a partition with a new evaluation.
//
// A live alert is overwritten in place; a tier change is reported as an
// escalation. An alert whose deviation fell under the low threshold is resolved
// by the system. Losing a race against a concurrent writer is retried once
// against the fresh state, then logged and reported as no change.
func (s *AlertStore) Apply(ctx context.Context, tenantID, projectID string, key model.PartitionKey, ev Evaluation) (Outcome, error) {
	if tenantID == "" {
		return Outcome{}, apperrors.TenantRequired("apply evaluation")
	}

	out, err := s.apply(ctx, tenantID, projectID, key, ev)
	if errors.Is(err, storage.ErrConflict) {
		out, err = s.apply(ctx, tenantID, projectID, key, ev)
	}
	if errors.Is(err, storage.ErrConflict) {
		s.logger.Warn("alert write lost to concurrent evaluation",
			"tenant", tenantID,
			"project", projectID,
			"partition", key.String(),
		)
		return Outcome{Change: ChangeNone}, nil
	}
	return out, err
}

func (s *AlertStore) apply(ctx context.Context, tenantID, projectID string, key model.PartitionKey, ev Evaluation) (Outcome, error) {
	live, err := s.store.GetLiveAlert(ctx, tenantID, projectID, key)
	if errors.Is(err, apperrors.ErrNotFound) {
		live = nil
	} else if err != nil {
		return Outcome{}, err
	}

	now := s.now().UTC()
	switch {
	case live == nil && !ev.Alerting:
		return Outcome{Change: ChangeNone}, nil

	case live == nil:
		alert := &model.DeviationAlert{
			TenantID:  tenantID,
			ProjectID: projectID,
			Category:  key.Category,
			Stage:     key.Stage,
			Status:    model.StatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		setFigures(alert, ev)
		entry := lifecycle.Record(alert, model.ActionCreated, "", now)
		notes := ev.notifications(alert, ChangeCreated)
		if err := s.store.CreateAlert(ctx, alert, entry, notes...); err != nil {
			return Outcome{}, err
		}
		return Outcome{Alert: alert, Change: ChangeCreated, Notifications: notes}, nil

	case !ev.Alerting:
		from := live.Status
		prev := live.Severity
		entry, err := lifecycle.Transition(live, model.StatusResolved, model.SystemActor, AutoResolveNote, now)
		if err != nil {
			return Outcome{}, err
		}
		// The alert keeps the figures that raised it; history records the ones that cleared it.
		entry.DeviationPct = ev.Result.DeviationPct
		entry.DeviationValue = ev.Result.DeviationValue
		notes := ev.notifications(live, ChangeAutoResolved)
		if err := s.store.TransitionAlert(ctx, live, from, entry, notes...); err != nil {
			return Outcome{}, err
		}
		return Outcome{Alert: live, Change: ChangeAutoResolved, PreviousSeverity: prev, Notifications: notes}, nil
	}

	if sameFigures(live, ev) {
		return Outcome{Alert: live, Change: ChangeUnchanged, PreviousSeverity: live.Severity}, nil
	}

	prev := live.Severity
	setFigures(live, ev)
	change, action := ChangeUpdated, model.ActionUpdated
	if prev != ev.Severity {
		change, action = ChangeEscalated, model.ActionEscalated
	}
	entry := lifecycle.Record(live, action, prev, now)
	notes := ev.notifications(live, change)
	if err := s.store.UpdateAlertFigures(ctx, live, entry, notes...); err != nil {
		return Outcome{}, err
	}
	return Outcome{Alert: live, Change: change, PreviousSeverity: prev, Notifications: notes}, nil
}

func setFigures(a *model.DeviationAlert, ev Evaluation) {
	a.Severity = ev.Severity
	a.SeverityInfo = ev.Severity.Info()
	a.Planned = ev.Result.Planned
	a.Realized = ev.Result.Realized
	a.DeviationValue = ev.Result.DeviationValue
	a.DeviationPct = ev.Result.DeviationPct
	a.Description = ev.Description
}

func sameFigures(a *model.DeviationAlert, ev Evaluation) bool {
	return a.Severity == ev.Severity &&
		a.Planned == ev.Result.Planned &&
		a.Realized == ev.Result.Realized &&
		a.DeviationValue == ev.Result.DeviationValue &&
		samePct(a.DeviationPct, ev.Result.DeviationPct) &&
		a.Description == ev.Description
}

func samePct(a, b model.Percentage) bool {
	if a.Unbounded() || b.Unbounded() {
		return a.Unbounded() == b.Unbounded()
	}
	return a == b
}
