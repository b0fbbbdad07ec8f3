package lifecycle_test

import (
	"testing"
	"time"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/apperrors"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/lifecycle"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAlert(status model.AlertStatus) *model.DeviationAlert {
	return &model.DeviationAlert{
		ID:           "a1",
		TenantID:     "t1",
		ProjectID:    "p1",
		Severity:     model.SeverityHigh,
		DeviationPct: 55,
		Status:       status,
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to model.AlertStatus
		want     bool
	}{
		{model.StatusActive, model.StatusViewed, true},
		{model.StatusActive, model.StatusResolved, true},
		{model.StatusActive, model.StatusIgnored, true},
		{model.StatusViewed, model.StatusResolved, true},
		{model.StatusViewed, model.StatusIgnored, true},
		{model.StatusViewed, model.StatusActive, false},
		{model.StatusActive, model.StatusActive, false},
		{model.StatusViewed, model.StatusViewed, false},
		{model.StatusResolved, model.StatusActive, false},
		{model.StatusResolved, model.StatusIgnored, false},
		{model.StatusIgnored, model.StatusViewed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, lifecycle.CanTransition(tt.from, tt.to))
		})
	}
}

func TestAllowed(t *testing.T) {
	assert.Equal(t, []model.AlertStatus{model.StatusViewed, model.StatusResolved, model.StatusIgnored},
		lifecycle.Allowed(model.StatusActive))
	assert.Empty(t, lifecycle.Allowed(model.StatusResolved))
}

func TestTransition_Resolve(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	alert := newAlert(model.StatusViewed)

	entry, err := lifecycle.Transition(alert, model.StatusResolved, model.UserActor("u1"), "budget revised", at)
	require.NoError(t, err)

	assert.Equal(t, model.StatusResolved, alert.Status)
	assert.Equal(t, "u1", alert.ResolvedBy)
	require.NotNil(t, alert.ResolvedAt)
	assert.Equal(t, at, *alert.ResolvedAt)
	assert.Equal(t, "budget revised", alert.ResolutionNote)

	assert.Equal(t, model.ActionResolved, entry.Action)
	assert.Equal(t, model.StatusViewed, entry.PreviousStatus)
	assert.Equal(t, model.StatusResolved, entry.NewStatus)
	assert.Equal(t, model.ActorUser, entry.Actor.Kind)
	assert.NotEmpty(t, entry.ID)
}

func TestTransition_AutoResolveIsDistinct(t *testing.T) {
	alert := newAlert(model.StatusActive)

	entry, err := lifecycle.Transition(alert, model.StatusResolved, model.SystemActor, "", time.Now())
	require.NoError(t, err)
	assert.Equal(t, model.ActionAutoResolved, entry.Action)
	assert.Equal(t, model.ActorSystem, entry.Actor.Kind)
	assert.Equal(t, "system", alert.ResolvedBy)
}

func TestTransition_View(t *testing.T) {
	alert := newAlert(model.StatusActive)

	entry, err := lifecycle.Transition(alert, model.StatusViewed, model.UserActor("u2"), "", time.Now())
	require.NoError(t, err)
	assert.Equal(t, model.ActionViewed, entry.Action)
	assert.Equal(t, "u2", alert.ViewedBy)
	assert.NotNil(t, alert.ViewedAt)
	assert.Nil(t, alert.ResolvedAt)
}

func TestTransition_InvalidLeavesAlertUnchanged(t *testing.T) {
	alert := newAlert(model.StatusResolved)
	before := *alert

	entry, err := lifecycle.Transition(alert, model.StatusActive, model.UserActor("u1"), "reopen", time.Now())
	require.Error(t, err)
	assert.Nil(t, entry)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.Equal(t, before, *alert)

	var te *apperrors.InvalidTransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "RESOLVED", te.From)
	assert.Equal(t, "ACTIVE", te.To)
}

func TestRecord(t *testing.T) {
	alert := newAlert(model.StatusActive)
	alert.Severity = model.SeverityCritical

	entry := lifecycle.Record(alert, model.ActionEscalated, model.SeverityHigh, time.Now())
	assert.Equal(t, model.ActionEscalated, entry.Action)
	assert.Equal(t, model.SeverityHigh, entry.PreviousSeverity)
	assert.Equal(t, model.SeverityCritical, entry.NewSeverity)
	assert.Equal(t, model.StatusActive, entry.PreviousStatus)

	created := lifecycle.Record(alert, model.ActionCreated, "", time.Now())
	assert.Empty(t, created.PreviousStatus)
}

func TestNewEntryID_Ordered(t *testing.T) {
	a := lifecycle.NewEntryID(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	b := lifecycle.NewEntryID(time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC))
	assert.Less(t, a, b)
}
