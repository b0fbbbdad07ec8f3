package engine_test

import (
	"context"
	"testing"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/apperrors"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/engine"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_EndToEnd(t *testing.T) {
	h := newHarness(t)
	h.seedProject(t, "p1", 100000)
	h.spend(t, "p1", 130000, model.PartitionKey{})
	h.configure(t, "p1", dashboardAndEmail(), false)

	res := h.evaluate(t, "p1")
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.ProjectsProcessed)
	assert.Equal(t, 1, res.AlertsCreated)

	list := h.alerts(t, "p1")
	require.Len(t, list, 1)
	a := list[0]
	assert.Equal(t, model.SeverityMedium, a.Severity)
	assert.Equal(t, model.StatusActive, a.Status)
	assert.InDelta(t, 30000, a.DeviationValue, 0.001)
	assert.InDelta(t, 30, float64(a.DeviationPct), 0.0001)
	assert.Equal(t, "Médio", a.SeverityInfo.Label)

	dash := h.notifications(t, model.NotificationFilter{Channel: model.ChannelDashboard})
	require.Len(t, dash, 1)
	assert.Equal(t, model.NotificationSent, dash[0].Status)
	assert.Equal(t, "u1", dash[0].RecipientID)
	assert.Equal(t, 1, dash[0].Attempts)
	assert.Equal(t, "Alerta de Desvio Médio", dash[0].Payload.Title)

	mail := h.notifications(t, model.NotificationFilter{Channel: model.ChannelEmail})
	require.Len(t, mail, 1)
	assert.Equal(t, model.NotificationSent, mail[0].Status)
	assert.Equal(t, "u1@obrasai.com", mail[0].Payload.Address)
	assert.Equal(t, 1, h.mail.count())

	assert.Empty(t, h.notifications(t, model.NotificationFilter{Channel: model.ChannelWebhook}))
	assert.Zero(t, h.webhookHits.Load())
}

func TestEvaluate_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.seedProject(t, "p1", 100000)
	h.spend(t, "p1", 130000, model.PartitionKey{})
	h.configure(t, "p1", dashboardAndEmail(), false)

	h.evaluate(t, "p1")
	first := h.alerts(t, "p1")
	require.Len(t, first, 1)

	res := h.evaluate(t, "p1")
	assert.Zero(t, res.AlertsCreated)
	assert.Zero(t, res.AlertsEscalated)

	second := h.alerts(t, "p1")
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[0].DeviationPct, second[0].DeviationPct)
	assert.Len(t, h.notifications(t, model.NotificationFilter{}), 2)
	assert.Equal(t, 1, h.mail.count())
}

func TestEvaluate_Escalation(t *testing.T) {
	h := newHarness(t)
	h.seedProject(t, "p1", 100000)
	h.spend(t, "p1", 130000, model.PartitionKey{})
	h.configure(t, "p1", dashboardAndEmail(), false)
	h.evaluate(t, "p1")

	h.spend(t, "p1", 60000, model.PartitionKey{})
	res := h.evaluate(t, "p1")
	assert.Zero(t, res.AlertsCreated)
	assert.Equal(t, 1, res.AlertsEscalated)

	list := h.alerts(t, "p1")
	require.Len(t, list, 1)
	assert.Equal(t, model.SeverityCritical, list[0].Severity)
	assert.InDelta(t, 90, float64(list[0].DeviationPct), 0.0001)

	all := h.notifications(t, model.NotificationFilter{})
	require.Len(t, all, 4)
	escalated := 0
	for _, n := range all {
		if n.Event == model.EventEscalated {
			escalated++
			assert.Equal(t, model.SeverityCritical, n.Severity)
			assert.Equal(t, model.NotificationSent, n.Status)
		}
	}
	assert.Equal(t, 2, escalated)

	history, err := h.svc.History(context.Background(), tenant, list[0].ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.ActionCreated, history[0].Action)
	assert.Equal(t, model.ActionEscalated, history[1].Action)
	assert.Equal(t, model.SeverityMedium, history[1].PreviousSeverity)
	assert.Equal(t, model.SeverityCritical, history[1].NewSeverity)
}

func TestEvaluate_FigureRefreshWithinTier(t *testing.T) {
	h := newHarness(t)
	h.seedProject(t, "p1", 100000)
	h.spend(t, "p1", 130000, model.PartitionKey{})
	h.configure(t, "p1", dashboardAndEmail(), false)
	h.evaluate(t, "p1")

	h.spend(t, "p1", 5000, model.PartitionKey{})
	res := h.evaluate(t, "p1")
	assert.Zero(t, res.AlertsEscalated)
	require.Len(t, res.Reports, 1)
	assert.Equal(t, 1, res.Reports[0].Updated)

	list := h.alerts(t, "p1")
	require.Len(t, list, 1)
	assert.InDelta(t, 35000, list[0].DeviationValue, 0.001)
	assert.Len(t, h.notifications(t, model.NotificationFilter{}), 2)
}

func TestEvaluate_AutoResolution(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedProject(t, "p1", 100000)
	h.spend(t, "p1", 160000, model.PartitionKey{})
	h.configure(t, "p1", dashboardAndEmail(), false)
	h.evaluate(t, "p1")

	list := h.alerts(t, "p1")
	require.Len(t, list, 1)
	require.Equal(t, model.SeverityHigh, list[0].Severity)
	id := list[0].ID

	// A budget revision brings the deviation under the low threshold.
	p, err := h.db.GetProject(ctx, tenant, "p1")
	require.NoError(t, err)
	p.TotalBudget = 158000
	require.NoError(t, h.db.UpsertProject(ctx, p))

	res := h.evaluate(t, "p1")
	assert.Equal(t, 1, res.AlertsAutoResolved)

	a, err := h.svc.GetAlert(ctx, tenant, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolved, a.Status)
	assert.Equal(t, model.SystemActor.ID, a.ResolvedBy)
	assert.Equal(t, engine.AutoResolveNote, a.ResolutionNote)

	history, err := h.svc.History(ctx, tenant, id)
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, model.ActionAutoResolved, last.Action)
	assert.Equal(t, model.ActorSystem, last.Actor.Kind)

	// Auto-resolution is announced on the dashboard only; email skips it.
	resolved := h.notifications(t, model.NotificationFilter{AlertID: id})
	var events []model.EventType
	for _, n := range resolved {
		if n.Event == model.EventAutoResolved {
			events = append(events, n.Event)
			assert.Equal(t, model.ChannelDashboard, n.Channel)
		}
	}
	assert.Len(t, events, 1)

	// Deviation coming back opens a new alert.
	h.spend(t, "p1", 40000, model.PartitionKey{})
	res = h.evaluate(t, "p1")
	assert.Equal(t, 1, res.AlertsCreated)
	live, err := h.svc.ListAlerts(ctx, tenant, model.AlertFilter{
		ProjectID: "p1",
		Statuses:  []model.AlertStatus{model.StatusActive},
	})
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.NotEqual(t, id, live[0].ID)
}

func TestEvaluate_ZeroBudget(t *testing.T) {
	h := newHarness(t)
	h.seedProject(t, "spent", 0)
	h.spend(t, "spent", 1000, model.PartitionKey{})
	h.configure(t, "spent", dashboardAndEmail(), false)
	h.seedProject(t, "idle", 0)
	h.configure(t, "idle", dashboardAndEmail(), false)

	h.evaluate(t, "spent")
	list := h.alerts(t, "spent")
	require.Len(t, list, 1)
	assert.Equal(t, model.SeverityCritical, list[0].Severity)
	assert.True(t, list[0].DeviationPct.Unbounded())
	assert.InDelta(t, 1000, list[0].DeviationValue, 0.001)

	res := h.evaluate(t, "idle")
	assert.Zero(t, res.AlertsCreated)
	assert.Empty(t, h.alerts(t, "idle"))
}

func TestEvaluate_Partitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedProject(t, "p1", 100000)
	h.configure(t, "p1", dashboardAndEmail(), true)
	require.NoError(t, h.db.SetAllocation(ctx, &model.BudgetAllocation{
		TenantID: tenant, ProjectID: "p1", Category: "estrutura", Planned: 50000,
	}))
	h.spend(t, "p1", 80000, model.PartitionKey{Category: "estrutura"})
	h.spend(t, "p1", 5000, model.PartitionKey{Stage: "fundacao"})

	report, err := h.svc.EvaluateProject(ctx, tenant, "p1")
	require.NoError(t, err)
	assert.Empty(t, report.Errors)
	require.Len(t, report.Partitions, 2, "stage without allocation is not evaluated")
	assert.True(t, report.Partitions[0].Key.IsProject())
	assert.Equal(t, model.SeverityLow, report.Partitions[0].Severity)
	assert.Equal(t, "estrutura", report.Partitions[1].Key.Category)
	assert.Equal(t, model.SeverityHigh, report.Partitions[1].Severity)
	assert.Equal(t, 2, report.Created)

	high, err := h.svc.ListAlerts(ctx, tenant, model.AlertFilter{Severities: []model.Severity{model.SeverityHigh}})
	require.NoError(t, err)
	require.Len(t, high, 1)
	assert.Equal(t, "estrutura", high[0].Category)
	assert.InDelta(t, 60, float64(high[0].DeviationPct), 0.0001)
}

func TestEvaluate_DefaultConfiguration(t *testing.T) {
	h := newHarness(t)
	h.seedProject(t, "p1", 100000)
	h.spend(t, "p1", 106000, model.PartitionKey{})

	// Defaults are {5, 15, 25, 40}: 6% is LOW.
	h.evaluate(t, "p1")
	list := h.alerts(t, "p1")
	require.Len(t, list, 1)
	assert.Equal(t, model.SeverityLow, list[0].Severity)
}

func TestEvaluateProject_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.EvaluateProject(ctx, "", "p1")
	assert.ErrorIs(t, err, apperrors.ErrTenantRequired)

	_, err = h.svc.EvaluateProject(ctx, tenant, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestEvaluate_RecipientConfigurationWithoutProjectWide(t *testing.T) {
	h := newHarness(t)
	h.seedProject(t, "p1", 100000)
	h.spend(t, "p1", 130000, model.PartitionKey{})
	h.configureUser(t, "p1", "u1", webhookOnly(h.webhookURL), true)

	// The defaults would call 30% HIGH; u1's own thresholds make it MEDIUM.
	h.evaluate(t, "p1")
	list := h.alerts(t, "p1")
	require.Len(t, list, 1)
	assert.Equal(t, model.SeverityMedium, list[0].Severity)

	all := h.notifications(t, model.NotificationFilter{})
	require.Len(t, all, 1, "u1 only asked for the webhook")
	assert.Equal(t, model.ChannelWebhook, all[0].Channel)
	assert.Equal(t, model.NotificationSent, all[0].Status)
	assert.EqualValues(t, 1, h.webhookHits.Load())
	assert.Zero(t, h.mail.count())
}

func TestEvaluate_RecipientChannels(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedProject(t, "p1", 100000)
	require.NoError(t, h.db.AddRecipient(ctx, tenant, "p1", model.Recipient{UserID: "u2", Email: "u2@obrasai.com"}))
	require.NoError(t, h.db.AddRecipient(ctx, tenant, "p1", model.Recipient{UserID: "u3", Email: "u3@obrasai.com"}))
	h.spend(t, "p1", 130000, model.PartitionKey{})
	h.configure(t, "p1", dashboardAndEmail(), false)
	h.configureUser(t, "p1", "u2", webhookOnly(h.webhookURL), true)
	h.configureUser(t, "p1", "u3", dashboardAndEmail(), false)

	h.evaluate(t, "p1")
	list := h.alerts(t, "p1")
	require.Len(t, list, 1)
	assert.Equal(t, model.SeverityMedium, list[0].Severity)

	byRecipient := make(map[string][]model.Channel)
	for _, n := range h.notifications(t, model.NotificationFilter{}) {
		byRecipient[n.RecipientID] = append(byRecipient[n.RecipientID], n.Channel)
	}
	assert.ElementsMatch(t, []model.Channel{model.ChannelDashboard, model.ChannelEmail}, byRecipient["u1"])
	assert.Equal(t, []model.Channel{model.ChannelWebhook}, byRecipient[""], "u2's webhook is sent once per event")
	assert.NotContains(t, byRecipient, "u2")
	assert.NotContains(t, byRecipient, "u3", "an inactive own configuration opts out")
	assert.Equal(t, 1, h.mail.count())
	assert.EqualValues(t, 1, h.webhookHits.Load())
}

func TestEvaluate_RecipientsSwitchedOff(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedProject(t, "p1", 100000)
	h.spend(t, "p1", 130000, model.PartitionKey{})
	h.configureUser(t, "p1", "u1", dashboardAndEmail(), false)

	report, err := h.svc.EvaluateProject(ctx, tenant, "p1")
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Empty(t, h.alerts(t, "p1"))

	// A configuration of someone outside the project has no say.
	h.configureUser(t, "p1", "stranger", dashboardAndEmail(), true)
	report, err = h.svc.EvaluateProject(ctx, tenant, "p1")
	require.NoError(t, err)
	assert.True(t, report.Skipped)
}

func TestEvaluate_ViewedAlertStaysLive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedProject(t, "p1", 100000)
	h.spend(t, "p1", 130000, model.PartitionKey{})
	h.configure(t, "p1", dashboardAndEmail(), false)

	h.evaluate(t, "p1")
	list := h.alerts(t, "p1")
	require.Len(t, list, 1)
	id := list[0].ID
	_, err := h.svc.UpdateStatus(ctx, tenant, id, model.StatusViewed, "u1", "")
	require.NoError(t, err)

	h.spend(t, "p1", 30000, model.PartitionKey{})
	res := h.evaluate(t, "p1")
	assert.Equal(t, 1, res.AlertsEscalated)
	assert.Zero(t, res.AlertsCreated)

	list = h.alerts(t, "p1")
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, model.SeverityHigh, list[0].Severity)
	assert.Equal(t, model.StatusViewed, list[0].Status, "escalation keeps the acknowledgement")
	assert.Equal(t, "u1", list[0].ViewedBy)

	// Resolving frees the partition; the ongoing breach opens a new alert.
	_, err = h.svc.UpdateStatus(ctx, tenant, id, model.StatusResolved, "u1", "aditivo em análise")
	require.NoError(t, err)
	res = h.evaluate(t, "p1")
	assert.Equal(t, 1, res.AlertsCreated)
	assert.Len(t, h.alerts(t, "p1"), 2)
}
