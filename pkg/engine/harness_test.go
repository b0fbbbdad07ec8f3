package engine_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/alerts"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/deviation"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/engine"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/storage"
	"github.com/stretchr/testify/require"
)

const tenant = "t1"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mailbox struct {
	mu   sync.Mutex
	sent [][]string
}

func (m *mailbox) send(_ string, _ smtp.Auth, _ string, to []string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to)
	return nil
}

func (m *mailbox) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type operatorSpy struct {
	mu     sync.Mutex
	failed []model.AlertNotification
}

func (o *operatorSpy) NotifyFailure(_ context.Context, n model.AlertNotification, _ *model.DeviationAlert) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, n)
	return nil
}

type harness struct {
	db            *storage.SQLite
	clock         *fakeClock
	mail          *mailbox
	operator      *operatorSpy
	webhookURL    string
	webhookHits   atomic.Int32
	webhookStatus atomic.Int32
	dispatcher    *engine.Dispatcher
	evaluator     *engine.Evaluator
	trigger       *engine.Trigger
	svc           *engine.Service
}

// harnessOptions replace parts of the engine's storage with wrappers built
// over the test database.
type harnessOptions struct {
	expenditures func(*storage.SQLite) deviation.ExpenditureSource
	store        func(*storage.SQLite) storage.Storage
}

func newHarness(t *testing.T) *harness {
	return buildHarness(t, harnessOptions{})
}

// newHarnessWith wires the engine with the expenditure source wrap builds.
func newHarnessWith(t *testing.T, wrap func(*storage.SQLite) deviation.ExpenditureSource) *harness {
	return buildHarness(t, harnessOptions{expenditures: wrap})
}

// buildHarness wires the engine over a temp SQLite database.
func buildHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()

	db, err := storage.NewSQLite(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	var exp deviation.ExpenditureSource = db
	if opts.expenditures != nil {
		exp = opts.expenditures(db)
	}
	var store storage.Storage = db
	if opts.store != nil {
		store = opts.store(db)
	}

	h := &harness{
		db:       db,
		clock:    &fakeClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)},
		mail:     &mailbox{},
		operator: &operatorSpy{},
	}
	h.webhookStatus.Store(http.StatusOK)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.webhookHits.Add(1)
		w.WriteHeader(int(h.webhookStatus.Load()))
	}))
	t.Cleanup(srv.Close)
	h.webhookURL = srv.URL

	email, err := alerts.NewEmailNotifier(alerts.EmailConfig{Host: "smtp.example.com", Port: 587, From: "alertas@obrasai.com"})
	require.NoError(t, err)
	email.WithSendFunc(h.mail.send)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifiers := []alerts.Notifier{
		alerts.NewDashboardNotifier(nil, ""),
		email,
		alerts.NewWebhookNotifier("", 2*time.Second),
	}

	h.dispatcher = engine.NewDispatcher(store, notifiers, engine.DispatcherConfig{
		MaxAttempts:     3,
		BackoffBase:     time.Second,
		BackoffMax:      time.Minute,
		DeliveryTimeout: 2 * time.Second,
	}, logger).WithOperator(h.operator).WithClock(h.clock.Now)
	h.evaluator = engine.NewEvaluator(db, exp, store, h.dispatcher, 4, logger).WithClock(h.clock.Now)
	h.trigger = engine.NewTrigger(h.evaluator, db, db, engine.TriggerConfig{Workers: 4, ProjectTimeout: 10 * time.Second}, logger).
		WithClock(h.clock.Now)
	h.svc = engine.NewService(store, h.evaluator, h.trigger, h.dispatcher, logger).WithClock(h.clock.Now)
	return h
}

// seedProject creates an in-progress project started a month ago with one
// responsible user u1.
func (h *harness) seedProject(t *testing.T, id string, budget float64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.db.UpsertProject(ctx, &model.Project{
		ID:             id,
		TenantID:       tenant,
		Name:           "Obra " + id,
		TotalBudget:    budget,
		StartDate:      h.clock.Now().AddDate(0, -1, 0),
		PlannedEndDate: h.clock.Now().AddDate(1, 0, 0),
		Status:         model.ProjectInProgress,
	}))
	require.NoError(t, h.db.AddRecipient(ctx, tenant, id, model.Recipient{UserID: "u1", Email: "u1@obrasai.com"}))
}

func (h *harness) spend(t *testing.T, projectID string, amount float64, key model.PartitionKey) {
	t.Helper()
	require.NoError(t, h.db.AddExpenditure(context.Background(), &model.Expenditure{
		TenantID:  tenant,
		ProjectID: projectID,
		Category:  key.Category,
		Stage:     key.Stage,
		Amount:    amount,
	}))
}

// configure stores thresholds {10, 25, 50, 80} with the given channels.
func (h *harness) configure(t *testing.T, projectID string, channels model.ChannelSettings, partitions bool) {
	t.Helper()
	cfg := &model.AlertConfiguration{
		TenantID:              tenant,
		ProjectID:             projectID,
		Thresholds:            model.Thresholds{Low: 10, Medium: 25, High: 50, Critical: 80},
		Channels:              channels,
		PerCategory:           partitions,
		PerStage:              partitions,
		CheckFrequencyMinutes: 60,
		Active:                true,
	}
	_, err := h.svc.UpsertConfiguration(context.Background(), cfg)
	require.NoError(t, err)
}

// configureUser stores userID's own configuration with thresholds
// {10, 25, 50, 80} and the given channels.
func (h *harness) configureUser(t *testing.T, projectID, userID string, channels model.ChannelSettings, active bool) {
	t.Helper()
	cfg := &model.AlertConfiguration{
		TenantID:              tenant,
		ProjectID:             projectID,
		UserID:                userID,
		Thresholds:            model.Thresholds{Low: 10, Medium: 25, High: 50, Critical: 80},
		Channels:              channels,
		CheckFrequencyMinutes: 60,
		Active:                active,
	}
	_, err := h.svc.UpsertConfiguration(context.Background(), cfg)
	require.NoError(t, err)
}

func dashboardAndEmail() model.ChannelSettings {
	return model.ChannelSettings{
		Dashboard: model.DashboardChannel{Enabled: true},
		Email:     model.EmailChannel{Enabled: true},
	}
}

func (h *harness) evaluate(t *testing.T, projectID string) *engine.Result {
	t.Helper()
	res, err := h.svc.Trigger(context.Background(), engine.Request{
		TenantID:    tenant,
		ProjectID:   projectID,
		TriggerType: model.TriggerManual,
	})
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	return res
}

func (h *harness) alerts(t *testing.T, projectID string) []model.DeviationAlert {
	t.Helper()
	list, err := h.svc.ListAlerts(context.Background(), tenant, model.AlertFilter{ProjectID: projectID})
	require.NoError(t, err)
	return list
}

func (h *harness) notifications(t *testing.T, filter model.NotificationFilter) []model.AlertNotification {
	t.Helper()
	list, err := h.svc.ListNotifications(context.Background(), tenant, filter)
	require.NoError(t, err)
	return list
}
