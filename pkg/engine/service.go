package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/apperrors"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/lifecycle"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/storage"
)

// Service is the entry point used by the HTTP API and the CLI. Every call is
// scoped by an explicit tenant id.
type Service struct {
	store      storage.Storage
	evaluator  *Evaluator
	trigger    *Trigger
	dispatcher *Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

// NewService assembles the engine facade.
func NewService(store storage.Storage, evaluator *Evaluator, trigger *Trigger, dispatcher *Dispatcher, logger *slog.Logger) *Service {
	return &Service{
		store:      store,
		evaluator:  evaluator,
		trigger:    trigger,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock replaces the time source used for manual transitions.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Trigger runs a manual or scheduled evaluation.
func (s *Service) Trigger(ctx context.Context, req Request) (*Result, error) {
	return s.trigger.Run(ctx, req)
}

// EvaluateProject evaluates one project immediately.
func (s *Service) EvaluateProject(ctx context.Context, tenantID, projectID string) (*ProjectReport, error) {
	return s.evaluator.EvaluateProject(ctx, tenantID, projectID)
}

// UpdateStatus applies a user's lifecycle transition to an alert.
func (s *Service) UpdateStatus(ctx context.Context, tenantID, alertID string, to model.AlertStatus, userID, note string) (*model.DeviationAlert, error) {
	if tenantID == "" {
		return nil, apperrors.TenantRequired("update alert status")
	}
	if !to.Valid() {
		return nil, apperrors.InvalidRequest("status", fmt.Sprintf("unknown alert status %q", to))
	}

	alert, err := s.updateStatus(ctx, tenantID, alertID, to, userID, note)
	if errors.Is(err, storage.ErrConflict) {
		alert, err = s.updateStatus(ctx, tenantID, alertID, to, userID, note)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("alert status changed",
		"tenant", tenantID,
		"alert", alert.ID,
		"status", alert.Status,
		"user", userID,
	)
	return alert, nil
}

func (s *Service) updateStatus(ctx context.Context, tenantID, alertID string, to model.AlertStatus, userID, note string) (*model.DeviationAlert, error) {
	alert, err := s.store.GetAlert(ctx, tenantID, alertID)
	if err != nil {
		return nil, err
	}
	from := alert.Status
	entry, err := lifecycle.Transition(alert, to, model.UserActor(userID), note, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.store.TransitionAlert(ctx, alert, from, entry); err != nil {
		return nil, err
	}
	return alert, nil
}

// GetConfiguration returns the configuration that applies to (project, user):
// the user's own, else the project-wide one, else the system default.
func (s *Service) GetConfiguration(ctx context.Context, tenantID, projectID, userID string) (*model.AlertConfiguration, error) {
	if tenantID == "" {
		return nil, apperrors.TenantRequired("get configuration")
	}
	if userID != "" {
		cfg, err := s.store.GetConfiguration(ctx, tenantID, projectID, userID)
		if err == nil {
			return cfg, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
	}
	return s.evaluator.Configuration(ctx, tenantID, projectID)
}

// UpsertConfiguration validates and stores a configuration.
func (s *Service) UpsertConfiguration(ctx context.Context, cfg *model.AlertConfiguration) (*model.AlertConfiguration, error) {
	if cfg.TenantID == "" {
		return nil, apperrors.TenantRequired("upsert configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.UpsertConfiguration(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ListAlerts returns a tenant's alerts, newest first.
func (s *Service) ListAlerts(ctx context.Context, tenantID string, filter model.AlertFilter) ([]model.DeviationAlert, error) {
	if tenantID == "" {
		return nil, apperrors.TenantRequired("list alerts")
	}
	return s.store.ListAlerts(ctx, tenantID, filter)
}

// GetAlert returns one alert.
func (s *Service) GetAlert(ctx context.Context, tenantID, alertID string) (*model.DeviationAlert, error) {
	if tenantID == "" {
		return nil, apperrors.TenantRequired("get alert")
	}
	return s.store.GetAlert(ctx, tenantID, alertID)
}

// History returns an alert's history, oldest first.
func (s *Service) History(ctx context.Context, tenantID, alertID string) ([]model.AlertHistoryEntry, error) {
	if _, err := s.GetAlert(ctx, tenantID, alertID); err != nil {
		return nil, err
	}
	return s.store.ListHistory(ctx, tenantID, alertID)
}

// Summary aggregates a tenant's alerts, optionally for one project.
func (s *Service) Summary(ctx context.Context, tenantID, projectID string) (*model.AlertSummary, error) {
	if tenantID == "" {
		return nil, apperrors.TenantRequired("summarize alerts")
	}
	return s.store.SummarizeAlerts(ctx, tenantID, projectID)
}

// Purge deletes a tenant's alerts with their notifications and history.
func (s *Service) Purge(ctx context.Context, tenantID, projectID string) (int64, error) {
	if tenantID == "" {
		return 0, apperrors.TenantRequired("purge alerts")
	}
	n, err := s.store.PurgeAlerts(ctx, tenantID, projectID)
	if err != nil {
		return 0, err
	}
	s.logger.Warn("alerts purged", "tenant", tenantID, "project", projectID, "count", n)
	return n, nil
}

// ListNotifications returns a tenant's notifications, newest first.
func (s *Service) ListNotifications(ctx context.Context, tenantID string, filter model.NotificationFilter) ([]model.AlertNotification, error) {
	if tenantID == "" {
		return nil, apperrors.TenantRequired("list notifications")
	}
	return s.store.ListNotifications(ctx, tenantID, filter)
}

// ProcessPending runs one dispatcher pass over due notifications.
func (s *Service) ProcessPending(ctx context.Context, tenantID string) (*ProcessResult, error) {
	return s.dispatcher.ProcessPending(ctx, tenantID)
}

// Resend retries a FAILED notification.
func (s *Service) Resend(ctx context.Context, tenantID, id string) (*model.AlertNotification, error) {
	return s.dispatcher.Resend(ctx, tenantID, id)
}

// MarkRead flags a notification as read by userID.
func (s *Service) MarkRead(ctx context.Context, tenantID, id, userID string) (*model.AlertNotification, error) {
	return s.dispatcher.MarkRead(ctx, tenantID, id, userID)
}
