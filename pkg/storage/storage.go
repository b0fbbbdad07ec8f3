package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/deviation"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
)

// ErrConflict is returned when a write loses a race: a second live alert for the
// same key, or a status change against a row that moved underneath it.
var ErrConflict = errors.New("concurrent modification")

// Storage defines the persistence layer for the records the engine owns.
type Storage interface {
	// GetConfiguration returns the configuration for (project, user). An empty
	// userID addresses the project-wide configuration.
	GetConfiguration(ctx context.Context, tenantID, projectID, userID string) (*model.AlertConfiguration, error)

	// ListConfigurations returns every configuration of a project, the
	// project-wide one first and then per-user ones ordered by user.
	ListConfigurations(ctx context.Context, tenantID, projectID string) ([]model.AlertConfiguration, error)

	// UpsertConfiguration creates or replaces a configuration keyed by (project, user).
	UpsertConfiguration(ctx context.Context, cfg *model.AlertConfiguration) error

	// GetLiveAlert returns the ACTIVE or VIEWED alert for a partition, or NotFoundError.
	GetLiveAlert(ctx context.Context, tenantID, projectID string, key model.PartitionKey) (*model.DeviationAlert, error)

	// CreateAlert inserts a new live alert, its creation history entry and the
	// notifications it raises in one transaction.
	// It returns ErrConflict if another live alert already holds the key.
	CreateAlert(ctx context.Context, alert *model.DeviationAlert, entry *model.AlertHistoryEntry, notes ...*model.AlertNotification) error

	// UpdateAlertFigures overwrites the figures of a live alert.
	// It returns ErrConflict if the alert is no longer live.
	UpdateAlertFigures(ctx context.Context, alert *model.DeviationAlert, entry *model.AlertHistoryEntry, notes ...*model.AlertNotification) error

	// TransitionAlert persists a status change made from status from.
	// It returns ErrConflict if the stored status is no longer from.
	TransitionAlert(ctx context.Context, alert *model.DeviationAlert, from model.AlertStatus, entry *model.AlertHistoryEntry, notes ...*model.AlertNotification) error

	// GetAlert retrieves an alert by id.
	GetAlert(ctx context.Context, tenantID, id string) (*model.DeviationAlert, error)

	// ListAlerts returns alerts matching the filter, newest first.
	ListAlerts(ctx context.Context, tenantID string, filter model.AlertFilter) ([]model.DeviationAlert, error)

	// SummarizeAlerts aggregates alert counts; projectID may be empty.
	SummarizeAlerts(ctx context.Context, tenantID, projectID string) (*model.AlertSummary, error)

	// ListHistory returns an alert's history, oldest first.
	ListHistory(ctx context.Context, tenantID, alertID string) ([]model.AlertHistoryEntry, error)

	// PurgeAlerts deletes alerts with their notifications and history; projectID may be empty.
	PurgeAlerts(ctx context.Context, tenantID, projectID string) (int64, error)

	// CreateNotification inserts a notification record.
	CreateNotification(ctx context.Context, n *model.AlertNotification) error

	// UpdateNotification persists delivery state changes.
	UpdateNotification(ctx context.Context, n *model.AlertNotification) error

	// GetNotification retrieves a notification by id.
	GetNotification(ctx context.Context, tenantID, id string) (*model.AlertNotification, error)

	// ListNotifications returns notifications matching the filter, newest first.
	ListNotifications(ctx context.Context, tenantID string, filter model.NotificationFilter) ([]model.AlertNotification, error)

	// ListDueNotifications returns PENDING notifications whose next attempt is due.
	ListDueNotifications(ctx context.Context, tenantID string, now time.Time, limit int) ([]model.AlertNotification, error)

	// RecordEvaluation stores when a project was last evaluated.
	RecordEvaluation(ctx context.Context, tenantID, projectID string, at time.Time) error

	// LastEvaluation returns the last evaluation time, or the zero time.
	LastEvaluation(ctx context.Context, tenantID, projectID string) (time.Time, error)

	// Close releases resources.
	Close() error
}

// ProjectStore is the local mirror of the project and expenditure modules.
// It is used when the engine runs standalone against its own database.
type ProjectStore interface {
	deviation.ProjectSource
	deviation.ExpenditureSource

	// UpsertProject creates or replaces a project.
	UpsertProject(ctx context.Context, p *model.Project) error

	// ListProjects returns every project of a tenant.
	ListProjects(ctx context.Context, tenantID string) ([]model.Project, error)

	// AddRecipient links a responsible user to a project.
	AddRecipient(ctx context.Context, tenantID, projectID string, r model.Recipient) error

	// SetAllocation creates or replaces a category or stage allocation.
	SetAllocation(ctx context.Context, a *model.BudgetAllocation) error

	// AddExpenditure records one spend.
	AddExpenditure(ctx context.Context, e *model.Expenditure) error
}
