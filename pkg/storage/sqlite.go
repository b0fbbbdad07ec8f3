package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/apperrors"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLite implements Storage and ProjectStore using an SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time; evaluations run concurrently above this layer.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.DataAccess(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.DataAccess(op, err)
	}
	return nil
}

const configurationColumns = `id, tenant_id, project_id, user_id,
	threshold_low, threshold_medium, threshold_high, threshold_critical,
	dashboard_enabled, email_enabled, webhook_enabled, webhook_url,
	per_category, per_stage, check_frequency_minutes, active, created_at, updated_at`

func scanConfiguration(row rowScanner) (*model.AlertConfiguration, error) {
	var c model.AlertConfiguration
	if err := row.Scan(&c.ID, &c.TenantID, &c.ProjectID, &c.UserID,
		&c.Thresholds.Low, &c.Thresholds.Medium, &c.Thresholds.High, &c.Thresholds.Critical,
		&c.Channels.Dashboard.Enabled, &c.Channels.Email.Enabled, &c.Channels.Webhook.Enabled, &c.Channels.Webhook.URL,
		&c.PerCategory, &c.PerStage, &c.CheckFrequencyMinutes, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLite) GetConfiguration(ctx context.Context, tenantID, projectID, userID string) (*model.AlertConfiguration, error) {
	c, err := scanConfiguration(s.db.QueryRowContext(ctx,
		`SELECT `+configurationColumns+`
		 FROM alert_configurations WHERE tenant_id = ? AND project_id = ? AND user_id = ?`,
		tenantID, projectID, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("configuration", projectID)
	}
	if err != nil {
		return nil, apperrors.DataAccess("get configuration", err)
	}
	return c, nil
}

func (s *SQLite) ListConfigurations(ctx context.Context, tenantID, projectID string) ([]model.AlertConfiguration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+configurationColumns+`
		 FROM alert_configurations WHERE tenant_id = ? AND project_id = ? ORDER BY user_id`,
		tenantID, projectID,
	)
	if err != nil {
		return nil, apperrors.DataAccess("list configurations", err)
	}
	defer rows.Close()

	var out []model.AlertConfiguration
	for rows.Next() {
		c, err := scanConfiguration(rows)
		if err != nil {
			return nil, apperrors.DataAccess("scan configuration", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DataAccess("list configurations", err)
	}
	return out, nil
}

func (s *SQLite) UpsertConfiguration(ctx context.Context, c *model.AlertConfiguration) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_configurations (id, tenant_id, project_id, user_id,
		    threshold_low, threshold_medium, threshold_high, threshold_critical,
		    dashboard_enabled, email_enabled, webhook_enabled, webhook_url,
		    per_category, per_stage, check_frequency_minutes, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(tenant_id, project_id, user_id) DO UPDATE SET
		   threshold_low = excluded.threshold_low,
		   threshold_medium = excluded.threshold_medium,
		   threshold_high = excluded.threshold_high,
		   threshold_critical = excluded.threshold_critical,
		   dashboard_enabled = excluded.dashboard_enabled,
		   email_enabled = excluded.email_enabled,
		   webhook_enabled = excluded.webhook_enabled,
		   webhook_url = excluded.webhook_url,
		   per_category = excluded.per_category,
		   per_stage = excluded.per_stage,
		   check_frequency_minutes = excluded.check_frequency_minutes,
		   active = excluded.active,
		   updated_at = excluded.updated_at`,
		c.ID, c.TenantID, c.ProjectID, c.UserID,
		c.Thresholds.Low, c.Thresholds.Medium, c.Thresholds.High, c.Thresholds.Critical,
		c.Channels.Dashboard.Enabled, c.Channels.Email.Enabled, c.Channels.Webhook.Enabled, c.Channels.Webhook.URL,
		c.PerCategory, c.PerStage, c.CheckFrequencyMinutes, c.Active, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return apperrors.DataAccess("upsert configuration", err)
	}

	// Report the stored id and creation time when the row already existed.
	stored, err := s.GetConfiguration(ctx, c.TenantID, c.ProjectID, c.UserID)
	if err != nil {
		return err
	}
	c.ID, c.CreatedAt = stored.ID, stored.CreatedAt
	return nil
}

func (s *SQLite) RecordEvaluation(ctx context.Context, tenantID, projectID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO project_evaluations (tenant_id, project_id, last_evaluated_at) VALUES (?, ?, ?)
		 ON CONFLICT(tenant_id, project_id) DO UPDATE SET last_evaluated_at = excluded.last_evaluated_at`,
		tenantID, projectID, at.UTC(),
	)
	if err != nil {
		return apperrors.DataAccess("record evaluation", err)
	}
	return nil
}

func (s *SQLite) LastEvaluation(ctx context.Context, tenantID, projectID string) (time.Time, error) {
	var at time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT last_evaluated_at FROM project_evaluations WHERE tenant_id = ? AND project_id = ?`,
		tenantID, projectID,
	).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, apperrors.DataAccess("last evaluation", err)
	}
	return at, nil
}

// pctColumns splits a percentage into its stored value and unbounded flag.
func pctColumns(p model.Percentage) (float64, bool) {
	if p.Unbounded() {
		return 0, true
	}
	return float64(p), false
}

func pctFromColumns(v float64, unbounded bool) model.Percentage {
	if unbounded {
		return model.Percentage(math.Inf(1))
	}
	return model.Percentage(v)
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
