package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/apperrors"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
)

const alertColumns = `id, tenant_id, project_id, category, stage, severity, deviation_pct, pct_unbounded,
	planned, realized, deviation_value, description, status, viewed_by, viewed_at,
	resolved_by, resolved_at, resolution_note, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*model.DeviationAlert, error) {
	var (
		a         model.DeviationAlert
		pct       float64
		unbounded bool
		viewedAt  sql.NullTime
		resolved  sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.TenantID, &a.ProjectID, &a.Category, &a.Stage, &a.Severity,
		&pct, &unbounded, &a.Planned, &a.Realized, &a.DeviationValue, &a.Description, &a.Status,
		&a.ViewedBy, &viewedAt, &a.ResolvedBy, &resolved, &a.ResolutionNote, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.DeviationPct = pctFromColumns(pct, unbounded)
	a.SeverityInfo = a.Severity.Info()
	a.ViewedAt = timePtr(viewedAt)
	a.ResolvedAt = timePtr(resolved)
	return &a, nil
}

func (s *SQLite) GetLiveAlert(ctx context.Context, tenantID, projectID string, key model.PartitionKey) (*model.DeviationAlert, error) {
	a, err := scanAlert(s.db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM deviation_alerts
		 WHERE tenant_id = ? AND project_id = ? AND category = ? AND stage = ?
		   AND status IN ('ACTIVE', 'VIEWED')`,
		tenantID, projectID, key.Category, key.Stage,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("alert", projectID+"/"+key.String())
	}
	if err != nil {
		return nil, apperrors.DataAccess("get live alert", err)
	}
	return a, nil
}

func (s *SQLite) GetAlert(ctx context.Context, tenantID, id string) (*model.DeviationAlert, error) {
	a, err := scanAlert(s.db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM deviation_alerts WHERE tenant_id = ? AND id = ?`,
		tenantID, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("alert", id)
	}
	if err != nil {
		return nil, apperrors.DataAccess("get alert", err)
	}
	return a, nil
}

func (s *SQLite) CreateAlert(ctx context.Context, a *model.DeviationAlert, entry *model.AlertHistoryEntry, notes ...*model.AlertNotification) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	a.SeverityInfo = a.Severity.Info()
	if entry != nil {
		entry.AlertID = a.ID
	}

	pct, unbounded := pctColumns(a.DeviationPct)
	return s.withTx(ctx, "create alert", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO deviation_alerts (`+alertColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.TenantID, a.ProjectID, a.Category, a.Stage, a.Severity, pct, unbounded,
			a.Planned, a.Realized, a.DeviationValue, a.Description, a.Status,
			a.ViewedBy, nullTime(a.ViewedAt), a.ResolvedBy, nullTime(a.ResolvedAt), a.ResolutionNote,
			a.CreatedAt.UTC(), a.UpdatedAt.UTC(),
		)
		if isUniqueViolation(err) {
			return ErrConflict
		}
		if err != nil {
			return apperrors.DataAccess("insert alert", err)
		}
		if err := insertHistory(ctx, tx, entry); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, a, notes)
	})
}

func (s *SQLite) UpdateAlertFigures(ctx context.Context, a *model.DeviationAlert, entry *model.AlertHistoryEntry, notes ...*model.AlertNotification) error {
	a.UpdatedAt = time.Now().UTC()
	a.SeverityInfo = a.Severity.Info()
	pct, unbounded := pctColumns(a.DeviationPct)

	return s.withTx(ctx, "update alert", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE deviation_alerts SET severity = ?, deviation_pct = ?, pct_unbounded = ?,
			    planned = ?, realized = ?, deviation_value = ?, description = ?, updated_at = ?
			 WHERE tenant_id = ? AND id = ? AND status IN ('ACTIVE', 'VIEWED')`,
			a.Severity, pct, unbounded, a.Planned, a.Realized, a.DeviationValue, a.Description,
			a.UpdatedAt, a.TenantID, a.ID,
		)
		if err != nil {
			return apperrors.DataAccess("update alert", err)
		}
		if err := expectOneRow(res, "update alert"); err != nil {
			return err
		}
		if err := insertHistory(ctx, tx, entry); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, a, notes)
	})
}

func (s *SQLite) TransitionAlert(ctx context.Context, a *model.DeviationAlert, from model.AlertStatus, entry *model.AlertHistoryEntry, notes ...*model.AlertNotification) error {
	return s.withTx(ctx, "transition alert", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE deviation_alerts SET status = ?, viewed_by = ?, viewed_at = ?, resolved_by = ?,
			    resolved_at = ?, resolution_note = ?, updated_at = ?
			 WHERE tenant_id = ? AND id = ? AND status = ?`,
			a.Status, a.ViewedBy, nullTime(a.ViewedAt), a.ResolvedBy, nullTime(a.ResolvedAt),
			a.ResolutionNote, a.UpdatedAt.UTC(), a.TenantID, a.ID, from,
		)
		if err != nil {
			return apperrors.DataAccess("transition alert", err)
		}
		if err := expectOneRow(res, "transition alert"); err != nil {
			return err
		}
		if err := insertHistory(ctx, tx, entry); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, a, notes)
	})
}

func expectOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.DataAccess(op, err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, e *model.AlertHistoryEntry) error {
	if e == nil {
		return nil
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	pct, unbounded := pctColumns(e.DeviationPct)
	_, err := tx.ExecContext(ctx,
		`INSERT INTO alert_history (id, alert_id, tenant_id, action, previous_status, new_status,
		    previous_severity, new_severity, deviation_pct, pct_unbounded, deviation_value,
		    actor_kind, actor_id, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AlertID, e.TenantID, e.Action, e.PreviousStatus, e.NewStatus,
		e.PreviousSeverity, e.NewSeverity, pct, unbounded, e.DeviationValue,
		e.Actor.Kind, e.Actor.ID, e.Note, e.CreatedAt.UTC(),
	)
	if err != nil {
		return apperrors.DataAccess("insert history", err)
	}
	return nil
}

func (s *SQLite) ListHistory(ctx context.Context, tenantID, alertID string) ([]model.AlertHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, alert_id, tenant_id, action, previous_status, new_status, previous_severity,
		        new_severity, deviation_pct, pct_unbounded, deviation_value, actor_kind, actor_id,
		        note, created_at
		 FROM alert_history WHERE tenant_id = ? AND alert_id = ? ORDER BY created_at, id`,
		tenantID, alertID,
	)
	if err != nil {
		return nil, apperrors.DataAccess("list history", err)
	}
	defer rows.Close()

	var entries []model.AlertHistoryEntry
	for rows.Next() {
		var (
			e         model.AlertHistoryEntry
			pct       float64
			unbounded bool
		)
		if err := rows.Scan(&e.ID, &e.AlertID, &e.TenantID, &e.Action, &e.PreviousStatus, &e.NewStatus,
			&e.PreviousSeverity, &e.NewSeverity, &pct, &unbounded, &e.DeviationValue,
			&e.Actor.Kind, &e.Actor.ID, &e.Note, &e.CreatedAt); err != nil {
			return nil, apperrors.DataAccess("scan history row", err)
		}
		e.DeviationPct = pctFromColumns(pct, unbounded)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DataAccess("list history", err)
	}
	return entries, nil
}

func (s *SQLite) ListAlerts(ctx context.Context, tenantID string, filter model.AlertFilter) ([]model.DeviationAlert, error) {
	where, args := buildAlertWhere(tenantID, filter)
	query := `SELECT ` + alertColumns + ` FROM deviation_alerts WHERE ` + where + ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.DataAccess("list alerts", err)
	}
	defer rows.Close()

	var alerts []model.DeviationAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, apperrors.DataAccess("scan alert row", err)
		}
		alerts = append(alerts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DataAccess("list alerts", err)
	}
	return alerts, nil
}

// buildAlertWhere constructs a SQL WHERE clause from an AlertFilter.
func buildAlertWhere(tenantID string, filter model.AlertFilter) (string, []any) {
	conditions := []string{"tenant_id = ?"}
	args := []any{tenantID}

	if filter.ProjectID != "" {
		conditions = append(conditions, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if len(filter.Statuses) > 0 {
		conditions = append(conditions, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, st := range filter.Statuses {
			args = append(args, st)
		}
	}
	if len(filter.Severities) > 0 {
		conditions = append(conditions, "severity IN ("+placeholders(len(filter.Severities))+")")
		for _, sv := range filter.Severities {
			args = append(args, sv)
		}
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "created_at < ?")
		args = append(args, filter.To.UTC())
	}

	return strings.Join(conditions, " AND "), args
}

func (s *SQLite) SummarizeAlerts(ctx context.Context, tenantID, projectID string) (*model.AlertSummary, error) {
	query := `SELECT status, severity, created_at, resolved_at FROM deviation_alerts WHERE tenant_id = ?`
	args := []any{tenantID}
	if projectID != "" {
		query += " AND project_id = ?"
		args = append(args, projectID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.DataAccess("summarize alerts", err)
	}
	defer rows.Close()

	summary := &model.AlertSummary{}
	var resolvedCount int
	var resolvedTotal time.Duration
	for rows.Next() {
		var (
			status    model.AlertStatus
			severity  model.Severity
			createdAt time.Time
			resolved  sql.NullTime
		)
		if err := rows.Scan(&status, &severity, &createdAt, &resolved); err != nil {
			return nil, apperrors.DataAccess("scan summary row", err)
		}

		summary.Total++
		switch status {
		case model.StatusActive:
			summary.Active++
		case model.StatusViewed:
			summary.Viewed++
		case model.StatusResolved:
			summary.Resolved++
			if resolved.Valid {
				resolvedCount++
				resolvedTotal += resolved.Time.Sub(createdAt)
			}
		case model.StatusIgnored:
			summary.Ignored++
		}

		if !status.Live() {
			continue
		}
		switch severity {
		case model.SeverityLow:
			summary.Low++
		case model.SeverityMedium:
			summary.Medium++
		case model.SeverityHigh:
			summary.High++
		case model.SeverityCritical:
			summary.Critical++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DataAccess("summarize alerts", err)
	}
	if resolvedCount > 0 {
		summary.AvgResolutionMinutes = resolvedTotal.Minutes() / float64(resolvedCount)
	}
	return summary, nil
}

func (s *SQLite) PurgeAlerts(ctx context.Context, tenantID, projectID string) (int64, error) {
	scope := "tenant_id = ?"
	args := []any{tenantID}
	if projectID != "" {
		scope += " AND project_id = ?"
		args = append(args, projectID)
	}

	var purged int64
	err := s.withTx(ctx, "purge alerts", func(tx *sql.Tx) error {
		for _, table := range []string{"alert_notifications", "alert_history"} {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM `+table+` WHERE alert_id IN (SELECT id FROM deviation_alerts WHERE `+scope+`)`,
				args...,
			); err != nil {
				return apperrors.DataAccess("purge "+table, err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM deviation_alerts WHERE `+scope, args...)
		if err != nil {
			return apperrors.DataAccess("purge alerts", err)
		}
		purged, err = res.RowsAffected()
		if err != nil {
			return apperrors.DataAccess("purge alerts", err)
		}
		return nil
	})
	return purged, err
}
