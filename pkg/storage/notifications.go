package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/apperrors"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
)

const notificationColumns = `id, alert_id, tenant_id, recipient_id, channel, event, severity, status,
	attempts, max_attempts, next_attempt_at, sent_at, read, read_at, payload, created_at, updated_at`

func scanNotification(row rowScanner) (*model.AlertNotification, error) {
	var (
		n       model.AlertNotification
		next    sql.NullTime
		sent    sql.NullTime
		readAt  sql.NullTime
		payload string
	)
	if err := row.Scan(&n.ID, &n.AlertID, &n.TenantID, &n.RecipientID, &n.Channel, &n.Event,
		&n.Severity, &n.Status, &n.Attempts, &n.MaxAttempts, &next, &sent, &n.Read, &readAt,
		&payload, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &n.Payload); err != nil {
		return nil, err
	}
	n.NextAttemptAt = timePtr(next)
	n.SentAt = timePtr(sent)
	n.ReadAt = timePtr(readAt)
	return &n, nil
}

func (s *SQLite) CreateNotification(ctx context.Context, n *model.AlertNotification) error {
	return insertNotification(ctx, s.db, n)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertNotification(ctx context.Context, db execer, n *model.AlertNotification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = n.CreatedAt

	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return apperrors.DataAccess("encode notification payload", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO alert_notifications (`+notificationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.AlertID, n.TenantID, n.RecipientID, n.Channel, n.Event, n.Severity, n.Status,
		n.Attempts, n.MaxAttempts, nullTime(n.NextAttemptAt), nullTime(n.SentAt), n.Read,
		nullTime(n.ReadAt), string(payload), n.CreatedAt.UTC(), n.UpdatedAt.UTC(),
	)
	if err != nil {
		return apperrors.DataAccess("insert notification", err)
	}
	return nil
}

// insertOutbox writes the notifications raised by an alert write inside its
// transaction, so the alert and its pending deliveries commit together.
func insertOutbox(ctx context.Context, tx *sql.Tx, a *model.DeviationAlert, notes []*model.AlertNotification) error {
	for _, n := range notes {
		n.AlertID = a.ID
		if err := insertNotification(ctx, tx, n); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) UpdateNotification(ctx context.Context, n *model.AlertNotification) error {
	n.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return apperrors.DataAccess("encode notification payload", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE alert_notifications SET status = ?, attempts = ?, max_attempts = ?, next_attempt_at = ?,
		    sent_at = ?, read = ?, read_at = ?, payload = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		n.Status, n.Attempts, n.MaxAttempts, nullTime(n.NextAttemptAt), nullTime(n.SentAt),
		n.Read, nullTime(n.ReadAt), string(payload), n.UpdatedAt, n.TenantID, n.ID,
	)
	if err != nil {
		return apperrors.DataAccess("update notification", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.DataAccess("update notification", err)
	}
	if affected == 0 {
		return apperrors.NotFound("notification", n.ID)
	}
	return nil
}

func (s *SQLite) GetNotification(ctx context.Context, tenantID, id string) (*model.AlertNotification, error) {
	n, err := scanNotification(s.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM alert_notifications WHERE tenant_id = ? AND id = ?`,
		tenantID, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("notification", id)
	}
	if err != nil {
		return nil, apperrors.DataAccess("get notification", err)
	}
	return n, nil
}

func (s *SQLite) ListNotifications(ctx context.Context, tenantID string, filter model.NotificationFilter) ([]model.AlertNotification, error) {
	conditions := []string{"tenant_id = ?"}
	args := []any{tenantID}

	if filter.AlertID != "" {
		conditions = append(conditions, "alert_id = ?")
		args = append(args, filter.AlertID)
	}
	if filter.RecipientID != "" {
		conditions = append(conditions, "recipient_id = ?")
		args = append(args, filter.RecipientID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Channel != "" {
		conditions = append(conditions, "channel = ?")
		args = append(args, filter.Channel)
	}
	if filter.UnreadOnly {
		conditions = append(conditions, "read = 0")
	}

	query := `SELECT ` + notificationColumns + ` FROM alert_notifications WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	return s.queryNotifications(ctx, "list notifications", query, args...)
}

func (s *SQLite) ListDueNotifications(ctx context.Context, tenantID string, now time.Time, limit int) ([]model.AlertNotification, error) {
	query := `SELECT ` + notificationColumns + ` FROM alert_notifications
		 WHERE tenant_id = ? AND status = 'PENDING' AND attempts < max_attempts
		   AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		 ORDER BY created_at, id`
	args := []any{tenantID, now.UTC()}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryNotifications(ctx, "list due notifications", query, args...)
}

func (s *SQLite) queryNotifications(ctx context.Context, op, query string, args ...any) ([]model.AlertNotification, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.DataAccess(op, err)
	}
	defer rows.Close()

	var out []model.AlertNotification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, apperrors.DataAccess("scan notification row", err)
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DataAccess(op, err)
	}
	return out, nil
}
