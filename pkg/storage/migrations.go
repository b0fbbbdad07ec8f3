package storage

import (
	"database/sql"
	"fmt"
)

var migrations = []string{
	// Migration 1: engine-owned records
	`CREATE TABLE IF NOT EXISTS alert_configurations (
		id                      TEXT PRIMARY KEY,
		tenant_id               TEXT NOT NULL,
		project_id              TEXT NOT NULL,
		user_id                 TEXT NOT NULL DEFAULT '',
		threshold_low           REAL NOT NULL,
		threshold_medium        REAL NOT NULL,
		threshold_high          REAL NOT NULL,
		threshold_critical      REAL NOT NULL,
		dashboard_enabled       INTEGER NOT NULL DEFAULT 1,
		email_enabled           INTEGER NOT NULL DEFAULT 1,
		webhook_enabled         INTEGER NOT NULL DEFAULT 0,
		webhook_url             TEXT NOT NULL DEFAULT '',
		per_category            INTEGER NOT NULL DEFAULT 1,
		per_stage               INTEGER NOT NULL DEFAULT 1,
		check_frequency_minutes INTEGER NOT NULL DEFAULT 60,
		active                  INTEGER NOT NULL DEFAULT 1,
		created_at              DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at              DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (tenant_id, project_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS deviation_alerts (
		id              TEXT PRIMARY KEY,
		tenant_id       TEXT NOT NULL,
		project_id      TEXT NOT NULL,
		category        TEXT NOT NULL DEFAULT '',
		stage           TEXT NOT NULL DEFAULT '',
		severity        TEXT NOT NULL CHECK(severity IN ('LOW', 'MEDIUM', 'HIGH', 'CRITICAL')),
		deviation_pct   REAL NOT NULL DEFAULT 0.0,
		pct_unbounded   INTEGER NOT NULL DEFAULT 0,
		planned         REAL NOT NULL DEFAULT 0.0,
		realized        REAL NOT NULL DEFAULT 0.0,
		deviation_value REAL NOT NULL DEFAULT 0.0,
		description     TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL CHECK(status IN ('ACTIVE', 'VIEWED', 'RESOLVED', 'IGNORED')),
		viewed_by       TEXT NOT NULL DEFAULT '',
		viewed_at       DATETIME,
		resolved_by     TEXT NOT NULL DEFAULT '',
		resolved_at     DATETIME,
		resolution_note TEXT NOT NULL DEFAULT '',
		created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_live_key
		ON deviation_alerts(tenant_id, project_id, category, stage)
		WHERE status IN ('ACTIVE', 'VIEWED');
	CREATE INDEX IF NOT EXISTS idx_alerts_tenant_created ON deviation_alerts(tenant_id, created_at);

	CREATE TABLE IF NOT EXISTS alert_history (
		id                TEXT PRIMARY KEY,
		alert_id          TEXT NOT NULL,
		tenant_id         TEXT NOT NULL,
		action            TEXT NOT NULL,
		previous_status   TEXT NOT NULL DEFAULT '',
		new_status        TEXT NOT NULL,
		previous_severity TEXT NOT NULL DEFAULT '',
		new_severity      TEXT NOT NULL,
		deviation_pct     REAL NOT NULL DEFAULT 0.0,
		pct_unbounded     INTEGER NOT NULL DEFAULT 0,
		deviation_value   REAL NOT NULL DEFAULT 0.0,
		actor_kind        TEXT NOT NULL,
		actor_id          TEXT NOT NULL DEFAULT '',
		note              TEXT NOT NULL DEFAULT '',
		created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_history_alert ON alert_history(alert_id);

	CREATE TABLE IF NOT EXISTS alert_notifications (
		id              TEXT PRIMARY KEY,
		alert_id        TEXT NOT NULL,
		tenant_id       TEXT NOT NULL,
		recipient_id    TEXT NOT NULL DEFAULT '',
		channel         TEXT NOT NULL CHECK(channel IN ('dashboard', 'email', 'webhook')),
		event           TEXT NOT NULL,
		severity        TEXT NOT NULL,
		status          TEXT NOT NULL CHECK(status IN ('PENDING', 'SENT', 'FAILED')),
		attempts        INTEGER NOT NULL DEFAULT 0,
		max_attempts    INTEGER NOT NULL DEFAULT 3,
		next_attempt_at DATETIME,
		sent_at         DATETIME,
		read            INTEGER NOT NULL DEFAULT 0,
		read_at         DATETIME,
		payload         TEXT NOT NULL DEFAULT '{}',
		created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_alert ON alert_notifications(alert_id);
	CREATE INDEX IF NOT EXISTS idx_notifications_due ON alert_notifications(tenant_id, status, next_attempt_at);

	CREATE TABLE IF NOT EXISTS project_evaluations (
		tenant_id         TEXT NOT NULL,
		project_id        TEXT NOT NULL,
		last_evaluated_at DATETIME NOT NULL,
		PRIMARY KEY (tenant_id, project_id)
	);

	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,

	// Migration 2: local mirror of the project and expenditure modules
	`CREATE TABLE IF NOT EXISTS projects (
		id               TEXT NOT NULL,
		tenant_id        TEXT NOT NULL,
		name             TEXT NOT NULL,
		total_budget     REAL NOT NULL DEFAULT 0.0,
		start_date       DATETIME,
		planned_end_date DATETIME,
		status           TEXT NOT NULL DEFAULT 'planning',
		PRIMARY KEY (tenant_id, id)
	);

	CREATE TABLE IF NOT EXISTS project_members (
		tenant_id  TEXT NOT NULL,
		project_id TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		email      TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (tenant_id, project_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS budget_allocations (
		tenant_id  TEXT NOT NULL,
		project_id TEXT NOT NULL,
		category   TEXT NOT NULL DEFAULT '',
		stage      TEXT NOT NULL DEFAULT '',
		planned    REAL NOT NULL,
		PRIMARY KEY (tenant_id, project_id, category, stage)
	);

	CREATE TABLE IF NOT EXISTS expenditures (
		id         TEXT PRIMARY KEY,
		tenant_id  TEXT NOT NULL,
		project_id TEXT NOT NULL,
		category   TEXT NOT NULL DEFAULT '',
		stage      TEXT NOT NULL DEFAULT '',
		amount     REAL NOT NULL,
		spent_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_expenditures_project ON expenditures(tenant_id, project_id);`,
}

// runMigrations applies pending schema migrations.
func runMigrations(db *sql.DB) error {
	// Ensure migration tracking table exists
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("check migration version: %w", err)
	}

	for i := currentVersion; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("run migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}

	return nil
}
