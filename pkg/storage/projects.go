package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/apperrors"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
)

const projectColumns = `id, tenant_id, name, total_budget, start_date, planned_end_date, status`

func scanProject(row rowScanner) (*model.Project, error) {
	var (
		p     model.Project
		start sql.NullTime
		end   sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.TotalBudget, &start, &end, &p.Status); err != nil {
		return nil, err
	}
	p.StartDate = start.Time
	p.PlannedEndDate = end.Time
	return &p, nil
}

func zeroTimeNull(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func (s *SQLite) UpsertProject(ctx context.Context, p *model.Project) error {
	if p.TenantID == "" {
		return apperrors.TenantRequired("upsert project")
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = model.ProjectPlanning
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(tenant_id, id) DO UPDATE SET
		   name = excluded.name,
		   total_budget = excluded.total_budget,
		   start_date = excluded.start_date,
		   planned_end_date = excluded.planned_end_date,
		   status = excluded.status`,
		p.ID, p.TenantID, p.Name, p.TotalBudget, zeroTimeNull(p.StartDate), zeroTimeNull(p.PlannedEndDate), p.Status,
	)
	if err != nil {
		return apperrors.DataAccess("upsert project", err)
	}
	return nil
}

func (s *SQLite) GetProject(ctx context.Context, tenantID, projectID string) (*model.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE tenant_id = ? AND id = ?`,
		tenantID, projectID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("project", projectID)
	}
	if err != nil {
		return nil, apperrors.DataAccess("get project", err)
	}
	return p, nil
}

func (s *SQLite) ListProjects(ctx context.Context, tenantID string) ([]model.Project, error) {
	return s.queryProjects(ctx, "list projects",
		`SELECT `+projectColumns+` FROM projects WHERE tenant_id = ? ORDER BY name, id`, tenantID)
}

func (s *SQLite) ListEligibleProjects(ctx context.Context, tenantID string, asOf time.Time) ([]model.Project, error) {
	projects, err := s.queryProjects(ctx, "list eligible projects",
		`SELECT `+projectColumns+` FROM projects
		 WHERE tenant_id = ? AND status NOT IN ('completed', 'cancelled') AND start_date IS NOT NULL
		 ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}

	eligible := projects[:0]
	for _, p := range projects {
		if p.Eligible(asOf) {
			eligible = append(eligible, p)
		}
	}
	return eligible, nil
}

func (s *SQLite) queryProjects(ctx context.Context, op, query string, args ...any) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.DataAccess(op, err)
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, apperrors.DataAccess("scan project row", err)
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DataAccess(op, err)
	}
	return projects, nil
}

func (s *SQLite) AddRecipient(ctx context.Context, tenantID, projectID string, r model.Recipient) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO project_members (tenant_id, project_id, user_id, email) VALUES (?, ?, ?, ?)
		 ON CONFLICT(tenant_id, project_id, user_id) DO UPDATE SET email = excluded.email`,
		tenantID, projectID, r.UserID, r.Email,
	)
	if err != nil {
		return apperrors.DataAccess("add recipient", err)
	}
	return nil
}

func (s *SQLite) ListRecipients(ctx context.Context, tenantID, projectID string) ([]model.Recipient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, email FROM project_members WHERE tenant_id = ? AND project_id = ? ORDER BY user_id`,
		tenantID, projectID,
	)
	if err != nil {
		return nil, apperrors.DataAccess("list recipients", err)
	}
	defer rows.Close()

	var out []model.Recipient
	for rows.Next() {
		var r model.Recipient
		if err := rows.Scan(&r.UserID, &r.Email); err != nil {
			return nil, apperrors.DataAccess("scan recipient row", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DataAccess("list recipients", err)
	}
	return out, nil
}

func (s *SQLite) SetAllocation(ctx context.Context, a *model.BudgetAllocation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO budget_allocations (tenant_id, project_id, category, stage, planned) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(tenant_id, project_id, category, stage) DO UPDATE SET planned = excluded.planned`,
		a.TenantID, a.ProjectID, a.Category, a.Stage, a.Planned,
	)
	if err != nil {
		return apperrors.DataAccess("set allocation", err)
	}
	return nil
}

func (s *SQLite) AddExpenditure(ctx context.Context, e *model.Expenditure) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.SpentAt.IsZero() {
		e.SpentAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO expenditures (id, tenant_id, project_id, category, stage, amount, spent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TenantID, e.ProjectID, e.Category, e.Stage, e.Amount, e.SpentAt.UTC(),
	)
	if err != nil {
		return apperrors.DataAccess("add expenditure", err)
	}
	return nil
}

func (s *SQLite) SumExpenditures(ctx context.Context, tenantID, projectID string, key model.PartitionKey) (float64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM expenditures WHERE tenant_id = ? AND project_id = ?`
	args := []any{tenantID, projectID}
	if key.Category != "" {
		query += " AND category = ?"
		args = append(args, key.Category)
	}
	if key.Stage != "" {
		query += " AND stage = ?"
		args = append(args, key.Stage)
	}

	var total float64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, apperrors.DataAccess("sum expenditures", err)
	}
	return total, nil
}

func (s *SQLite) Allocation(ctx context.Context, tenantID, projectID string, key model.PartitionKey) (float64, bool, error) {
	var planned float64
	err := s.db.QueryRowContext(ctx,
		`SELECT planned FROM budget_allocations
		 WHERE tenant_id = ? AND project_id = ? AND category = ? AND stage = ?`,
		tenantID, projectID, key.Category, key.Stage,
	).Scan(&planned)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, apperrors.DataAccess("get allocation", err)
	}
	return planned, true, nil
}

func (s *SQLite) ListPartitions(ctx context.Context, tenantID, projectID string) ([]model.PartitionKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, '' FROM budget_allocations WHERE tenant_id = ? AND project_id = ? AND category != ''
		 UNION SELECT category, '' FROM expenditures WHERE tenant_id = ? AND project_id = ? AND category != ''
		 UNION SELECT '', stage FROM budget_allocations WHERE tenant_id = ? AND project_id = ? AND stage != ''
		 UNION SELECT '', stage FROM expenditures WHERE tenant_id = ? AND project_id = ? AND stage != ''
		 ORDER BY 1, 2`,
		tenantID, projectID, tenantID, projectID, tenantID, projectID, tenantID, projectID,
	)
	if err != nil {
		return nil, apperrors.DataAccess("list partitions", err)
	}
	defer rows.Close()

	var keys []model.PartitionKey
	for rows.Next() {
		var k model.PartitionKey
		if err := rows.Scan(&k.Category, &k.Stage); err != nil {
			return nil, apperrors.DataAccess("scan partition row", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DataAccess("list partitions", err)
	}
	return keys, nil
}
