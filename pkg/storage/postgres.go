package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/apperrors"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
)

// closedProjectStatuses are the obras.status values excluded from bulk evaluations.
var closedProjectStatuses = []string{"concluida", "cancelada"}

// PostgresSource reads projects, budgets and expenditures straight from the
// application's Postgres schema (obras, orcamento, despesas, profiles).
type PostgresSource struct {
	db *sql.DB
}

// NewPostgresSource connects to the application database.
func NewPostgresSource(dsn string) (*PostgresSource, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgresSourceFromDB(db), nil
}

// NewPostgresSourceFromDB wraps an existing connection pool.
func NewPostgresSourceFromDB(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (p *PostgresSource) Close() error {
	return p.db.Close()
}

// projectStatusFromDB maps obras.status onto the engine's project statuses.
func projectStatusFromDB(v string) model.ProjectStatus {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "em_andamento", "in_progress":
		return model.ProjectInProgress
	case "pausada", "paused":
		return model.ProjectPaused
	case "concluida", "completed":
		return model.ProjectCompleted
	case "cancelada", "cancelled":
		return model.ProjectCancelled
	}
	return model.ProjectPlanning
}

func scanObra(row rowScanner) (*model.Project, error) {
	var (
		pr     model.Project
		status sql.NullString
		start  sql.NullTime
		end    sql.NullTime
		budget sql.NullFloat64
	)
	if err := row.Scan(&pr.ID, &pr.Name, &pr.TenantID, &status, &start, &end, &budget); err != nil {
		return nil, err
	}
	pr.Status = projectStatusFromDB(status.String)
	pr.StartDate = start.Time
	pr.PlannedEndDate = end.Time
	pr.TotalBudget = budget.Float64
	return &pr, nil
}

const obraColumns = `id, nome, tenant_id, status, data_inicio, data_fim_prevista, orcamento_total`

func (p *PostgresSource) GetProject(ctx context.Context, tenantID, projectID string) (*model.Project, error) {
	pr, err := scanObra(p.db.QueryRowContext(ctx,
		`SELECT `+obraColumns+` FROM obras WHERE tenant_id = $1 AND id = $2`,
		tenantID, projectID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("project", projectID)
	}
	if err != nil {
		return nil, apperrors.DataAccess("get project", err)
	}
	return pr, nil
}

func (p *PostgresSource) ListEligibleProjects(ctx context.Context, tenantID string, asOf time.Time) ([]model.Project, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+obraColumns+` FROM obras
		 WHERE tenant_id = $1 AND data_inicio IS NOT NULL AND data_inicio <= $2
		   AND NOT (COALESCE(status, '') = ANY($3))
		 ORDER BY id`,
		tenantID, asOf, pq.Array(closedProjectStatuses),
	)
	if err != nil {
		return nil, apperrors.DataAccess("list eligible projects", err)
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		pr, err := scanObra(rows)
		if err != nil {
			return nil, apperrors.DataAccess("scan project row", err)
		}
		if pr.Eligible(asOf) {
			projects = append(projects, *pr)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DataAccess("list eligible projects", err)
	}
	return projects, nil
}

func (p *PostgresSource) ListRecipients(ctx context.Context, tenantID, projectID string) ([]model.Recipient, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT o.usuario_id, COALESCE(pr.email, '')
		 FROM obras o LEFT JOIN profiles pr ON pr.id = o.usuario_id
		 WHERE o.tenant_id = $1 AND o.id = $2 AND o.usuario_id IS NOT NULL`,
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

func (p *PostgresSource) SumExpenditures(ctx context.Context, tenantID, projectID string, key model.PartitionKey) (float64, error) {
	query := `SELECT COALESCE(SUM(custo), 0) FROM despesas WHERE tenant_id = $1 AND obra_id = $2`
	args := []any{tenantID, projectID}
	if key.Category != "" {
		args = append(args, key.Category)
		query += fmt.Sprintf(" AND categoria = $%d", len(args))
	}
	if key.Stage != "" {
		args = append(args, key.Stage)
		query += fmt.Sprintf(" AND etapa = $%d", len(args))
	}

	var total float64
	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, apperrors.DataAccess("sum expenditures", err)
	}
	return total, nil
}

// Allocation sums the orcamento lines of a category or stage. Budgets are
// stored as line items, so a partition is found when it has at least one line.
func (p *PostgresSource) Allocation(ctx context.Context, tenantID, projectID string, key model.PartitionKey) (float64, bool, error) {
	column, value := "categoria", key.Category
	if key.Category == "" {
		column, value = "etapa", key.Stage
	}

	var (
		planned float64
		lines   int
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(orc.custo), 0), COUNT(*)
		 FROM orcamento orc JOIN obras o ON o.id = orc.obra_id
		 WHERE o.tenant_id = $1 AND orc.obra_id = $2 AND orc.`+column+` = $3`,
		tenantID, projectID, value,
	).Scan(&planned, &lines)
	if err != nil {
		return 0, false, apperrors.DataAccess("get allocation", err)
	}
	return planned, lines > 0, nil
}

func (p *PostgresSource) ListPartitions(ctx context.Context, tenantID, projectID string) ([]model.PartitionKey, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT categoria, '' FROM despesas WHERE tenant_id = $1 AND obra_id = $2 AND COALESCE(categoria, '') <> ''
		 UNION SELECT '', etapa FROM despesas WHERE tenant_id = $1 AND obra_id = $2 AND COALESCE(etapa, '') <> ''
		 UNION SELECT orc.categoria, '' FROM orcamento orc JOIN obras o ON o.id = orc.obra_id
		       WHERE o.tenant_id = $1 AND orc.obra_id = $2 AND COALESCE(orc.categoria, '') <> ''
		 ORDER BY 1, 2`,
		tenantID, projectID,
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
