package storage_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/apperrors"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockSource(t *testing.T) (*storage.PostgresSource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return storage.NewPostgresSourceFromDB(db), mock
}

var obraCols = []string{"id", "nome", "tenant_id", "status", "data_inicio", "data_fim_prevista", "orcamento_total"}

func TestPostgres_GetProject(t *testing.T) {
	src, mock := newMockSource(t)
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM obras WHERE tenant_id = \$1 AND id = \$2`).
		WithArgs("t1", "p1").
		WillReturnRows(sqlmock.NewRows(obraCols).
			AddRow("p1", "Casa", "t1", "em_andamento", start, nil, 100000.0))

	p, err := src.GetProject(context.Background(), "t1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "Casa", p.Name)
	assert.Equal(t, model.ProjectInProgress, p.Status)
	assert.Equal(t, 100000.0, p.TotalBudget)
	assert.True(t, start.Equal(p.StartDate))
	assert.True(t, p.PlannedEndDate.IsZero())
}

func TestPostgres_GetProject_NotFound(t *testing.T) {
	src, mock := newMockSource(t)

	mock.ExpectQuery(`FROM obras`).
		WithArgs("t1", "missing").
		WillReturnRows(sqlmock.NewRows(obraCols))

	_, err := src.GetProject(context.Background(), "t1", "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPostgres_DataAccessErrors(t *testing.T) {
	src, mock := newMockSource(t)

	mock.ExpectQuery(`FROM despesas`).WillReturnError(errors.New("connection reset"))

	_, err := src.SumExpenditures(context.Background(), "t1", "p1", model.PartitionKey{})
	assert.ErrorIs(t, err, apperrors.ErrDataAccess)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestPostgres_ListEligibleProjects(t *testing.T) {
	src, mock := newMockSource(t)
	asOf := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM obras\s+WHERE tenant_id = \$1 AND data_inicio IS NOT NULL`).
		WithArgs("t1", asOf, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(obraCols).
			AddRow("p1", "Casa", "t1", "planejamento", asOf.AddDate(0, -1, 0), nil, 50000.0).
			AddRow("p2", "Sem orçamento", "t1", nil, asOf.AddDate(0, -1, 0), nil, nil))

	projects, err := src.ListEligibleProjects(context.Background(), "t1", asOf)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, model.ProjectPlanning, projects[1].Status)
	assert.Zero(t, projects[1].TotalBudget)
}

func TestPostgres_ListRecipients(t *testing.T) {
	src, mock := newMockSource(t)

	mock.ExpectQuery(`LEFT JOIN profiles`).
		WithArgs("t1", "p1").
		WillReturnRows(sqlmock.NewRows([]string{"usuario_id", "email"}).AddRow("u1", "dono@example.com"))

	recipients, err := src.ListRecipients(context.Background(), "t1", "p1")
	require.NoError(t, err)
	assert.Equal(t, []model.Recipient{{UserID: "u1", Email: "dono@example.com"}}, recipients)
}

func TestPostgres_SumExpenditures(t *testing.T) {
	tests := []struct {
		name  string
		key   model.PartitionKey
		query string
		args  []driver.Value
	}{
		{"project", model.PartitionKey{}, `obra_id = \$2$`, []driver.Value{"t1", "p1"}},
		{"category", model.PartitionKey{Category: "materiais"}, `AND categoria = \$3$`, []driver.Value{"t1", "p1", "materiais"}},
		{"stage", model.PartitionKey{Stage: "fundacao"}, `AND etapa = \$3$`, []driver.Value{"t1", "p1", "fundacao"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, mock := newMockSource(t)
			mock.ExpectQuery(tt.query).
				WithArgs(tt.args...).
				WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(1234.5))

			total, err := src.SumExpenditures(context.Background(), "t1", "p1", tt.key)
			require.NoError(t, err)
			assert.Equal(t, 1234.5, total)
		})
	}
}

func TestPostgres_Allocation(t *testing.T) {
	src, mock := newMockSource(t)

	mock.ExpectQuery(`FROM orcamento orc JOIN obras o ON o.id = orc.obra_id.*orc.categoria = \$3`).
		WithArgs("t1", "p1", "materiais").
		WillReturnRows(sqlmock.NewRows([]string{"sum", "count"}).AddRow(40000.0, 3))
	mock.ExpectQuery(`orc.etapa = \$3`).
		WithArgs("t1", "p1", "fundacao").
		WillReturnRows(sqlmock.NewRows([]string{"sum", "count"}).AddRow(0.0, 0))

	planned, found, err := src.Allocation(context.Background(), "t1", "p1", model.PartitionKey{Category: "materiais"})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 40000.0, planned)

	_, found, err = src.Allocation(context.Background(), "t1", "p1", model.PartitionKey{Stage: "fundacao"})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPostgres_ListPartitions(t *testing.T) {
	src, mock := newMockSource(t)

	mock.ExpectQuery(`UNION`).
		WithArgs("t1", "p1").
		WillReturnRows(sqlmock.NewRows([]string{"categoria", "etapa"}).
			AddRow("", "fundacao").
			AddRow("materiais", ""))

	keys, err := src.ListPartitions(context.Background(), "t1", "p1")
	require.NoError(t, err)
	assert.Equal(t, []model.PartitionKey{{Stage: "fundacao"}, {Category: "materiais"}}, keys)
}
