// Package deviation compares planned and realized spend and classifies the gap.
package deviation

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/apperrors"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
)

// ProjectSource is the read side of the project module.
type ProjectSource interface {
	// GetProject returns the project or a NotFoundError.
	GetProject(ctx context.Context, tenantID, projectID string) (*model.Project, error)

	// ListEligibleProjects returns the projects a bulk evaluation covers at asOf.
	ListEligibleProjects(ctx context.Context, tenantID string, asOf time.Time) ([]model.Project, error)

	// ListRecipients returns the users responsible for a project.
	ListRecipients(ctx context.Context, tenantID, projectID string) ([]model.Recipient, error)
}

// ExpenditureSource is the read side of the expenditure module.
type ExpenditureSource interface {
	// SumExpenditures totals spend for a partition. The zero key sums the whole project.
	SumExpenditures(ctx context.Context, tenantID, projectID string, key model.PartitionKey) (float64, error)

	// Allocation returns the planned value for a category or stage partition.
	Allocation(ctx context.Context, tenantID, projectID string, key model.PartitionKey) (planned float64, found bool, err error)

	// ListPartitions returns the categories and stages seen in allocations or spend.
	ListPartitions(ctx context.Context, tenantID, projectID string) ([]model.PartitionKey, error)
}

// Result holds the figures computed for one partition.
type Result struct {
	Key            model.PartitionKey `json:"key"`
	Planned        float64            `json:"planned"`
	Realized       float64            `json:"realized"`
	DeviationValue float64            `json:"deviation_value"`
	DeviationPct   model.Percentage   `json:"deviation_pct"`
}

// Empty reports the 0/0 case, which never produces an alert.
func (r Result) Empty() bool { return r.Planned == 0 && r.Realized == 0 }

// Compute derives the deviation figures. A zero plan with spend yields +Inf.
func Compute(key model.PartitionKey, planned, realized float64) Result {
	r := Result{
		Key:            key,
		Planned:        planned,
		Realized:       realized,
		DeviationValue: realized - planned,
	}
	switch {
	case planned > 0:
		pct := r.DeviationValue * 100 / planned
		r.DeviationPct = model.Percentage(math.Round(pct*1e6) / 1e6)
	case realized > 0:
		r.DeviationPct = model.Percentage(math.Inf(1))
	}
	return r
}

// Calculator reads budgets and expenditures and computes deviations.
type Calculator struct {
	projects     ProjectSource
	expenditures ExpenditureSource
}

// NewCalculator creates a calculator over the given collaborators.
func NewCalculator(projects ProjectSource, expenditures ExpenditureSource) *Calculator {
	return &Calculator{projects: projects, expenditures: expenditures}
}

// Project loads a project, mapping collaborator faults onto the error taxonomy.
func (c *Calculator) Project(ctx context.Context, tenantID, projectID string) (*model.Project, error) {
	if tenantID == "" {
		return nil, apperrors.TenantRequired("get project")
	}
	p, err := c.projects.GetProject(ctx, tenantID, projectID)
	if err != nil {
		return nil, classify("get project", err)
	}
	return p, nil
}

// Partitions lists the keys to evaluate. The project-level key always comes first.
func (c *Calculator) Partitions(ctx context.Context, tenantID, projectID string, perCategory, perStage bool) ([]model.PartitionKey, error) {
	keys := []model.PartitionKey{{}}
	if !perCategory && !perStage {
		return keys, nil
	}

	found, err := c.expenditures.ListPartitions(ctx, tenantID, projectID)
	if err != nil {
		return nil, classify("list partitions", err)
	}
	for _, k := range found {
		switch {
		case k.IsProject():
		case k.Stage == "" && perCategory:
			keys = append(keys, k)
		case k.Category == "" && perStage:
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Calculate computes the figures for one partition of project.
// It returns ok=false for a category or stage with no allocation.
func (c *Calculator) Calculate(ctx context.Context, project *model.Project, key model.PartitionKey) (Result, bool, error) {
	planned := project.TotalBudget
	if !key.IsProject() {
		v, found, err := c.expenditures.Allocation(ctx, project.TenantID, project.ID, key)
		if err != nil {
			return Result{}, false, classify("get allocation", err)
		}
		if !found {
			return Result{}, false, nil
		}
		planned = v
	}

	realized, err := c.expenditures.SumExpenditures(ctx, project.TenantID, project.ID, key)
	if err != nil {
		return Result{}, false, classify("sum expenditures", err)
	}

	return Compute(key, planned, realized), true, nil
}

// classify keeps taxonomy errors and wraps anything else as a data-layer fault.
func classify(op string, err error) error {
	var coded apperrors.Coder
	if errors.As(err, &coded) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperrors.DataAccess(op, err)
}
