package cli

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/storage"
)

// Fixture is the YAML document loaded by `bdg projects import`.
type Fixture struct {
	TenantID string           `yaml:"tenant_id"`
	Projects []FixtureProject `yaml:"projects"`
}

// FixtureProject is a project with its members, allocations and spend.
type FixtureProject struct {
	model.Project `yaml:",inline"`
	Members       []model.Recipient        `yaml:"members"`
	Allocations   []model.BudgetAllocation `yaml:"allocations"`
	Expenditures  []model.Expenditure      `yaml:"expenditures"`
}

// ImportStats counts what an import wrote.
type ImportStats struct {
	Projects     int
	Members      int
	Allocations  int
	Expenditures int
}

// LoadFixture reads a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}

	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return &f, nil
}

// ImportFixture writes a fixture into the local project mirror. tenantID
// overrides the tenant named in the file. Expenditures are appended.
func ImportFixture(ctx context.Context, store storage.ProjectStore, f *Fixture, tenantID string) (ImportStats, error) {
	var stats ImportStats
	if tenantID == "" {
		tenantID = f.TenantID
	}
	if tenantID == "" {
		return stats, fmt.Errorf("fixture has no tenant_id and no --tenant was given")
	}

	for i := range f.Projects {
		fp := &f.Projects[i]
		if fp.ID == "" {
			return stats, fmt.Errorf("project #%d has no id", i+1)
		}
		if fp.Status == "" {
			fp.Status = model.ProjectInProgress
		}

		p := fp.Project
		p.TenantID = tenantID
		if err := store.UpsertProject(ctx, &p); err != nil {
			return stats, fmt.Errorf("import project %s: %w", p.ID, err)
		}
		stats.Projects++

		for _, m := range fp.Members {
			if err := store.AddRecipient(ctx, tenantID, p.ID, m); err != nil {
				return stats, fmt.Errorf("import member %s of %s: %w", m.UserID, p.ID, err)
			}
			stats.Members++
		}

		for _, a := range fp.Allocations {
			a.TenantID = tenantID
			a.ProjectID = p.ID
			if err := store.SetAllocation(ctx, &a); err != nil {
				return stats, fmt.Errorf("import allocation of %s: %w", p.ID, err)
			}
			stats.Allocations++
		}

		for _, e := range fp.Expenditures {
			e.TenantID = tenantID
			e.ProjectID = p.ID
			if err := store.AddExpenditure(ctx, &e); err != nil {
				return stats, fmt.Errorf("import expenditure of %s: %w", p.ID, err)
			}
			stats.Expenditures++
		}
	}
	return stats, nil
}
