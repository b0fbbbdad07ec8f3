package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/deviation"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage the local project mirror",
}

var projectsImportCmd = &cobra.Command{
	Use:   "import <fixture.yaml>",
	Short: "Import projects, members, allocations and expenditures from YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectsImport,
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects in the local mirror",
	RunE:  runProjectsList,
}

func init() {
	rootCmd.AddCommand(projectsCmd)
	projectsCmd.AddCommand(projectsImportCmd, projectsListCmd)
}

func runProjectsImport(cmd *cobra.Command, args []string) error {
	fixture, err := LoadFixture(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := ImportFixture(cmd.Context(), a.store, fixture, tenant)
	if err != nil {
		return err
	}

	fmt.Printf("Imported %d project(s), %d member(s), %d allocation(s), %d expenditure(s)\n",
		stats.Projects, stats.Members, stats.Allocations, stats.Expenditures)
	return nil
}

func runProjectsList(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	projects, err := a.store.ListProjects(cmd.Context(), tenant)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}

	if len(projects) == 0 {
		fmt.Println("No projects found. Use 'bdg projects import' to load some.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tNAME\tSTATUS\tBUDGET\tSPENT\tSTART\n")
	for _, p := range projects {
		spent, err := a.store.SumExpenditures(cmd.Context(), tenant, p.ID, model.PartitionKey{})
		if err != nil {
			return fmt.Errorf("sum expenditures: %w", err)
		}
		start := "-"
		if !p.StartDate.IsZero() {
			start = p.StartDate.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Name, p.Status, deviation.FormatBRL(p.TotalBudget), deviation.FormatBRL(spent), start)
	}
	w.Flush()

	return nil
}
