package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/engine"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate budget deviations for one project or all eligible projects",
	RunE:  runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringP("project", "p", "", "Evaluate only this project")
	evaluateCmd.Flags().Bool("scheduled", false, "Honor each project's check frequency")
	evaluateCmd.Flags().BoolP("verbose", "v", false, "Show per-project reports")
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	project, _ := cmd.Flags().GetString("project")
	scheduled, _ := cmd.Flags().GetBool("scheduled")
	verbose, _ := cmd.Flags().GetBool("verbose")

	req := engine.Request{TenantID: tenant, ProjectID: project, TriggerType: model.TriggerManual}
	if scheduled {
		req.TriggerType = model.TriggerScheduled
	}

	res, err := a.svc.Trigger(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	fmt.Printf("Evaluation %s:\n", req.TriggerType)
	fmt.Printf("  Processed:      %d\n", res.ProjectsProcessed)
	fmt.Printf("  Skipped:        %d\n", res.ProjectsSkipped)
	fmt.Printf("  Failed:         %d\n", res.ProjectsFailed)
	fmt.Printf("  Created:        %d\n", res.AlertsCreated)
	fmt.Printf("  Escalated:      %d\n", res.AlertsEscalated)
	fmt.Printf("  Auto-resolved:  %d\n", res.AlertsAutoResolved)

	if verbose && len(res.Reports) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "PROJECT\tPARTITIONS\tCREATED\tESCALATED\tUPDATED\tRESOLVED\tNOTE\n")
		for _, r := range res.Reports {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
				r.ProjectID, len(r.Partitions), r.Created, r.Escalated, r.Updated, r.AutoResolved, r.SkipReason)
		}
		w.Flush()
	}

	if len(res.Errors) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "PROJECT\tCODE\tREASON\n")
		for _, e := range res.Errors {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.ProjectID, e.Code, e.Reason)
		}
		w.Flush()
	}

	return nil
}
