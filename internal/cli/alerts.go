package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/deviation"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Inspect and manage deviation alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts",
	RunE:  runAlertsList,
}

var alertsShowCmd = &cobra.Command{
	Use:   "show <alert-id>",
	Short: "Show one alert",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertsShow,
}

var alertsHistoryCmd = &cobra.Command{
	Use:   "history <alert-id>",
	Short: "Show the history of an alert",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertsHistory,
}

var alertsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize alerts by status and severity",
	RunE:  runAlertsSummary,
}

var alertsStatusCmd = &cobra.Command{
	Use:   "status <alert-id> <VIEWED|RESOLVED|IGNORED>",
	Short: "Change the status of an alert",
	Args:  cobra.ExactArgs(2),
	RunE:  runAlertsStatus,
}

var alertsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete alerts with their notifications and history",
	RunE:  runAlertsPurge,
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.AddCommand(alertsListCmd, alertsShowCmd, alertsHistoryCmd, alertsSummaryCmd, alertsStatusCmd, alertsPurgeCmd)

	alertsListCmd.Flags().StringP("project", "p", "", "Filter by project")
	alertsListCmd.Flags().StringSliceP("status", "s", nil, "Filter by status (repeatable)")
	alertsListCmd.Flags().StringSlice("severity", nil, "Filter by severity (repeatable)")
	alertsListCmd.Flags().String("since", "", "Only alerts created after this duration ago (e.g. 24h)")
	alertsListCmd.Flags().IntP("limit", "n", 50, "Maximum number of alerts")

	alertsSummaryCmd.Flags().StringP("project", "p", "", "Summarize one project")

	alertsStatusCmd.Flags().StringP("user", "u", "", "Acting user id")
	alertsStatusCmd.Flags().String("note", "", "Resolution note")
	_ = alertsStatusCmd.MarkFlagRequired("user")

	alertsPurgeCmd.Flags().StringP("project", "p", "", "Purge only this project")
	alertsPurgeCmd.Flags().Bool("yes", false, "Confirm the purge")
}

func alertFilterFromFlags(cmd *cobra.Command) (model.AlertFilter, error) {
	project, _ := cmd.Flags().GetString("project")
	statuses, _ := cmd.Flags().GetStringSlice("status")
	severities, _ := cmd.Flags().GetStringSlice("severity")
	since, _ := cmd.Flags().GetString("since")
	limit, _ := cmd.Flags().GetInt("limit")

	f := model.AlertFilter{ProjectID: project, Limit: limit}
	for _, s := range statuses {
		st, err := model.ParseAlertStatus(s)
		if err != nil {
			return f, err
		}
		f.Statuses = append(f.Statuses, st)
	}
	for _, s := range severities {
		sev, err := model.ParseSeverity(s)
		if err != nil {
			return f, err
		}
		f.Severities = append(f.Severities, sev)
	}
	if since != "" {
		d, err := time.ParseDuration(since)
		if err != nil {
			return f, fmt.Errorf("invalid --since: %w", err)
		}
		f.From = time.Now().Add(-d)
	}
	return f, nil
}

func partitionLabel(a *model.DeviationAlert) string {
	return a.Key().String()
}

func runAlertsList(cmd *cobra.Command, _ []string) error {
	filter, err := alertFilterFromFlags(cmd)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.svc.ListAlerts(cmd.Context(), tenant, filter)
	if err != nil {
		return fmt.Errorf("list alerts: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No alerts found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tPROJECT\tPARTITION\tSEVERITY\tSTATUS\tDEVIATION\tPLANNED\tREALIZED\tCREATED\n")
	for i := range list {
		al := &list[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			al.ID, al.ProjectID, partitionLabel(al), al.Severity, al.Status,
			deviation.FormatPct(al.DeviationPct), deviation.FormatBRL(al.Planned), deviation.FormatBRL(al.Realized),
			al.CreatedAt.Local().Format("2006-01-02 15:04"),
		)
	}
	w.Flush()

	return nil
}

func runAlertsShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	al, err := a.svc.GetAlert(cmd.Context(), tenant, args[0])
	if err != nil {
		return fmt.Errorf("get alert: %w", err)
	}

	fmt.Printf("Alert %s\n", al.ID)
	fmt.Printf("  Project:    %s (%s)\n", al.ProjectID, partitionLabel(al))
	fmt.Printf("  Severity:   %s (%s)\n", al.Severity, al.SeverityInfo.Label)
	fmt.Printf("  Status:     %s\n", al.Status)
	fmt.Printf("  Deviation:  %s (%s)\n", deviation.FormatPct(al.DeviationPct), deviation.FormatBRL(al.DeviationValue))
	fmt.Printf("  Planned:    %s\n", deviation.FormatBRL(al.Planned))
	fmt.Printf("  Realized:   %s\n", deviation.FormatBRL(al.Realized))
	fmt.Printf("  Created:    %s\n", al.CreatedAt.Local().Format(time.RFC3339))
	if al.ViewedBy != "" {
		fmt.Printf("  Viewed by:  %s\n", al.ViewedBy)
	}
	if al.ResolvedBy != "" {
		fmt.Printf("  Closed by:  %s\n", al.ResolvedBy)
	}
	if al.ResolutionNote != "" {
		fmt.Printf("  Note:       %s\n", al.ResolutionNote)
	}
	fmt.Printf("\n%s\n", al.Description)

	return nil
}

func runAlertsHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	history, err := a.svc.History(cmd.Context(), tenant, args[0])
	if err != nil {
		return fmt.Errorf("alert history: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "WHEN\tACTION\tSTATUS\tSEVERITY\tDEVIATION\tACTOR\tNOTE\n")
	for _, h := range history {
		status := string(h.NewStatus)
		if h.PreviousStatus != "" && h.PreviousStatus != h.NewStatus {
			status = string(h.PreviousStatus) + " -> " + status
		}
		severity := string(h.NewSeverity)
		if h.PreviousSeverity != "" && h.PreviousSeverity != h.NewSeverity {
			severity = string(h.PreviousSeverity) + " -> " + severity
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s:%s\t%s\n",
			h.CreatedAt.Local().Format("2006-01-02 15:04:05"), h.Action, status, severity,
			deviation.FormatPct(h.DeviationPct), h.Actor.Kind, h.Actor.ID, h.Note,
		)
	}
	w.Flush()

	return nil
}

func runAlertsSummary(cmd *cobra.Command, _ []string) error {
	project, _ := cmd.Flags().GetString("project")

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.svc.Summary(cmd.Context(), tenant, project)
	if err != nil {
		return fmt.Errorf("summarize alerts: %w", err)
	}

	fmt.Printf("Alerts: %d total\n", s.Total)
	fmt.Printf("  Active:    %d\n", s.Active)
	fmt.Printf("  Viewed:    %d\n", s.Viewed)
	fmt.Printf("  Resolved:  %d\n", s.Resolved)
	fmt.Printf("  Ignored:   %d\n", s.Ignored)
	fmt.Printf("Open by severity: critical %d, high %d, medium %d, low %d\n", s.Critical, s.High, s.Medium, s.Low)
	if s.AvgResolutionMinutes > 0 {
		fmt.Printf("Average time to resolve: %s\n", time.Duration(s.AvgResolutionMinutes*float64(time.Minute)).Round(time.Minute))
	}

	return nil
}

func runAlertsStatus(cmd *cobra.Command, args []string) error {
	user, _ := cmd.Flags().GetString("user")
	note, _ := cmd.Flags().GetString("note")

	to, err := model.ParseAlertStatus(args[1])
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	al, err := a.svc.UpdateStatus(cmd.Context(), tenant, args[0], to, user, note)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	fmt.Printf("Alert %s is now %s\n", al.ID, al.Status)
	return nil
}

func runAlertsPurge(cmd *cobra.Command, _ []string) error {
	project, _ := cmd.Flags().GetString("project")
	yes, _ := cmd.Flags().GetBool("yes")

	scope := "all projects"
	if project != "" {
		scope = "project " + project
	}
	if !yes {
		return fmt.Errorf("refusing to purge alerts of tenant %s (%s) without --yes", tenant, scope)
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.svc.Purge(cmd.Context(), tenant, project)
	if err != nil {
		return fmt.Errorf("purge alerts: %w", err)
	}

	fmt.Printf("Purged %d alert(s) from %s\n", n, scope)
	return nil
}
