package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage alert configurations",
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the alert configuration that applies to a project",
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or update an alert configuration",
	RunE:  runConfigSet,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configGetCmd, configSetCmd)

	for _, c := range []*cobra.Command{configGetCmd, configSetCmd} {
		c.Flags().StringP("project", "p", "", "Project id")
		c.Flags().StringP("user", "u", "", "User id (per-user override)")
		_ = c.MarkFlagRequired("project")
	}

	configSetCmd.Flags().Float64("low", 0, "Low threshold percentage")
	configSetCmd.Flags().Float64("medium", 0, "Medium threshold percentage")
	configSetCmd.Flags().Float64("high", 0, "High threshold percentage")
	configSetCmd.Flags().Float64("critical", 0, "Critical threshold percentage")
	configSetCmd.Flags().StringSlice("channels", nil, "Enabled channels (dashboard, email, webhook)")
	configSetCmd.Flags().String("webhook-url", "", "Webhook target URL")
	configSetCmd.Flags().Bool("per-category", true, "Evaluate each budget category")
	configSetCmd.Flags().Bool("per-stage", true, "Evaluate each construction stage")
	configSetCmd.Flags().Int("frequency", 60, "Scheduled check frequency in minutes")
	configSetCmd.Flags().Bool("active", true, "Enable evaluation for the project")
}

func runConfigGet(cmd *cobra.Command, _ []string) error {
	project, _ := cmd.Flags().GetString("project")
	user, _ := cmd.Flags().GetString("user")

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	cfg, err := a.svc.GetConfiguration(cmd.Context(), tenant, project, user)
	if err != nil {
		return fmt.Errorf("get configuration: %w", err)
	}

	printConfiguration(cfg)
	return nil
}

func runConfigSet(cmd *cobra.Command, _ []string) error {
	project, _ := cmd.Flags().GetString("project")
	user, _ := cmd.Flags().GetString("user")

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	cfg, err := a.svc.GetConfiguration(cmd.Context(), tenant, project, user)
	if err != nil {
		return fmt.Errorf("get configuration: %w", err)
	}
	// A user override starts from whatever applied before it.
	if cfg.UserID != user {
		cfg.ID = ""
		cfg.UserID = user
	}

	if err := applyConfigFlags(cmd, cfg); err != nil {
		return err
	}

	saved, err := a.svc.UpsertConfiguration(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("save configuration: %w", err)
	}

	fmt.Println("Configuration saved:")
	printConfiguration(saved)
	return nil
}

// applyConfigFlags copies the flags the user set onto cfg.
func applyConfigFlags(cmd *cobra.Command, cfg *model.AlertConfiguration) error {
	f := cmd.Flags()
	if f.Changed("low") {
		cfg.Thresholds.Low, _ = f.GetFloat64("low")
	}
	if f.Changed("medium") {
		cfg.Thresholds.Medium, _ = f.GetFloat64("medium")
	}
	if f.Changed("high") {
		cfg.Thresholds.High, _ = f.GetFloat64("high")
	}
	if f.Changed("critical") {
		cfg.Thresholds.Critical, _ = f.GetFloat64("critical")
	}
	if f.Changed("channels") {
		channels, _ := f.GetStringSlice("channels")
		cfg.Channels.Dashboard.Enabled = false
		cfg.Channels.Email.Enabled = false
		cfg.Channels.Webhook.Enabled = false
		for _, c := range channels {
			switch model.Channel(strings.ToLower(strings.TrimSpace(c))) {
			case model.ChannelDashboard:
				cfg.Channels.Dashboard.Enabled = true
			case model.ChannelEmail:
				cfg.Channels.Email.Enabled = true
			case model.ChannelWebhook:
				cfg.Channels.Webhook.Enabled = true
			default:
				return fmt.Errorf("unknown channel %q", c)
			}
		}
	}
	if f.Changed("webhook-url") {
		cfg.Channels.Webhook.URL, _ = f.GetString("webhook-url")
	}
	if f.Changed("per-category") {
		cfg.PerCategory, _ = f.GetBool("per-category")
	}
	if f.Changed("per-stage") {
		cfg.PerStage, _ = f.GetBool("per-stage")
	}
	if f.Changed("frequency") {
		cfg.CheckFrequencyMinutes, _ = f.GetInt("frequency")
	}
	if f.Changed("active") {
		cfg.Active, _ = f.GetBool("active")
	}
	return nil
}

func printConfiguration(cfg *model.AlertConfiguration) {
	scope := "system default"
	switch {
	case cfg.UserID != "":
		scope = "user " + cfg.UserID
	case cfg.ID != "":
		scope = "project"
	}

	fmt.Printf("  Project:     %s (%s)\n", cfg.ProjectID, scope)
	fmt.Printf("  Thresholds:  low %.1f%%, medium %.1f%%, high %.1f%%, critical %.1f%%\n",
		cfg.Thresholds.Low, cfg.Thresholds.Medium, cfg.Thresholds.High, cfg.Thresholds.Critical)

	var channels []string
	for _, c := range cfg.Channels.Enabled() {
		channels = append(channels, string(c))
	}
	fmt.Printf("  Channels:    %s\n", strings.Join(channels, ", "))
	if cfg.Channels.Webhook.URL != "" {
		fmt.Printf("  Webhook:     %s\n", cfg.Channels.Webhook.URL)
	}
	fmt.Printf("  Partitions:  per-category=%t per-stage=%t\n", cfg.PerCategory, cfg.PerStage)
	fmt.Printf("  Frequency:   every %d min\n", cfg.CheckFrequencyMinutes)
	fmt.Printf("  Active:      %t\n", cfg.Active)
}
