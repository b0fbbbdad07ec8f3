package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/internal/config"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/internal/logging"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/internal/metrics"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/internal/tracing"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/alerts"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/deviation"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/engine"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/storage"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	cfgFile string
	tenant  string
)

var rootCmd = &cobra.Command{
	Use:   "bdg",
	Short: "Budget Deviation Guardian - budget deviation alerts for construction projects",
	Long: `Budget Deviation Guardian compares planned and realized spend of construction
projects, raises tiered deviation alerts, tracks their lifecycle and notifies
the people responsible through the dashboard, email and webhooks.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.bdg/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&tenant, "tenant", "t", os.Getenv("BDG_TENANT"), "tenant id (default: $BDG_TENANT)")
}

// loadConfig loads the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// app holds the wired engine for one command run.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *storage.SQLite
	svc     *engine.Service
	closers []func() error
}

// newApp loads configuration and wires storage, sources, channels and the engine.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, closers: []func() error{closeLog}}

	shutdown, err := tracing.Setup(ctx, cfg.Tracing, Version, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, func() error {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdown(sctx)
	})

	store, err := storage.NewSQLite(cfg.Storage.Path)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	projects, expenditures, err := a.initSource()
	if err != nil {
		a.Close()
		return nil, err
	}

	notifiers, err := a.initNotifiers()
	if err != nil {
		a.Close()
		return nil, err
	}

	recorder := metrics.Recorder{}
	dispatcher := engine.NewDispatcher(store, notifiers, cfg.DispatcherConfig(), logger).WithRecorder(recorder)
	if cfg.Slack.Enabled {
		dispatcher.WithOperator(alerts.NewSlackNotifier(cfg.Slack.WebhookURL, cfg.Slack.Channel))
	}
	evaluator := engine.NewEvaluator(projects, expenditures, store, dispatcher, cfg.Engine.PartitionWorkers, logger).
		WithRecorder(recorder).
		WithDefaults(cfg.DefaultAlertConfiguration())
	trigger := engine.NewTrigger(evaluator, projects, store, cfg.TriggerConfig(), logger)
	a.svc = engine.NewService(store, evaluator, trigger, dispatcher, logger)

	return a, nil
}

// initSource picks where projects and expenditures are read from.
func (a *app) initSource() (deviation.ProjectSource, deviation.ExpenditureSource, error) {
	switch a.cfg.Source.Driver {
	case config.DriverPostgres:
		src, err := storage.NewPostgresSource(a.cfg.Source.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("init project source: %w", err)
		}
		a.closers = append(a.closers, src.Close)
		return src, src, nil
	default:
		return a.store, a.store, nil
	}
}

// initNotifiers creates the delivery channels from config. Dashboard and
// webhook are always available; email needs SMTP settings.
func (a *app) initNotifiers() ([]alerts.Notifier, error) {
	cfg := a.cfg

	var publisher alerts.Publisher
	if cfg.Dashboard.RedisAddr != "" {
		client := alerts.NewRedisPublisher(cfg.Dashboard.RedisAddr, cfg.Dashboard.RedisPassword, cfg.Dashboard.RedisDB)
		a.closers = append(a.closers, client.Close)
		publisher = client
	}

	notifiers := []alerts.Notifier{
		alerts.NewDashboardNotifier(publisher, cfg.Dashboard.Prefix),
		alerts.NewWebhookNotifier(cfg.Webhook.Secret, cfg.Webhook.Timeout),
	}

	if cfg.Email.Enabled {
		email, err := alerts.NewEmailNotifier(cfg.EmailSettings())
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, email)
	}
	return notifiers, nil
}

// Close releases everything newApp opened, most recent first.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
