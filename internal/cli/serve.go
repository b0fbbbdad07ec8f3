package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/internal/config"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/internal/server"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/engine"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the evaluation scheduler",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "Listen address (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	listen := a.cfg.Server.Listen
	if l, _ := cmd.Flags().GetString("listen"); l != "" {
		listen = l
	}

	srv := &http.Server{
		Addr:         listen,
		Handler:      server.NewServer(a.svc, a.logger).Handler(),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		runScheduler(ctx, a.svc, a.cfg.Engine.Schedule, a.logger)
	}()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("guardian started", "listen", listen, "version", Version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		cancel()
		<-schedulerDone
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case sig := <-quit:
		a.logger.Info("shutting down", "signal", sig.String())
		cancel()
		<-schedulerDone
		sctx, scancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer scancel()
		return srv.Shutdown(sctx)
	}
}

// runScheduler fires a scheduled trigger and a dispatcher pass for every
// configured tenant on each tick until ctx is done.
func runScheduler(ctx context.Context, svc *engine.Service, cfg config.ScheduleConfig, logger *slog.Logger) {
	if cfg.Interval <= 0 || len(cfg.Tenants) == 0 {
		logger.Debug("scheduler disabled")
		return
	}

	logger.Info("scheduler started", "interval", cfg.Interval, "tenants", len(cfg.Tenants))
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, t := range cfg.Tenants {
			if ctx.Err() != nil {
				return
			}
			if _, err := svc.Trigger(ctx, engine.Request{TenantID: t, TriggerType: model.TriggerScheduled}); err != nil {
				logger.Error("scheduled trigger failed", "tenant", t, "error", err)
			}
			if _, err := svc.ProcessPending(ctx, t); err != nil {
				logger.Error("notification pass failed", "tenant", t, "error", err)
			}
		}
	}
}
