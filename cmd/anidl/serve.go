package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"anidl/internal/core"
	"anidl/internal/handlers"
	"anidl/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var runNow bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run on a schedule and expose the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			a, err := openApp(*cfg, false, true)
			if err != nil {
				return err
			}
			defer a.Close()

			unlock, err := acquireLock(cfg.App.DataPath)
			if err != nil {
				return err
			}
			defer unlock()

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			pipeline := metrics.NewPipeline()
			if err := pipeline.Register(registry); err != nil {
				return err
			}

			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			service := core.NewService(a.manager(core.WithMetrics(pipeline)), a.repo, cfg.Schedule.Cron, a.logger)
			if err := service.Start(sigCtx); err != nil {
				return err
			}
			a.logger.Info("🎬 anidl started, data path", cfg.App.DataPath)

			var server *handlers.Server
			if cfg.Server.Enabled {
				server = handlers.NewServer(cfg.Server.Port, handlers.NewAPIHandler(service, a.recorder.Runs(), a.logger), registry, a.logger)
				go func() {
					if err := server.Start(); err != nil {
						a.logger.Error("Server error:", err)
						stop()
					}
				}()
			}

			if runNow {
				if err := service.Trigger(); err != nil && !errors.Is(err, core.ErrRunInProgress) {
					a.logger.Error("Initial run failed to start:", err)
				}
			}

			<-sigCtx.Done()
			fmt.Fprintln(cmd.ErrOrStderr(), "Shutting down...")
			a.logger.Info("Shutting down...")

			if server != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				if err := server.Stop(shutdownCtx); err != nil {
					a.logger.Error("Server shutdown:", err)
				}
				cancel()
			}
			service.Stop()
			return nil
		},
	}

	cmd.Flags().BoolVar(&runNow, "run-now", false, "Start a run immediately instead of waiting for the schedule")
	return cmd
}
