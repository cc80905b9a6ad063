package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stagetrack/stagetrack/internal/seed"
	"github.com/stagetrack/stagetrack/internal/server"
	"github.com/stagetrack/stagetrack/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serve the pipeline API:

  GET  /api/pipeline?collectorItemId=...&beginDate=<ms>&endDate=<ms>
  POST /api/pipeline/{collectorItemId}/environments/{environment}/commits
  GET  /api/stages
  GET  /healthz

When seed.watch is set the seed fixture is reapplied every time it changes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Server.Port = port
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.Telemetry.Enabled {
			shutdown, err := telemetry.InitTracer(cfg.Telemetry.ServiceName, logger, telemetry.WithVersion(version))
			if err != nil {
				return fmt.Errorf("init tracer: %w", err)
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(flushCtx); err != nil {
					logger.Error("tracer shutdown error", slog.String("error", err.Error()))
				}
			}()
		}

		svc, store, err := bootstrap(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		if cfg.Seed.Path != "" && cfg.Seed.Watch {
			watcher, err := seed.NewWatcher(cfg.Seed.Path, logger)
			if err != nil {
				return err
			}
			defer watcher.Close()

			err = watcher.Watch(ctx, func(f *seed.Fixture) {
				if _, err := seed.Apply(ctx, store, f); err != nil {
					logger.Error("failed to apply seed fixture", slog.String("error", err.Error()))
				}
			})
			if err != nil {
				return err
			}
		}

		srv := server.New(cfg.Server.Port, logger,
			server.WithRequestTimeout(cfg.Server.RequestTimeout),
			server.WithServiceName(cfg.Telemetry.ServiceName))
		server.NewHandlers(svc, logger).Register(srv.Router)

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		logger.Info("shutdown signal received, stopping server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}

		logger.Info("server shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides server.port)")
}
