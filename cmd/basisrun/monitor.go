package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/basisrun/internal/config"
	monitor "github.com/sawpanic/basisrun/internal/http"
	"github.com/sawpanic/basisrun/internal/metrics"
	"github.com/sawpanic/basisrun/internal/persistence/postgres"
)

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Serve stored runs, health and metrics over HTTP (read-only)",
		Long: `Starts a read-only HTTP server:
  GET /health          store health
  GET /runs?limit=N    recent runs
  GET /runs/{id}       full stored result
  GET /runs/{id}/days  daily records
  GET /metrics         Prometheus metrics`,
		RunE: runMonitor,
	}
	cmd.Flags().String("host", "", "Listen host (overrides server.host)")
	cmd.Flags().Int("port", 0, "Listen port (overrides server.port)")
	return cmd
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyServerFlags(cmd, cfg)

	ctx, cancel := signalContext()
	defer cancel()

	mgr, err := postgres.NewManager(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := mgr.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close run store")
		}
	}()
	if !mgr.IsEnabled() {
		log.Warn().Msg("Run store disabled, /runs will return 503")
	}

	server := monitor.NewServer(cfg.Server, mgr.Runs(), mgr.Health(), metrics.NewRegistry())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	log.Info().
		Str("version", versionString()).
		Str("addr", cfg.Server.Address()).
		Bool("store", mgr.IsEnabled()).
		Msg("Monitor started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
		return err
	}
	log.Info().Msg("Monitor stopped")
	return nil
}

func applyServerFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("host"); v != "" {
		cfg.Server.Host = v
	}
	if v, _ := cmd.Flags().GetInt("port"); v > 0 {
		cfg.Server.Port = v
	}
}
