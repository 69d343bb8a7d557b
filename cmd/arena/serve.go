package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newthinker/arena/internal/api"
	"github.com/newthinker/arena/internal/api/job"
	"github.com/newthinker/arena/internal/app"
	"github.com/newthinker/arena/internal/logger"
	"github.com/newthinker/arena/internal/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ARENA API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Initialize logger
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	log.Info("starting ARENA server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	var reg *metrics.Registry
	metricsPath := ""
	if cfg.Metrics.Enabled {
		reg = metrics.NewRegistry()
		metricsPath = cfg.Metrics.Path
	}

	arena, cleanup, err := app.Build(cmd.Context(), cfg, log, reg)
	if err != nil {
		return fmt.Errorf("building arena: %w", err)
	}
	defer cleanup()

	// Competitions listed in the config are created idle, ready to start.
	for _, spec := range cfg.Competitions {
		e, err := arena.CreateCompetition(spec)
		if err != nil {
			return fmt.Errorf("competition %q: %w", spec.Name, err)
		}
		log.Info("configured competition ready",
			zap.String("competition", e.ID()),
			zap.String("name", spec.Name),
		)
	}

	jobs := job.NewStore(cfg.Server.MaxJobs, time.Duration(cfg.Server.JobTTLHours)*time.Hour)

	server, err := api.NewServer(api.Config{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		APIKey:             cfg.Server.APIKey,
		MetricsPath:        metricsPath,
		DefaultGenerations: cfg.Evolution.Generations,
	}, api.Dependencies{
		Arena:   arena,
		Jobs:    jobs,
		Metrics: reg,
	}, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info("shutting down ARENA server")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	return arena.Close(ctx)
}
