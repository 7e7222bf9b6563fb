package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/deskflow/internal/api"
	"github.com/hyperengineering/deskflow/internal/config"
	"github.com/hyperengineering/deskflow/internal/export"
	"github.com/hyperengineering/deskflow/internal/routing"
	"github.com/hyperengineering/deskflow/internal/store"
	"github.com/hyperengineering/deskflow/internal/worker"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "deskflow",
	Short: "Deskflow - editorial content routing service",
	RunE:  run,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func run(cmd *cobra.Command, args []string) error {
	// Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)
	slog.Info("configuration loaded", "level", cfg.Log.Level)

	// Initialize store (migrations, WAL mode)
	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "path", cfg.Database.Path)

	// Routing engine
	engine := routing.NewOrchestrator(db, routing.EngineConfig{
		HorizonWeeks:   cfg.Engine.HorizonWeeks,
		ScorePrecision: cfg.Engine.ScorePrecision,
		ClaimRetries:   cfg.Engine.ClaimRetries,
	}, nil, nil)

	alertCfg := routing.AlertConfig{
		IntakeFreshness:    time.Duration(cfg.Alerts.IntakeFreshness),
		MinEvergreenBuffer: cfg.Alerts.MinEvergreenBuffer,
		DuplicateWindow:    time.Duration(cfg.Alerts.DuplicateWindow),
	}

	// HTTP router
	handler := api.NewHandler(db, engine, alertCfg, cfg.Auth.APIKey, Version)
	router := api.NewRouter(handler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// Background workers
	var wg sync.WaitGroup

	staleness := worker.NewStalenessReviewer(db,
		time.Duration(cfg.Worker.StalenessInterval),
		time.Duration(cfg.Engine.StaleMaxAge), nil)
	startWorker(ctx, &wg, "staleness-reviewer", staleness.Run)

	alertScanner := worker.NewAlertScanner(db, alertCfg,
		time.Duration(cfg.Worker.AlertScanInterval), nil)
	handler.UseAlertCache(alertScanner)
	startWorker(ctx, &wg, "alert-scanner", alertScanner.Run)

	exporter, err := export.NewExporter(cfg.Export)
	if err != nil {
		return err
	}
	if cfg.Export.Enabled {
		scheduleExporter := worker.NewScheduleExporter(exporter, db,
			time.Duration(cfg.Worker.ExportInterval), cfg.Engine.HorizonWeeks, nil)
		startWorker(ctx, &wg, "schedule-exporter", scheduleExporter.Run)
	}

	// Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called
		// gracefully. Anything else is a real failure.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	// Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// Stop HTTP server (drains in-flight requests)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Wait for workers to complete
	wg.Wait()

	if err := db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context
// cancellation. Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
