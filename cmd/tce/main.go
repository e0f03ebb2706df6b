// Package main is the entry point for the TCE workflow engine server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/usemanusai/tce/internal/config"
	"github.com/usemanusai/tce/internal/definition"
	"github.com/usemanusai/tce/internal/engine"
	"github.com/usemanusai/tce/internal/executor"
	"github.com/usemanusai/tce/internal/observability"
	"github.com/usemanusai/tce/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "tce", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Register executors.
	executors := executor.NewRegistry()
	if err := executor.RegisterBuiltins(executors); err != nil {
		logger.Error("executor registration failed", zap.Error(err))
		return 1
	}

	// Step 5: Load workflow templates, validate, build registry.
	loader := definition.NewLoader()
	templates, err := loader.LoadAll(cfg.Definitions.Directories)
	if err != nil {
		logger.Error("template loading failed", zap.Error(err))
		return 1
	}

	validator := definition.NewValidator()
	verrs := validator.Validate(templates, executors)
	if len(verrs) > 0 {
		for _, ve := range verrs {
			logger.Error("template validation error", zap.String("error", ve.Error()))
		}
		logger.Error("template validation failed", zap.Int("errors", len(verrs)))
		return 1
	}

	definitions := definition.NewRegistry(templates)

	// Step 6: Build the workflow store and engine.
	store := engine.NewMemoryStore()
	eng := engine.NewEngine(store, executors, cfg.Engine, logger, metrics)

	// Step 7: Build the HTTP router.
	router := transport.NewRouter(transport.Dependencies{
		Config:      cfg,
		Engine:      eng,
		Definitions: definitions,
		Executors:   executors,
		Store:       store,
		Logger:      logger,
		Metrics:     metrics,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}

	// Step 8: Start background tasks.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()
	go eng.RunDeadlineSweeper(bgCtx)

	// Step 9: Start the HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("templates", definitions.Len()),
		zap.Strings("executors", executors.Names()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout.Std()
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Cancel background tasks.
	bgCancel()

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}
