package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/api/handler"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/api/router"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/bootstrap"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/config"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/worker"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/shared/logger"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	mode := cfg.Pipeline.ExecutionMode()
	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("mode", mode),
		slog.String("database", cfg.Database.DriverName()),
		slog.String("interactions", cfg.Interactions.Backend),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, cfg, appLogger.Logger, bootstrap.Options{
		Queue:        mode == config.ModeQueue,
		Interactions: true,
	})
	if err != nil {
		return err
	}
	defer app.Close()

	// inline mode runs the worker pool in this process
	var pool *worker.Worker
	poolErr := make(chan error, 1)
	if mode == config.ModeInline {
		pool = worker.NewWorker(&worker.Config{
			Logger:      appLogger.Component("worker"),
			Runner:      app.Orchestrator,
			Concurrency: cfg.Worker.Concurrency,
			QueueSize:   cfg.Worker.QueueSize,
			JobTimeout:  cfg.Worker.JobTimeout,
		})
		app.Orchestrator.SetDispatcher(pool)
		go func() { poolErr <- pool.Start(ctx) }()
	} else {
		app.Orchestrator.SetDispatcher(worker.NewQueueDispatcher(app.Rabbit))
	}

	if cfg.Worker.ResumeOnStart {
		if _, err := app.Orchestrator.Resume(ctx); err != nil {
			appLogger.Error("Failed to resume unfinished jobs", slog.Any("error", err))
		}
	}

	// jobs whose worker died mid-step are taken over once their lease expires
	go app.Orchestrator.WatchLeases(ctx, cfg.Worker.RecoveryInterval)

	r := initRouter(cfg, appLogger.Logger, app)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	appLogger.Info("API service is running", slog.String("address", addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down", slog.String("signal", sig.String()))
	case runErr = <-serverErr:
		appLogger.Error("Server failed", slog.Any("error", runErr))
	case runErr = <-poolErr:
		appLogger.Error("Worker pool stopped", slog.Any("error", runErr))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.Any("error", err))
	}

	// cancelling interrupts running steps; interrupted jobs stay running and resume on the next start
	cancel()
	if pool != nil {
		stopWithTimeout(appLogger.Logger, pool, cfg.Worker.ShutdownTimeout)
	}

	appLogger.Info("API service shutdown complete")
	return runErr
}

// stopWithTimeout waits for in-flight jobs up to timeout
func stopWithTimeout(log *slog.Logger, w *worker.Worker, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("Worker stopped gracefully")
	case <-time.After(timeout):
		log.Warn("Worker shutdown timeout exceeded, forcing exit")
	}
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, log *slog.Logger, app *bootstrap.App) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	deps := &handler.Dependencies{
		Logger:       log,
		ServiceName:  cfg.App.Name,
		Jobs:         app.Orchestrator,
		Interactions: app.Interactions,
		Catalog:      app.Catalog,
		HealthChecks: app.HealthChecks(),
	}

	return router.SetupRouter(deps, router.Options{AllowedOrigins: cfg.Server.AllowedOrigins})
}
