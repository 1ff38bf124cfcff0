package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

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

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(&logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cfg.Logging.Output,
		EnableSource: cfg.Logging.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, cfg, appLogger.Logger, bootstrap.Options{Queue: true})
	if err != nil {
		return err
	}
	defer app.Close()

	// resumed jobs go back through the queue so any worker instance may pick them up
	app.Orchestrator.SetDispatcher(worker.NewQueueDispatcher(app.Rabbit))

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:        appLogger.Component("worker"),
		Runner:        app.Orchestrator,
		Consumer:      app.Rabbit,
		Concurrency:   cfg.Worker.Concurrency,
		QueueSize:     cfg.Worker.QueueSize,
		PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
		JobTimeout:    cfg.Worker.JobTimeout,
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- workerInstance.Start(ctx)
	}()

	if cfg.Worker.ResumeOnStart {
		if _, err := app.Orchestrator.Resume(ctx); err != nil {
			appLogger.Error("Failed to resume unfinished jobs", slog.Any("error", err))
		}
	}

	// jobs whose worker died mid-step are taken over once their lease expires
	go app.Orchestrator.WatchLeases(ctx, cfg.Worker.RecoveryInterval)

	appLogger.Info("Worker service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case runErr = <-errChan:
		appLogger.Error("Worker error", slog.Any("error", runErr))
	}

	// interrupted jobs are nacked with requeue and picked up by another instance
	cancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Worker service shutdown complete")
	return runErr
}
