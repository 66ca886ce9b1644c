package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"budgetd/internal/amqp"
	"budgetd/internal/config"
	"budgetd/internal/inference"
	"budgetd/internal/log"
	"budgetd/internal/services"
	"budgetd/internal/storage"
	"budgetd/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.Config{Component: log.ComponentWorker})
	log.SetDefault(logger)

	logger.Info("Starting plan-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the plan worker")
		os.Exit(1)
	}

	// The worker shares the durable plan queue with the server, so it needs
	// the same SQLite database.
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository",
			log.FieldError, err.Error(), "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var bridge *inference.Client
	if cfg.InferenceURL != "" {
		bridge = inference.NewClient(cfg.InferenceURL, cfg.InferenceTimeout)
		logger.Info("Inference bridge configured", "url", cfg.InferenceURL)
	} else {
		logger.Warn("Inference bridge disabled, plans fall back to deterministic generation")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer amqpClient.Close()

	goals := services.NewGoalService(repo, bridge, nil, cfg.StrictGoalDates, logger)
	planWorker := worker.NewPlanWorker(repo, goals, logger)

	// The poll processor backs up the message path: lost or failed
	// deliveries are retried from the durable queue, and exhausted
	// requests get the deterministic fallback plan.
	processorCfg := services.DefaultPlanProcessorConfig()
	processorCfg.PollInterval = cfg.PlanPollInterval
	processorCfg.BatchSize = cfg.PlanBatchSize
	processorCfg.MaxRetries = cfg.PlanMaxRetries
	processor := services.NewPlanProcessor(repo, goals, processorCfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start plan processor", log.FieldError, err.Error())
		os.Exit(1)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := amqpClient.ConsumePlanRequests(ctx, planWorker.HandlePlanMessage)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return processor.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker error", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
