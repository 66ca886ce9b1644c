package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"budgetd/internal/amqp"
	"budgetd/internal/budget"
	"budgetd/internal/budget/memory"
	"budgetd/internal/config"
	apphttp "budgetd/internal/http"
	"budgetd/internal/inference"
	"budgetd/internal/log"
	"budgetd/internal/services"
	"budgetd/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}

	var store budget.Store
	switch cfg.DataBackend {
	case "sqlite":
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("Failed to initialize SQLite repository",
				log.FieldError, err.Error(), "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		defer repo.Close()
		store = repo
		logger.Info("Initialized SQLite backend", "path", cfg.SQLiteDBPath)
	default:
		store = memory.NewStore()
		logger.Info("Initialized memory backend")
	}

	var bridge *inference.Client
	if cfg.InferenceURL != "" {
		bridge = inference.NewClient(cfg.InferenceURL, cfg.InferenceTimeout)
		logger.Info("Inference bridge configured", "url", cfg.InferenceURL)
	} else {
		logger.Info("Inference bridge disabled, deterministic fallbacks only")
	}

	// With a broker, plan generation moves to cmd/plan-worker. Without one,
	// an in-process queue processor drains plan requests here.
	var publisher services.PlanPublisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
			os.Exit(1)
		}
		defer amqpClient.Close()
		publisher = amqpClient
		logger.Info("AMQP publisher configured", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	}

	summaries := services.NewSummaryService(store, bridge, logger)
	goals := services.NewGoalService(store, bridge, publisher, cfg.StrictGoalDates, logger)

	srv := apphttp.NewServer(":"+cfg.Port, store, summaries, goals, logger)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	var processor *services.PlanProcessor
	if cfg.AMQPURL == "" {
		processorCfg := services.DefaultPlanProcessorConfig()
		processorCfg.PollInterval = cfg.PlanPollInterval
		processorCfg.BatchSize = cfg.PlanBatchSize
		processorCfg.MaxRetries = cfg.PlanMaxRetries

		processor = services.NewPlanProcessor(store, goals, processorCfg, logger)
		if err := processor.Start(ctx); err != nil {
			logger.Error("Failed to start plan processor", log.FieldError, err.Error())
			os.Exit(1)
		}
	}

	g.Go(func() error {
		logger.Info("Starting budgetd server",
			log.FieldOperation, log.OpStartup,
			"port", cfg.Port,
			"backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutdown signal received", log.FieldOperation, log.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if processor != nil {
			if err := processor.Stop(shutdownCtx); err != nil {
				logger.Warn("Plan processor shutdown error", log.FieldError, err.Error())
			}
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
