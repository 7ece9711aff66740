package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/calderasec/lurelab/internal/access"
	"github.com/calderasec/lurelab/internal/database"
	"github.com/calderasec/lurelab/internal/dispatch"
	"github.com/calderasec/lurelab/internal/mailer"
	"github.com/calderasec/lurelab/internal/metrics"
	"github.com/calderasec/lurelab/internal/report"
	"github.com/calderasec/lurelab/internal/tasks"
	"github.com/calderasec/lurelab/pkg/config"
	"github.com/calderasec/lurelab/pkg/crypto"
	"github.com/calderasec/lurelab/pkg/queue"
	"github.com/calderasec/lurelab/pkg/util"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	logger.Info("starting LureLab worker")

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	// Encryptor for per-org SMTP credentials
	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		logger.Error("failed to create encryptor", "error", err)
		os.Exit(1)
	}

	// Dispatch engine for scheduled sends
	mailerFactory := mailer.NewFactory(&cfg.SMTP, encryptor)
	engine := dispatch.NewEngine(db, mailerFactory, cfg.Tracking.BaseURL, logger)

	// Report service for background generation
	fileStore, err := report.NewFileStore(context.Background(), &cfg.Reports)
	if err != nil {
		logger.Error("failed to create report file store", "error", err)
		os.Exit(1)
	}
	checker := access.NewChecker(db)
	aggregator := metrics.NewAggregator(db)
	reportService := report.NewService(db, checker, aggregator, fileStore, logger)

	// Create Asynq server
	srv := queue.NewServer(&cfg.Redis, 10)

	// Create task handler
	handler := tasks.NewHandler(db, logger, engine, reportService)

	// Register handlers
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	// Handle shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker...")
		srv.Shutdown()
		cancel()
	}()

	logger.Info("worker started, waiting for tasks...")

	// Start the server
	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
	}

	// Wait for context cancellation
	<-ctx.Done()

	// Close database connection
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}
