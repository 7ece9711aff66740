package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/calderasec/lurelab/internal/access"
	"github.com/calderasec/lurelab/internal/api"
	"github.com/calderasec/lurelab/internal/auth"
	"github.com/calderasec/lurelab/internal/database"
	"github.com/calderasec/lurelab/internal/dispatch"
	"github.com/calderasec/lurelab/internal/mailer"
	"github.com/calderasec/lurelab/internal/metrics"
	"github.com/calderasec/lurelab/internal/report"
	"github.com/calderasec/lurelab/internal/web"
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

	logger.Info("starting LureLab server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.AutoMigrate(db); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to Redis, scheduled sends disabled", "error", err)
		redisClient = nil
	}

	// Asynq client for scheduled campaign dispatch and background reports
	asynqClient := queue.NewClient(&cfg.Redis)
	if redisClient == nil {
		asynqClient = nil
	}

	// Initialize services
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	authService := auth.NewService(db, jwtService)

	// Encryptor for per-org SMTP credentials
	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		logger.Error("failed to create encryptor", "error", err)
		os.Exit(1)
	}
	if cfg.Encryption.Key == "" {
		logger.Warn("ENCRYPTION_KEY not set, using generated key - stored SMTP credentials will be lost on restart")
	}

	// Mail delivery and dispatch
	mailerFactory := mailer.NewFactory(&cfg.SMTP, encryptor)
	engine := dispatch.NewEngine(db, mailerFactory, cfg.Tracking.BaseURL, logger)

	// Compliance report storage
	fileStore, err := report.NewFileStore(context.Background(), &cfg.Reports)
	if err != nil {
		logger.Error("failed to create report file store", "error", err)
		os.Exit(1)
	}
	checker := access.NewChecker(db)
	aggregator := metrics.NewAggregator(db)
	reportService := report.NewService(db, checker, aggregator, fileStore, logger)

	// Load public tracking page templates
	templates, err := web.LoadTemplates()
	if err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	// Create router
	router := api.NewRouter(api.RouterConfig{
		DB:            db,
		Redis:         redisClient,
		Logger:        logger,
		JWTService:    jwtService,
		AuthService:   authService,
		Encryptor:     encryptor,
		Engine:        engine,
		ReportService: reportService,
		Templates:     templates,
		AsynqClient:   asynqClient,
		RateLimitReqs: cfg.RateLimit.Requests,
		RateLimitSecs: cfg.RateLimit.WindowSeconds,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Close Asynq client
	if asynqClient != nil {
		asynqClient.Close()
	}

	// Close Redis connection
	if redisClient != nil {
		redisClient.Close()
	}

	// Close database connection
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("server stopped")
}
