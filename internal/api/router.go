package api

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/calderasec/lurelab/internal/access"
	"github.com/calderasec/lurelab/internal/api/handlers"
	"github.com/calderasec/lurelab/internal/api/middleware"
	"github.com/calderasec/lurelab/internal/auth"
	"github.com/calderasec/lurelab/internal/campaign"
	"github.com/calderasec/lurelab/internal/dispatch"
	"github.com/calderasec/lurelab/internal/entitlement"
	"github.com/calderasec/lurelab/internal/metrics"
	"github.com/calderasec/lurelab/internal/report"
	"github.com/calderasec/lurelab/internal/tracking"
	"github.com/calderasec/lurelab/pkg/crypto"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB              *gorm.DB
	Redis           *redis.Client
	Logger          *slog.Logger
	JWTService      *auth.JWTService
	AuthService     *auth.Service
	Encryptor       *crypto.Encryptor
	Engine          *dispatch.Engine
	ReportService   *report.Service
	Templates       *template.Template
	AsynqClient     *asynq.Client
	AllowedOrigins  []string // CORS allowed origins
	RateLimitReqs   int      // Rate limit requests per window
	RateLimitSecs   int      // Rate limit window in seconds
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	// Rate limiting - applied globally to prevent abuse
	if cfg.RateLimitReqs > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimitReqs, cfg.RateLimitSecs))
	}

	// CORS - restrict to configured origins, or allow all in development
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		// Default to localhost for development - configure in production
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize services
	checker := access.NewChecker(cfg.DB)
	gate := entitlement.NewGate(cfg.DB)
	campaignService := campaign.NewService(cfg.DB, checker, gate, cfg.Logger)
	trackingService := tracking.NewService(cfg.DB, cfg.Logger)
	aggregator := metrics.NewAggregator(cfg.DB)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.AuthService)
	campaignHandler := handlers.NewCampaignHandler(campaignService, cfg.Engine, aggregator, cfg.AsynqClient)
	trackingHandler := handlers.NewTrackingHandler(trackingService, cfg.Templates, cfg.Logger)
	employeeHandler := handlers.NewEmployeeHandler(cfg.DB, checker)
	orgHandler := handlers.NewOrganizationHandler(cfg.DB, checker, cfg.Encryptor)
	reportHandler := handlers.NewReportHandler(cfg.ReportService, cfg.AsynqClient)
	billingHandler := handlers.NewBillingHandler(cfg.DB, checker, gate)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Public tracking endpoints - token in the URL is the only credential
	r.Route("/t/{token}", func(r chi.Router) {
		r.Get("/", trackingHandler.Click)
		r.Get("/open.gif", trackingHandler.Open)
		r.Post("/remediation", trackingHandler.Remediation)
		r.Post("/report", trackingHandler.Report)
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public auth endpoints
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTService))

			r.Get("/me", authHandler.Me)

			// Campaigns endpoints
			r.Route("/campaigns", func(r chi.Router) {
				r.Get("/", campaignHandler.List)
				r.Post("/", campaignHandler.Create)
				r.Get("/{id}", campaignHandler.Get)
				r.Post("/{id}/send", campaignHandler.Send)
				r.Post("/{id}/schedule", campaignHandler.Schedule)
				r.Post("/{id}/complete", campaignHandler.Complete)
				r.Get("/{id}/targets", campaignHandler.Targets)
				r.Post("/{id}/targets", campaignHandler.AddTargets)
			})

			// Employees endpoints
			r.Route("/employees", func(r chi.Router) {
				r.Get("/", employeeHandler.List)
				r.Post("/", employeeHandler.Create)
				r.Post("/import", employeeHandler.Import)
				r.Put("/{id}", employeeHandler.Update)
				r.Delete("/{id}", employeeHandler.Delete)
			})

			// Organization endpoints
			r.Route("/organization", func(r chi.Router) {
				r.Get("/", orgHandler.Get)
				r.Put("/", orgHandler.Update)
				r.Get("/members", orgHandler.ListMembers)
				r.Put("/members/{id}/role", orgHandler.UpdateMemberRole)
				r.Post("/members/{id}/deactivate", orgHandler.DeactivateMember)
				r.Put("/smtp", orgHandler.UpdateSMTP)
			})

			// Reports endpoints
			r.Route("/reports", func(r chi.Router) {
				r.Get("/", reportHandler.List)
				r.Post("/", reportHandler.Generate)
				r.Get("/{id}/download", reportHandler.Download)
				r.Delete("/{id}", reportHandler.Delete)
			})

			// Billing endpoint
			r.Get("/billing", billingHandler.Subscription)
		})
	})

	return &Router{r}
}

var _ http.Handler = (*Router)(nil)
