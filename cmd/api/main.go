package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/meridianinvest/platform/internal/auth"
	"github.com/meridianinvest/platform/internal/background"
	"github.com/meridianinvest/platform/internal/config"
	"github.com/meridianinvest/platform/internal/database"
	"github.com/meridianinvest/platform/internal/handlers"
	"github.com/meridianinvest/platform/internal/middleware"
	"github.com/meridianinvest/platform/internal/payments"
	"github.com/meridianinvest/platform/internal/ratelimit"
	"github.com/meridianinvest/platform/internal/repositories"
	"github.com/meridianinvest/platform/internal/routes"
	"github.com/meridianinvest/platform/internal/services"
	pkghttp "github.com/meridianinvest/platform/pkg/http"
	pkglogger "github.com/meridianinvest/platform/pkg/logger"
	"github.com/meridianinvest/platform/pkg/security"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	productRepo := repositories.NewProductRepository(db)
	paymentRepo := repositories.NewPaymentRepository(db)
	checkoutRepo := repositories.NewCheckoutRepository(db)
	eventRepo := repositories.NewSecurityEventRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)
	verificationRepo := repositories.NewVerificationRepository(db)

	// Per-session rate limiting
	limiters := ratelimit.NewRegistry(ratelimit.DefaultRules())

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)
	auditLogger := pkglogger.NewAuditLogger(logger)

	emailService, err := services.NewAWSSESEmailService(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	// Payment provider, when configured. The API stays usable without it;
	// checkout endpoints answer with a configuration error.
	var provider payments.Provider
	if cfg.Payments.ProviderConfigured() {
		provider = payments.NewStripeProvider(cfg.Payments.SecretKey)
	} else {
		logger.Warn("payment provider not configured, checkout disabled")
	}
	webhookVerifier := payments.NewStripeWebhookVerifier(cfg.Payments.WebhookSecret)

	// Services
	securityService := services.NewSecurityService(
		eventRepo, auditRepo, emailService, auditLogger, cfg.Security, logger)
	authService := services.NewAuthService(userRepo, tokenManager, limiters, securityService, logger)
	paymentService := services.NewPaymentService(
		provider, checkoutRepo, verificationRepo, productRepo, userRepo,
		limiters, securityService, emailService, auditLogger, cfg.Payments, logger)
	webhookService := services.NewWebhookService(
		webhookVerifier, paymentRepo, checkoutRepo, productRepo,
		securityService, auditLogger, logger)

	tradingBreaker := security.NewTradingCircuitBreaker(5, 1*time.Minute)

	// Handlers
	ipConfig := &pkghttp.IPConfig{}
	authHandler := handlers.NewAuthHandler(authService, ipConfig)
	paymentHandler := handlers.NewPaymentHandler(paymentService, ipConfig)
	webhookHandler := handlers.NewWebhookHandler(webhookService, logger)
	securityHandler := handlers.NewSecurityHandler(securityService, ipConfig)
	dashboardHandler := handlers.NewDashboardHandler(paymentRepo, productRepo)
	tradingHandler := handlers.NewTradingHandler(limiters, tradingBreaker)

	// Background tasks
	cleanupManager := background.NewCleanupManager(
		eventRepo, auditRepo, verificationRepo, checkoutRepo, limiters,
		cfg.Security.EventRetentionDays, logger, cfg.Security.CleanupInterval)
	reconciler := background.NewReconciler(
		checkoutRepo, provider, webhookService,
		cfg.Payments.ReconcileAfter, cfg.Payments.ReconcileInterval, logger)

	// Router
	corsConfig := middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middleware.CORS(corsConfig))
	router.Use(middleware.SecureLogger(logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router,
		authHandler, paymentHandler, webhookHandler, securityHandler,
		dashboardHandler, tradingHandler, tokenManager, limiters)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	defer backgroundCancel()

	go cleanupManager.Start(backgroundCtx)
	go reconciler.Start(backgroundCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	backgroundCancel()
	cleanupManager.Stop()
	reconciler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
