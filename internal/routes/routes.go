package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/meridianinvest/platform/internal/auth"
	"github.com/meridianinvest/platform/internal/handlers"
	"github.com/meridianinvest/platform/internal/middleware"
	"github.com/meridianinvest/platform/internal/ratelimit"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	paymentHandler *handlers.PaymentHandler,
	webhookHandler *handlers.WebhookHandler,
	securityHandler *handlers.SecurityHandler,
	dashboardHandler *handlers.DashboardHandler,
	tradingHandler *handlers.TradingHandler,
	tokenManager *auth.TokenManager,
	limiters *ratelimit.Registry,
) {
	authRateLimit := middleware.DefaultAuthRateLimit()
	apiRateLimit := middleware.DefaultAPIRateLimit()
	webhookRateLimit := middleware.DefaultWebhookRateLimit()

	// Public routes
	router.With(middleware.RateLimitByIP(authRateLimit)).Post("/auth/login", authHandler.Login)
	router.With(middleware.RateLimitByIP(authRateLimit)).Post("/auth/register", authHandler.Register)

	// Provider webhooks authenticate by signature, not session
	router.With(middleware.RateLimitByIP(webhookRateLimit)).Post("/webhooks/payments", webhookHandler.HandlePaymentWebhook)

	// Protected routes
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(apiRateLimit))
		r.Use(auth.Middleware(tokenManager))
		r.Use(middleware.SessionRateLimit(limiters))

		// Checkout flow
		r.Post("/payments/intents", paymentHandler.CreateIntent)
		r.Post("/payments/card-entered", paymentHandler.CardEntered)
		r.Post("/payments/verify", paymentHandler.Verify)
		r.Post("/payments/confirm", paymentHandler.Confirm)
		r.Post("/payments/customers", paymentHandler.CreateCustomer)
		r.Get("/payments/methods", paymentHandler.ListPaymentMethods)

		// Security event pipeline
		r.Post("/security/events", securityHandler.IngestEvent)
		r.Get("/security/events/recent", securityHandler.RecentEvents)

		// Dashboard reads
		r.Get("/investments", dashboardHandler.ListInvestments)
		r.Get("/transactions", dashboardHandler.ListTransactions)
		r.Get("/products", dashboardHandler.ListProducts)

		// Trading
		r.Post("/trading/orders", tradingHandler.SubmitOrder)
	})
}
