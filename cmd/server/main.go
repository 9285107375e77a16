package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DukeRupert/magicsocial/internal"
	"github.com/DukeRupert/magicsocial/internal/ai"
	"github.com/DukeRupert/magicsocial/internal/ai/anthropic"
	"github.com/DukeRupert/magicsocial/internal/ai/mock"
	"github.com/DukeRupert/magicsocial/internal/ai/openai"
	"github.com/DukeRupert/magicsocial/internal/auth"
	"github.com/DukeRupert/magicsocial/internal/billing"
	"github.com/DukeRupert/magicsocial/internal/handler"
	"github.com/DukeRupert/magicsocial/internal/metrics"
	"github.com/DukeRupert/magicsocial/internal/middleware"
	"github.com/DukeRupert/magicsocial/internal/repository"
	"github.com/DukeRupert/magicsocial/internal/service"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if err := internal.RunMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	repo := repository.New(db)
	catalog := cfg.PlanCatalog()

	// ==========================================================================
	// Providers
	// ==========================================================================

	// Left nil when Stripe is not configured; billing routes then answer 501.
	var (
		billingProvider billing.Provider
		webhookVerifier handler.WebhookVerifier
	)
	if cfg.BillingEnabled() {
		billingProvider = billing.NewStripeProvider(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
		webhookVerifier = billingProvider
		logger.Info("Billing enabled", "pro_prices", len(cfg.StripeProPriceIDs), "ultimate_prices", len(cfg.StripeUltimatePriceIDs))
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, billing disabled")
	}

	generator, err := newGenerator(cfg, logger)
	if err != nil {
		return fmt.Errorf("ai provider initialization failed: %w", err)
	}

	// ==========================================================================
	// Services
	// ==========================================================================

	entitlementService := service.NewEntitlementService(repo, repo, catalog, logger)
	quotaService := service.NewQuotaService(entitlementService, repo, logger)
	billingService := service.NewBillingService(billingProvider, repo, entitlementService, catalog, cfg.BaseURL, logger)
	reconciler := service.NewReconcilerService(service.ReconcilerDeps{
		Subscriptions: repo,
		Customers:     repo,
		Events:        repo,
		Stripe:        billingProvider,
		Catalog:       catalog,
		Logger:        logger,
	})

	// ==========================================================================
	// Middleware
	// ==========================================================================

	isSecure := cfg.Env != "development"
	authMw := middleware.NewAuthMiddleware(auth.NewVerifier(cfg.SupabaseJWTSecret), logger)
	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}
	rateLimitMw := middleware.NewRateLimitMiddleware(middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow), proxies, logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	loggingMw := middleware.NewRequestLoggingMiddleware(proxies, logger)
	metricsAuthMw := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)
	if cfg.MetricsUsername == "" && cfg.MetricsPassword == "" {
		logger.Warn("METRICS_USERNAME and METRICS_PASSWORD not set, /metrics is unprotected")
	}

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			logger.Warn("health check failed", "error", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("GET /metrics", metricsAuthMw.Handler(promhttp.Handler()))

	// WithUser runs globally, so protected routes only need the check.
	requireUser := authMw.RequireUser

	handler.NewGenerateHandler(quotaService, generator, handler.GenerateConfig{
		DefaultModel:  cfg.DefaultModel,
		AllowedModels: cfg.AllowedModels,
		Timeout:       cfg.GenerateTimeout,
	}, logger).RegisterRoutes(mux, requireUser)
	handler.NewUsageHandler(entitlementService, catalog, logger).RegisterRoutes(mux, requireUser)
	handler.NewBillingHandler(billingService, logger).RegisterRoutes(mux, requireUser)
	handler.NewWebhookHandler(webhookVerifier, reconciler, cfg.WebhookTimeout, logger).RegisterRoutes(mux)

	// Outermost first. Metrics sits next to the mux so it sees the matched pattern.
	root := middleware.Stack(
		securityMw.Handler,
		loggingMw.Handler,
		authMw.WithUser,
		rateLimitMw.Limit,
		metrics.Middleware,
	)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.GenerateTimeout + 15*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env, "ai_provider", cfg.AIProvider)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-sigChan:
	}
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func newGenerator(cfg *internal.Config, logger *slog.Logger) (ai.Generator, error) {
	providerConfig := ai.ProviderConfig{
		MaxRetries:     cfg.AIMaxRetries,
		RetryBaseDelay: cfg.AIRetryBaseDelay,
		RequestTimeout: cfg.AIRequestTimeout,
	}

	switch cfg.AIProvider {
	case "mock":
		logger.Warn("Using mock AI provider")
		return mock.New(logger), nil
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:         cfg.AnthropicAPIKey,
			Model:          cfg.DefaultModel,
			ProviderConfig: providerConfig,
		}, logger)
	default:
		return openai.New(openai.Config{
			APIKey:         cfg.OpenAIAPIKey,
			BaseURL:        cfg.OpenAIBaseURL,
			ProviderConfig: providerConfig,
		}, logger)
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
