// Package main is the entry point for the FruitBox API server.
//
// It loads configuration, connects to Postgres and the AWS services, wires
// the domain handlers into the core chassis (middleware, routing, health
// checks), and serves HTTP until a shutdown signal arrives.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"fruitbox/internal/api/handlers"
	"fruitbox/internal/auth"
	"fruitbox/internal/checkout"
	"fruitbox/internal/config"
	"fruitbox/internal/core"
	"fruitbox/internal/db"
	"fruitbox/internal/external"
	"fruitbox/internal/obs"
	"fruitbox/internal/queue"
	"fruitbox/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("fruitbox API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS configuration: %w", err)
	}

	// cfg.AWS.EndpointURL points every AWS client at LocalStack when set.
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			o.UsePathStyle = true
		}
	})
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	// Repositories share the connection pool; checkout gets transaction-bound
	// copies through the TxRunner instead.
	users := db.NewUserRepository(pool)
	sessions := db.NewSessionRepository(pool)
	security := db.NewSecurityRepository(pool)
	products := db.NewProductRepository(pool)
	plans := db.NewPlanRepository(pool)
	orders := db.NewOrderRepository(pool)
	subscriptions := db.NewSubscriptionRepository(pool)

	sessionService := auth.NewSessionService(sessions, users, nil, cfg.Auth, nil, logger)
	authService := auth.NewService(auth.ServiceConfig{
		Users:    users,
		Sessions: sessionService,
		Throttle: auth.NewLoginThrottle(security, cfg.Auth, nil, logger),
		Hasher:   auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		Logger:   logger,
	})

	httpClient := &http.Client{Timeout: 30 * time.Second}
	stripeClient := external.NewStripeClient(httpClient, external.StripeClientConfig{
		SecretKey: cfg.Billing.StripeSecretKey.Unmask(),
		Logger:    logger,
	})

	metrics := obs.NewCloudWatchMetrics(cwClient, cfg.Security.MetricNamespace, logger)
	imageStore := storage.NewImageStore(s3Client, cfg.AWS, logger)
	events := queue.NewEventPublisher(sqsClient, cfg.AWS, logger)
	placer := checkout.NewPlacer(plans, products, checkout.NewPoolTxRunner(pool), stripeClient, events, logger)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = metrics
	srv.Sessions = sessionService
	srv.HealthProbes = append(srv.HealthProbes, db.NewProbe(pool))

	authHandler := handlers.NewAuthHandler(authService, users, srv.Validator, logger, cfg.Security.SecureCookies)
	catalogHandler := handlers.NewCatalogHandler(products, plans, cfg.Catalog, logger)
	checkoutHandler := handlers.NewCheckoutHandler(plans, products, placer, authService, metrics, srv.Validator, logger)
	subscriptionHandler := handlers.NewSubscriptionHandler(subscriptions, stripeClient, logger)
	adminProductHandler := handlers.NewAdminProductHandler(products, imageStore, cfg.Catalog, srv.Validator, logger)
	adminPlanHandler := handlers.NewAdminPlanHandler(plans, products, subscriptions, srv.Validator, logger)
	adminOrderHandler := handlers.NewAdminOrderHandler(orders, products, srv.Validator, logger)
	adminUserHandler := handlers.NewAdminUserHandler(users, sessionService, srv.Validator, logger)
	adminSubscriptionHandler := handlers.NewAdminSubscriptionHandler(subscriptions, logger)
	webhookHandler := handlers.NewStripeWebhookHandler(subscriptions, &external.StripeVerifier{}, cfg.Billing, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		authHandler.RegisterRoutes,
		catalogHandler.RegisterRoutes,
		checkoutHandler.RegisterRoutes,
		subscriptionHandler.RegisterRoutes,
		adminProductHandler.RegisterRoutes,
		adminPlanHandler.RegisterRoutes,
		adminOrderHandler.RegisterRoutes,
		adminUserHandler.RegisterRoutes,
		adminSubscriptionHandler.RegisterRoutes,
		webhookHandler.RegisterRoutes,
	)

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})
	return slog.New(handler)
}
