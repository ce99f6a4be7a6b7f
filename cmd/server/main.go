package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/roadwarden/internal/cache"
	"github.com/stwalsh4118/roadwarden/internal/config"
	"github.com/stwalsh4118/roadwarden/internal/database"
	"github.com/stwalsh4118/roadwarden/internal/events"
	"github.com/stwalsh4118/roadwarden/internal/gateway"
	"github.com/stwalsh4118/roadwarden/internal/handlers"
	"github.com/stwalsh4118/roadwarden/internal/idgen"
	"github.com/stwalsh4118/roadwarden/internal/logger"
	"github.com/stwalsh4118/roadwarden/internal/metrics"
	"github.com/stwalsh4118/roadwarden/internal/middleware"
	"github.com/stwalsh4118/roadwarden/internal/repository"
	"github.com/stwalsh4118/roadwarden/internal/resilience"
	"github.com/stwalsh4118/roadwarden/internal/services"
)

const (
	shutdownTimeout = 30 * time.Second
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	log := logger.New(cfg.Server.Env)
	log.Info("Starting Roadwarden API", map[string]interface{}{
		"version":     handlers.APIVersion,
		"environment": cfg.Server.Env,
		"port":        cfg.Server.Port,
	})

	// Create database connection pool
	ctx := context.Background()
	db, err := database.NewPostgresPool(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", err, map[string]interface{}{
			"host": cfg.Database.Host,
			"port": cfg.Database.Port,
			"name": cfg.Database.Name,
		})
	}
	defer db.Close()

	log.Info("Database connection established", map[string]interface{}{
		"host":     cfg.Database.Host,
		"port":     cfg.Database.Port,
		"database": cfg.Database.Name,
		"pool_min": cfg.Database.PoolMin,
		"pool_max": cfg.Database.PoolMax,
	})

	m := metrics.New()
	store := repository.NewStore(db)
	checks := map[string]handlers.Pinger{"database": db}

	// Plate index: Redis-cached when configured, otherwise read directly
	var index services.PlateIndex = cache.NewDirectIndex(store.Vehicles())
	rdb, err := cache.NewRedisClient(ctx, cfg.Cache.RedisURL)
	switch {
	case err != nil:
		log.Warn("Redis unavailable, plate index is uncached", map[string]interface{}{
			"error": err.Error(),
		})
	case rdb != nil:
		defer rdb.Close()
		index = cache.NewRedisIndex(rdb, store.Vehicles(), cfg.Cache.PlateTTL, log, m)
		checks["cache"] = handlers.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		log.Info("Plate index cached in Redis", map[string]interface{}{
			"ttl": cfg.Cache.PlateTTL.String(),
		})
	}

	// Domain events go to Kafka when brokers are configured
	var publisher events.Publisher = events.NewLogPublisher(log)
	if len(cfg.Events.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic, log)
		log.Info("Publishing domain events to Kafka", map[string]interface{}{
			"brokers": cfg.Events.Brokers,
			"topic":   cfg.Events.Topic,
		})
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error("Failed to close event publisher", err, nil)
		}
	}()

	registry := newGatewayRegistry(cfg.Payments, m)
	if len(registry.Names()) == 0 {
		log.Warn("No payment gateways configured", nil)
	}

	// Initialize service layer
	ids := idgen.New()
	vehicleService := services.NewVehicleService(store, index, log)
	violationService := services.NewViolationService(
		store, vehicleService, index, ids, publisher, m, cfg.Ledger.GraceDays, log,
	)
	paymentService := services.NewPaymentService(
		store, registry, ids, publisher, m,
		services.PaymentConfig{Currency: cfg.Payments.Currency, CallbackURL: cfg.Payments.CallbackURL},
		log,
	)

	// Setup Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware in order: RequestID -> Logger -> Recovery -> CORS -> Metrics
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS(cfg.CORS.Origins))
	router.Use(middleware.Metrics(m))

	// Register health check and metrics routes
	healthHandler := handlers.NewHealthHandler(checks, cfg.Server.Env, registry.Names())
	router.GET("/health", healthHandler.Health)
	router.GET("/health/ready", healthHandler.Ready)
	router.GET("/api/v1/info", healthHandler.Info)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	// Register API v1 routes
	v1 := router.Group("/api/v1")
	handlers.NewPlateHandler().Register(v1)
	handlers.NewVehicleHandler(vehicleService).Register(v1)
	handlers.NewViolationHandler(violationService).Register(v1)
	handlers.NewPaymentHandler(paymentService, registry).Register(v1)

	// Create HTTP server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server listening", map[string]interface{}{
			"port":     cfg.Server.Port,
			"addr":     srv.Addr,
			"gateways": registry.Names(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed to start", err, nil)
		}
	}()

	// Wait for interrupt signal (SIGINT or SIGTERM)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	log.Info("Shutting down server...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", err, map[string]interface{}{
			"timeout": shutdownTimeout.String(),
		})
	}

	log.Info("Server exited", nil)
}

// newGatewayRegistry registers every provider whose secret key is set.
func newGatewayRegistry(cfg config.PaymentsConfig, m *metrics.Metrics) *gateway.Registry {
	opts := gateway.Options{
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		Retry: resilience.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
		},
		OnError:       m.GatewayError,
		OnStateChange: m.BreakerStateChanged,
	}

	var gws []gateway.Gateway
	if cfg.PaystackSecretKey != "" {
		gws = append(gws, gateway.NewPaystack(cfg.PaystackSecretKey, cfg.PaystackBaseURL, opts))
	}
	if cfg.FlutterwaveSecretKey != "" {
		gws = append(gws, gateway.NewFlutterwave(
			cfg.FlutterwaveSecretKey, cfg.FlutterwaveWebhookSecret, cfg.FlutterwaveBaseURL, opts,
		))
	}
	return gateway.NewRegistry(gws...)
}
