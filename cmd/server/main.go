package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkout-service/config"
	"checkout-service/internal/api"
	"checkout-service/internal/broker"
	"checkout-service/internal/payment"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/service"
	"checkout-service/internal/store"
	"checkout-service/internal/store/memstore"
	"checkout-service/internal/util"
	"checkout-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Name, cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting checkout service")

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is required")
	}

	tp, err := util.InitTracer(cfg.Server.Name, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	var st service.Store
	switch cfg.Database.Driver {
	case "memory":
		st = memstore.New()
		logger.Warn("Using in-memory store; data is lost on restart")
	case "postgres":
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = db.EnsureSchema(ctx)
		cancel()
		if err != nil {
			logger.Fatal("Failed to prepare schema", zap.Error(err))
		}
		st = db
		logger.Info("Database connected")
	default:
		logger.Fatal("Unknown STORE_DRIVER", zap.String("driver", cfg.Database.Driver))
	}

	// Redis only caches payment links, so the service runs without it.
	var linkCache service.LinkCache
	var cachePinger api.Pinger
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable, payment links will not be cached", zap.Error(err))
	} else {
		defer redisClient.Close()
		linkCache = redisClient
		cachePinger = redisClient
		logger.Info("Redis connected")
	}

	var publisher service.EventPublisher = broker.NopPublisher{}
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	} else {
		logger.Info("Kafka disabled, domain events are dropped")
	}

	if cfg.Payment.AccessToken == "" {
		logger.Warn("MP_ACCESS_TOKEN is empty; payment lookups will fail")
	}
	provider := payment.NewClient(cfg.Payment.APIBaseURL, cfg.Payment.AccessToken, cfg.Payment.Timeout)

	opts := service.Options{
		StoreTimeout: cfg.Business.StoreTimeout,
		OrderExpiry:  cfg.Business.OrderExpiry,
	}

	inventoryService := service.NewInventoryService(st, publisher, opts)
	cartService := service.NewCartService(st, st, inventoryService, opts)
	orderService := service.NewOrderService(st, publisher, opts)
	reconciler := service.NewPaymentReconciler(st, inventoryService, provider, publisher, cfg.Payment.WebhookSecret, opts)
	checkoutService := service.NewCheckoutService(st, st, provider, linkCache, publisher, service.CheckoutConfig{
		PublicURL: cfg.Payment.PublicURL,
		LinkTTL:   cfg.Business.PaymentLinkTTL,
	}, opts)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var eventWorker *worker.OrderEventWorker
	if cfg.Kafka.Enabled {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
		eventWorker = worker.NewOrderEventWorker(consumer, worker.NewLogNotifier())
		go func() {
			if err := eventWorker.Start(workerCtx); err != nil && err != context.Canceled {
				logger.Error("Order event worker error", zap.Error(err))
			}
		}()
	}

	sweeper := worker.NewExpirySweeper(orderService, cfg.Business.ExpirySweepInterval)
	go sweeper.Start(workerCtx)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(cartService, orderService, checkoutService, reconciler, st, cachePinger, cfg.Auth.JWTSecret)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if eventWorker != nil {
		if err := eventWorker.Stop(); err != nil {
			logger.Warn("Error stopping order event worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
