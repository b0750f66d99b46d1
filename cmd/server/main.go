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

	"commerce-sync/config"
	"commerce-sync/internal/api"
	"commerce-sync/internal/broker"
	"commerce-sync/internal/redisclient"
	"commerce-sync/internal/scheduler"
	"commerce-sync/internal/service"
	"commerce-sync/internal/shopify"
	"commerce-sync/internal/store"
	"commerce-sync/internal/util"
	"commerce-sync/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting commerce sync service")

	tp, err := util.InitTracer("commerce-sync", cfg.Observ.JaegerEndpoint)
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

	if cfg.Database.RunMigrations {
		if err := store.RunMigrations(cfg.Database.URL, logger); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	checks := map[string]api.ReadinessCheck{"database": db.Ping}

	var locker scheduler.Locker
	if cfg.Redis.Enabled {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("Redis unavailable, tenant sync locks disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			locker = redisClient
			checks["redis"] = redisClient.Ping
			logger.Info("Redis connected")
		}
	}

	var publisher service.EventPublisher
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicEvents))
	}

	fetchers := service.ShopifyFetchers(shopify.NewFactory(cfg.Shopify.ClientConfig()))
	syncService := service.NewSyncService(db, fetchers, publisher)
	syncScheduler := scheduler.New(syncService, locker, cfg.Sync.SchedulerConfig())

	if cfg.Sync.SchedulerEnabled {
		if err := syncScheduler.Start(); err != nil {
			logger.Fatal("Failed to start sync scheduler", zap.Error(err))
		}
	} else {
		logger.Info("Sync scheduler disabled")
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var requestWorker *worker.SyncRequestWorker
	if cfg.Kafka.Enabled {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicRequests, cfg.Kafka.ConsumerGroup)
		requestWorker = worker.NewSyncRequestWorker(consumer, syncScheduler)
		go func() {
			if err := requestWorker.Start(workerCtx); err != nil && err != context.Canceled {
				logger.Error("Sync request worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(syncService, syncScheduler, checks)
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

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	syncScheduler.Stop(shutdownCtx)

	workerCancel()
	if requestWorker != nil {
		_ = requestWorker.Stop()
	}

	logger.Info("Server exited")
}
