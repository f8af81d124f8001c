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

	"keymarket/config"
	"keymarket/internal/api"
	"keymarket/internal/broker"
	"keymarket/internal/redisclient"
	"keymarket/internal/service"
	"keymarket/internal/store"
	"keymarket/internal/util"
	"keymarket/internal/worker"

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
	logger.Info("Starting keymarket")

	tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	logger.Info("Database ready", zap.String("driver", db.Driver()))

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicEvents))

	eventPublisher := broker.NewEventPublisher(producer)

	authService := service.NewAuthService(db, redisClient, eventPublisher, cfg.Auth)
	inventoryService := service.NewInventoryService(db, redisClient)
	services := api.Services{
		Auth:      authService,
		Purchase:  service.NewPurchaseService(db, redisClient, eventPublisher, cfg.Business.PurchaseLockTTL),
		Shops:     service.NewShopService(db, eventPublisher),
		Catalog:   service.NewCatalogService(db),
		Inventory: inventoryService,
		Sales:     service.NewSalesService(db),
		Admin:     service.NewAdminService(db, redisClient, inventoryService, eventPublisher),
	}

	created, err := authService.EnsureAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword)
	switch {
	case err != nil:
		logger.Warn("Admin bootstrap skipped", zap.Error(err))
	case created:
		logger.Info("Admin account created", zap.String("username", cfg.Auth.AdminUsername))
	}

	if err := inventoryService.SyncStockToRedis(ctx); err != nil {
		logger.Warn("Failed to sync stock to Redis", zap.Error(err))
	}

	scheduler, err := worker.NewScheduler(cfg.Business.StockSyncSpec, inventoryService)
	if err != nil {
		log.Fatalf("Invalid STOCK_SYNC_SPEC %q: %v", cfg.Business.StockSyncSpec, err)
	}
	scheduler.Start()

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
	eventWorker := worker.NewEventWorker(consumer, db, redisClient)
	go func() {
		if err := eventWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Event worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	handler := api.NewHandler(services, map[string]api.Pinger{
		"database": db,
		"redis":    redisClient,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	scheduler.Stop()
	workerCancel()
	if err := eventWorker.Stop(); err != nil {
		logger.Warn("Error stopping event worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
