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

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/broker"
	"storefront/internal/media"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront", zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = db.Migrate(migrateCtx)
	migrateCancel()
	if err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicStore)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicStore))

	eventPublisher := broker.NewEventPublisher(producer)

	uploader, err := media.NewUploader(cfg.Media.CloudinaryURL, cfg.Media.Folder)
	if err != nil {
		logger.Fatal("Failed to initialize media uploader", zap.Error(err))
	}
	if !uploader.Enabled() {
		logger.Warn("CLOUDINARY_URL not set, image uploads disabled")
	}

	orderService := service.NewOrderService(db, redisClient, eventPublisher, cfg.Business.IdempotencyTTL)
	messageService := service.NewMessageService(db, redisClient, eventPublisher, service.RateLimit{
		Limit:  cfg.Business.ContactRateLimit,
		Window: cfg.Business.ContactRateWindow,
	})

	handler := api.NewHandler(api.Services{
		Catalog:   service.NewCatalogService(db, redisClient, cfg.Business.CatalogCacheTTL),
		Taxonomy:  service.NewTaxonomyService(db, redisClient, cfg.Business.CatalogCacheTTL),
		Orders:    orderService,
		Messages:  messageService,
		Cart:      service.NewCartService(db, redisClient, orderService, cfg.Business.CartTTL),
		Dashboard: service.NewDashboardService(db, db, db, cfg.Business.LowStockThreshold),
		Auth: service.NewAuthService(
			cfg.Auth.AdminUsername,
			cfg.Auth.AdminPasswordHash,
			cfg.Auth.JWTSecret,
			cfg.Auth.TokenTTL,
		),
		Uploader: uploader,
		Ready: map[string]api.Pinger{
			"postgres": db,
			"redis":    redisClient,
		},
	})

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	catalogConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicStore, cfg.Kafka.ConsumerGroup)
	catalogWorker := worker.NewCatalogWorker(catalogConsumer, db, redisClient, cfg.Business.LowStockThreshold)
	go func() {
		if err := catalogWorker.Start(workerCtx); err != nil {
			logger.Error("Catalog worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
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
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := catalogWorker.Stop(); err != nil {
		logger.Warn("Catalog worker did not stop cleanly", zap.Error(err))
	}

	logger.Info("Server exited")
}
