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

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bivex/renewal-retry/internal/application/middleware"
	"github.com/bivex/renewal-retry/internal/infrastructure/config"
	"github.com/bivex/renewal-retry/internal/infrastructure/logging"
	"github.com/bivex/renewal-retry/internal/infrastructure/persistence/pool"
	infrarepo "github.com/bivex/renewal-retry/internal/infrastructure/persistence/repository"
	"github.com/bivex/renewal-retry/internal/interfaces/http/handlers"
	"github.com/bivex/renewal-retry/internal/migration"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(&cfg.Sentry)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logging.Sync(logger)

	logger.Info("Starting renewal retry ops API")

	ctx := context.Background()
	dbPool, err := pool.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to create database pool", zap.Error(err))
	}
	defer pool.Close(dbPool)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer redisClient.Close()

	siteLocation, err := time.LoadLocation(cfg.Retry.SiteTimezone)
	if err != nil {
		logger.Fatal("Invalid site timezone", zap.Error(err))
	}

	legacyStore := infrarepo.NewRetryLegacyRepository(dbPool, siteLocation)
	tableStore := infrarepo.NewRetryTableRepository(dbPool)
	flags := infrarepo.NewMigrationFlagRepository(dbPool)
	if err := migration.OpenWindow(ctx, legacyStore, tableStore, flags,
		logging.WithComponent(logger, "migration_window")); err != nil {
		logger.Fatal("Failed to prepare retry store migration", zap.Error(err))
	}
	migrator := migration.NewMigrator(legacyStore, tableStore, flags,
		logging.WithComponent(logger, "migrator"))
	store := migration.NewHybridStore(migrator, legacyStore, tableStore, flags,
		logging.WithComponent(logger, "hybrid_store"))
	background := migration.NewBackgroundMigrator(migrator, legacyStore, flags,
		cfg.Retry.MigrationBatchSize, logging.WithComponent(logger, "background_migrator"))

	if cfg.Sentry.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	rateLimiter := middleware.NewRateLimiter(redisClient, true, logger)

	healthHandler := handlers.NewHealthHandler(dbPool)
	retryHandler := handlers.NewRetryHandler(store, flags, background)

	router.GET("/health", healthHandler.Health)

	admin := router.Group("/api/v1/admin")
	admin.Use(
		rateLimiter.Middleware(middleware.ByIP, middleware.DefaultConfig),
		middleware.AdminMiddleware(cfg.JWT.Secret),
	)
	admin.GET("/retries", retryHandler.List)
	admin.GET("/retries/:id", retryHandler.Get)
	admin.GET("/migration", retryHandler.MigrationStatus)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	logger.Info("API started", zap.Int("port", cfg.Server.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down API...")
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Forced shutdown", zap.Error(err))
	}

	logger.Info("API exited")
}
