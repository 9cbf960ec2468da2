package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bivex/renewal-retry/internal/domain/service"
	"github.com/bivex/renewal-retry/internal/infrastructure/config"
	"github.com/bivex/renewal-retry/internal/infrastructure/external/gateway"
	"github.com/bivex/renewal-retry/internal/infrastructure/logging"
	"github.com/bivex/renewal-retry/internal/infrastructure/persistence/pool"
	infrarepo "github.com/bivex/renewal-retry/internal/infrastructure/persistence/repository"
	"github.com/bivex/renewal-retry/internal/infrastructure/scheduler"
	"github.com/bivex/renewal-retry/internal/migration"
	workertasks "github.com/bivex/renewal-retry/internal/worker/tasks"
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

	logger.Info("Starting renewal retry worker")

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

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to ping Redis", zap.Error(err))
	}

	siteLocation, err := time.LoadLocation(cfg.Retry.SiteTimezone)
	if err != nil {
		logger.Fatal("Invalid site timezone", zap.Error(err))
	}

	// Stores: legacy + custom table behind the migrating facade.
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

	asynqClient := asynq.NewClientFromRedisClient(redisClient)
	defer asynqClient.Close()

	events := service.NewRetryEvents()
	notifications := service.NewNotificationService(nil, logging.WithComponent(logger, "notifications"))
	events.Subscribe(notifications.HandleRetryEvent)

	manager := service.NewRetryManager(
		store,
		service.NewDefaultRuleProvider(),
		infrarepo.NewOrderRepository(dbPool),
		infrarepo.NewSubscriptionRepository(dbPool),
		gateway.NewClient(cfg.Gateway, logging.WithComponent(logger, "gateway")),
		scheduler.NewAsynqRetryScheduler(asynqClient),
		events,
		logging.WithComponent(logger, "retry_manager"),
	)

	server := asynq.NewServerFromRedisClient(redisClient, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			"critical": 6,
			"default":  3,
			"low":      1,
		},
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			return time.Duration(1<<uint(n)) * time.Second
		},
	})

	mux := asynq.NewServeMux()
	workertasks.RegisterHandlers(mux,
		workertasks.NewRetryJobHandler(manager, store, asynqClient, logger),
		workertasks.NewMigrationJobHandler(background, asynqClient, logger),
	)

	if err := server.Start(mux); err != nil {
		logger.Fatal("Failed to start worker", zap.Error(err))
	}

	cronScheduler := asynq.NewSchedulerFromRedisClient(redisClient, nil)
	if err := workertasks.RegisterScheduledTasks(cronScheduler); err != nil {
		logger.Fatal("Failed to register scheduled tasks", zap.Error(err))
	}
	if err := cronScheduler.Start(); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	logger.Info("Worker started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")

	cronScheduler.Shutdown()
	server.Shutdown()

	logger.Info("Worker exited")
}
