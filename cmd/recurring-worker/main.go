package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"contas/internal/amqp"
	"contas/internal/billing"
	"contas/internal/cache"
	"contas/internal/config"
	"contas/internal/core"
	applog "contas/internal/log"
	"contas/internal/services"
	"contas/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentRecurring)
	applog.SetDefault(logger)

	logger.Info("Starting recurring-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Redis unreachable, continuing without shared cache", "addr", cfg.RedisAddr, "error", err)
			redisClient = nil
		}
		cancel()
	}
	shared := cache.NewRedis(redisClient, cfg.RedisTTL)

	var queue cache.ReconcileQueue
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, generated charges reconcile via sweep only", "error", err)
		} else {
			defer amqpClient.Close()
			queue = amqpClient
		}
	}

	coord := cache.NewCoordinator(shared, queue)

	bills := cache.NewLRUCache[[]core.Bill](cfg.CacheMaxSize, cfg.CacheTTL)
	parcels := cache.NewLRUCache[[]core.Installment](cfg.CacheMaxSize, cfg.CacheTTL)
	recent := cache.NewLRUCache[[]core.Transaction](cfg.CacheMaxSize, cfg.CacheTTL)

	planner := billing.NewPlanner(repo)
	billingSvc := services.NewBillingService(planner, repo, coord, shared, bills, parcels)
	txnSvc := services.NewTransactionService(repo, coord, shared, recent)
	processor := services.NewRecurringProcessor(repo, txnSvc, billingSvc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run := func(now time.Time) {
		if now.Hour() < cfg.RecurringRunHour {
			return
		}
		count, err := processor.ProcessDue(ctx, now)
		if err != nil {
			logger.Error("Recurring processing failed", "error", err)
			return
		}
		if count > 0 {
			logger.Info("Recurring processing complete", "generated", count)
		}
	}

	// Generation is deduplicated per template and month, so running
	// every hour past the configured hour is safe.
	run(time.Now())

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Recurring worker stopped gracefully")
			return
		case now := <-ticker.C:
			run(now)
		}
	}
}
