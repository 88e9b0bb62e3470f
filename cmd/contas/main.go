package main

import (
	"context"
	"net/http"
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
	apphttp "contas/internal/http"
	applog "contas/internal/log"
	"contas/internal/services"
	"contas/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

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

	// Shared cache tier is optional; without Redis every read falls
	// through to the local tier and the database.
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
	var publisher apphttp.ReconcilePublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, reconcile runs via worker sweep only", "error", err)
		} else {
			defer amqpClient.Close()
			queue = amqpClient
			publisher = amqpClient
		}
	}

	coord := cache.NewCoordinator(shared, queue)

	bills := cache.NewLRUCache[[]core.Bill](cfg.CacheMaxSize, cfg.CacheTTL)
	parcels := cache.NewLRUCache[[]core.Installment](cfg.CacheMaxSize, cfg.CacheTTL)
	recent := cache.NewLRUCache[[]core.Transaction](cfg.CacheMaxSize, cfg.CacheTTL)
	flows := cache.NewLRUCache[[]core.BudgetEntry](cfg.CacheMaxSize, cfg.CacheTTL)

	manager := cache.NewManager()
	manager.Register(bills)
	manager.Register(parcels)
	manager.Register(recent)
	manager.Register(flows)
	manager.StartCleanup(10 * time.Minute)
	defer manager.Stop()

	planner := billing.NewPlanner(repo)
	billingSvc := services.NewBillingService(planner, repo, coord, shared, bills, parcels)
	txnSvc := services.NewTransactionService(repo, coord, shared, recent)
	budgetSvc := services.NewBudgetService(repo, coord, shared, flows)
	recurring := services.NewRecurringProcessor(repo, txnSvc, billingSvc)

	srv := apphttp.NewServer(":"+cfg.Port, billingSvc, txnSvc, budgetSvc, recurring, publisher)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting contas server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
