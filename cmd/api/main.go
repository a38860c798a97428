package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/avoronkov/hearthshare/internal/infra/postgres"
	infraRedis "github.com/avoronkov/hearthshare/internal/infra/redis"
	"github.com/avoronkov/hearthshare/internal/ledger"
	"github.com/avoronkov/hearthshare/internal/recurrence"
	"github.com/avoronkov/hearthshare/internal/transport/httpapi"
	"github.com/avoronkov/hearthshare/internal/transport/httpapi/handler"
	"github.com/avoronkov/hearthshare/pkg/config"
	"github.com/avoronkov/hearthshare/pkg/logger"
)

func main() {
	// Create context that listens for termination signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env if present; real environments set variables directly
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewDefault(cfg.Env)
	log.Info("Starting HearthShare API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	// Initialize database connection pool
	db, err := postgres.NewPool(ctx, postgres.Config{URL: cfg.DatabaseURL})
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("Database connection established")

	// Initialize Redis client for the balance cache. Redis is optional:
	// without it every balance read recomputes from the ledger.
	var balanceCache ledger.BalanceCache
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		balanceCache = infraRedis.NewBalanceCache(redisClient, log)
		log.Info("Redis connection established")
	} else {
		log.Warn("REDIS_URL not configured, balance cache disabled")
	}

	// Initialize ledger service
	ledgerRepo := postgres.NewLedgerRepository(db.Pool)
	ledgerSvc := ledger.NewService(ledgerRepo, balanceCache, log)
	log.Info("Ledger service initialized")

	// Start the recurrence sweep job
	scheduler := recurrence.NewScheduler(ledgerSvc, recurrence.SystemClock(), log)
	if err := scheduler.Start(ctx, cfg.SweepInterval); err != nil {
		log.Error("Failed to start recurrence scheduler", "error", err)
		os.Exit(1)
	}
	log.Info("Recurrence scheduler started", "interval", cfg.SweepInterval)

	// Initialize HTTP handlers
	transactionHandler := handler.NewTransactionHandler(ledgerSvc)
	debtHandler := handler.NewDebtHandler(ledgerSvc)

	dbPinger := handler.PingerFunc(func(ctx context.Context) error {
		return db.Pool.Ping(ctx)
	})
	var redisPinger handler.Pinger
	if redisClient != nil {
		redisPinger = handler.PingerFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	healthHandler := handler.NewHealthHandler(dbPinger, redisPinger)

	// Determine allowed origins for CORS
	allowedOrigins := []string{"http://localhost:5173", "http://localhost:3000"}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		allowedOrigins = strings.Split(origins, ",")
	}

	// Create HTTP router
	r := httpapi.NewRouter(httpapi.Config{
		Logger:             log,
		AllowedOrigins:     allowedOrigins,
		TransactionHandler: transactionHandler,
		DebtHandler:        debtHandler,
		HealthHandler:      healthHandler,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for termination signal
	<-ctx.Done()
	log.Info("Shutdown signal received")

	// Stop the sweep job before closing the database
	scheduler.Stop()
	log.Info("Recurrence scheduler stopped")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("Server stopped gracefully")
}
