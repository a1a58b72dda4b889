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

	goredis "github.com/redis/go-redis/v9"

	"github.com/ledgerkit/ledgerkit/internal/postgres"
	"github.com/ledgerkit/ledgerkit/internal/redis"
	"github.com/ledgerkit/ledgerkit/internal/service"
	"github.com/ledgerkit/ledgerkit/internal/transport/httpapi"
	"github.com/ledgerkit/ledgerkit/internal/transport/httpapi/handler"
	"github.com/ledgerkit/ledgerkit/internal/transport/httpapi/middleware"
	"github.com/ledgerkit/ledgerkit/pkg/config"
	"github.com/ledgerkit/ledgerkit/pkg/logger"

	"golang.org/x/time/rate"
)

func main() {
	// Create context that listens for termination signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewDefault(cfg.Env)
	log.Info("Starting ledgerkit API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	// Apply pending schema migrations before accepting traffic
	if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		log.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	log.Info("Schema migrations applied")

	// Initialize database connection pool
	db, err := postgres.NewPool(ctx, postgres.Config{URL: cfg.DatabaseURL})
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("Database connection established")

	// Initialize Redis client for the ledger cache. The server runs without
	// it when Redis is unreachable; reads fall back to the database.
	var redisClient *goredis.Client
	var ledgerCache service.LedgerCache
	rc := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err := rc.Ping(ctx).Err(); err != nil {
		log.Warn("Redis unreachable, ledger cache disabled", "error", err)
		rc.Close()
	} else {
		redisClient = rc
		defer redisClient.Close()
		ledgerCache = redis.NewLedgerCache(redisClient, log)
		log.Info("Redis connection established")
	}

	// Initialize repositories
	ledgerRepo := postgres.NewLedgerRepository(db.Pool)
	accountRepo := postgres.NewAccountRepository(db.Pool)
	txnRepo := postgres.NewTransactionRepository(db.Pool)
	settlementRepo := postgres.NewSettlementRepository(db.Pool)
	monitorRepo := postgres.NewMonitorRepository(db.Pool)
	statementRepo := postgres.NewStatementRepository(db.Pool)

	// Initialize services
	ledgerSvc := service.NewLedgerService(ledgerRepo, ledgerCache, log)
	accountSvc := service.NewAccountService(accountRepo, ledgerSvc, log)
	txnSvc := service.NewTransactionService(txnRepo, ledgerSvc, cfg.AllowPostedDelete, log)
	settlementSvc := service.NewSettlementService(settlementRepo, txnRepo, accountRepo, ledgerSvc, log)
	monitorSvc := service.NewMonitorService(monitorRepo, accountSvc, log)
	statementSvc := service.NewStatementService(statementRepo, accountSvc, ledgerSvc, log)

	if cfg.AllowPostedDelete {
		log.Warn("ALLOW_POSTED_DELETE is enabled; posted transactions can be hard-deleted")
	}

	// Determine allowed origins for CORS
	allowedOrigins := []string{"http://localhost:5173"}
	if cfg.IsProduction() {
		if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
			allowedOrigins = []string{origins}
		}
	}

	// Create HTTP router
	r := httpapi.NewRouter(httpapi.Config{
		Logger:            log,
		AllowedOrigins:    allowedOrigins,
		JWTService:        middleware.NewJWTService(cfg.JWTSecret),
		RateLimiter:       middleware.NewRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		LedgerHandler:     handler.NewLedgerHandler(ledgerSvc),
		AccountHandler:    handler.NewAccountHandler(accountSvc),
		TxnHandler:        handler.NewTransactionHandler(txnSvc),
		SettlementHandler: handler.NewSettlementHandler(settlementSvc),
		MonitorHandler:    handler.NewMonitorHandler(monitorSvc),
		StatementHandler:  handler.NewStatementHandler(statementSvc),
		HealthHandler:     handler.NewHealthHandler(db, redisClient),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start the server
	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		log.Error("HTTP server failed", "error", err)
		os.Exit(1)
	case <-ctx.Done():
	}

	// Graceful shutdown with a bounded drain
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("Server stopped")
}
