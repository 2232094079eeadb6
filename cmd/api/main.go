package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"units-ledger/config"
	httpHandler "units-ledger/internal/adapter/http/handler"
	pgStorage "units-ledger/internal/adapter/storage/postgres"
	redisStorage "units-ledger/internal/adapter/storage/redis"
	"units-ledger/internal/core/ports"
	"units-ledger/internal/service"
	"units-ledger/internal/service/accountlock"
	"units-ledger/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Units Ledger")

	// Parse decimal-valued config up front so a typo fails the boot,
	// not the first transfer.
	defaultCreditLimit := mustDecimal(log, "ledger.default_credit_limit", cfg.Ledger.DefaultCreditLimit)
	trustParams := service.TrustParams{
		RatingWindow: cfg.Trust.RatingWindow,
		PriorWeight:  cfg.Trust.PriorWeight,
		BaseLimit:    mustDecimal(log, "trust.base_limit", cfg.Trust.BaseLimit),
		ScaleFactor:  mustDecimal(log, "trust.scale_factor", cfg.Trust.ScaleFactor),
		MinLimit:     mustDecimal(log, "trust.min_limit", cfg.Trust.MinLimit),
		MaxLimit:     mustDecimal(log, "trust.max_limit", cfg.Trust.MaxLimit),
		Workers:      cfg.Trust.RecomputeWorkers,
		QueueSize:    cfg.Trust.QueueSize,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL pool and schema
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	if err := pgStorage.Migrate(cfg.Database.DSN()); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}
	log.Info().Msg("PostgreSQL connected, schema up to date")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	walletRepo := pgStorage.NewWalletRepo(pool)
	ledgerRepo := pgStorage.NewLedgerRepo(pool)
	ratingRepo := pgStorage.NewRatingRepo(pool)
	transactor := pgStorage.NewTransactor(pool)
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)

	// Initialize business services
	walletStore := service.NewWalletStore(walletRepo, defaultCreditLimit, log)
	transferSvc := service.NewTransferService(
		walletStore,
		ledgerRepo,
		idempotencyCache,
		transactor,
		accountlock.NewManager(),
		cfg.Ledger.LockTimeout,
		log,
	)
	trustEngine := service.NewTrustEngine(ratingRepo, walletStore, trustParams, log)
	trustStopped := trustEngine.Start(ctx)
	analyticsSvc := service.NewAnalytics(walletRepo, ledgerRepo)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		WalletSvc:      walletStore,
		TransferSvc:    transferSvc,
		TrustSvc:       trustEngine,
		AnalyticsSvc:   analyticsSvc,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight trust recomputations land before the workers stop.
	if err := trustEngine.Flush(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Trust recompute queue not drained")
	}
	cancel()
	select {
	case <-trustStopped:
	case <-shutdownCtx.Done():
		log.Warn().Msg("Trust workers did not stop in time")
	}

	log.Info().Msg("Server exited")
}

func mustDecimal(log zerolog.Logger, key, raw string) decimal.Decimal {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		log.Fatal().Err(err).Str("key", key).Str("value", raw).Msg("invalid decimal config value")
	}
	return d
}
