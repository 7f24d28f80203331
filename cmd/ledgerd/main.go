package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taxtrail/compliance-ledger-go/internal/config"
	"github.com/taxtrail/compliance-ledger-go/internal/domain"
	"github.com/taxtrail/compliance-ledger-go/internal/handler"
	"github.com/taxtrail/compliance-ledger-go/internal/infra/audit"
	"github.com/taxtrail/compliance-ledger-go/internal/infra/cache"
	"github.com/taxtrail/compliance-ledger-go/internal/infra/memory"
	"github.com/taxtrail/compliance-ledger-go/internal/infra/observability"
	"github.com/taxtrail/compliance-ledger-go/internal/infra/postgres"
	"github.com/taxtrail/compliance-ledger-go/internal/infra/resilience"
	"github.com/taxtrail/compliance-ledger-go/internal/port"
	"github.com/taxtrail/compliance-ledger-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("backend", cfg.Backend),
		zap.Bool("audit_enabled", cfg.AuditEnabled),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Int("max_concurrency", cfg.MaxConcurrency),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "compliance-ledger")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	retryCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	// --- Store ---
	var store port.LedgerStore
	switch cfg.Backend {
	case "postgres":
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer db.Close()

		pg := postgres.NewStore(db)
		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := pg.Migrate(migrateCtx); err != nil {
			cancel()
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		cancel()
		store = pg
		logger.Info("using postgres ledger store")
	case "memory":
		store = memory.NewStore()
		logger.Warn("using in-memory ledger store, data will not survive a restart")
	default:
		logger.Fatal("unknown backend", zap.String("backend", cfg.Backend))
	}

	// --- Audit publisher ---
	var publisher port.AuditPublisher
	if cfg.AuditEnabled {
		cb := resilience.NewCircuitBreaker("audit-kafka")
		kafkaPub := audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, cb, logger)
		defer kafkaPub.Close()
		publisher = kafkaPub
		logger.Info("audit publisher enabled",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
		)
	} else {
		logger.Info("audit publisher disabled")
	}

	// --- Cache ---
	balanceCache := cache.New[domain.CategoryBalances](cfg.CacheTTL)

	// --- Services ---
	svcs := handler.Services{
		Journal:    service.NewJournalService(store, retryCfg, metrics, logger),
		Category:   service.NewCategoryService(store, retryCfg, metrics, logger),
		Balance:    service.NewBalanceService(store, store, balanceCache, metrics, logger),
		Verify:     service.NewVerifyService(store, store, cfg.MaxConcurrency, metrics, logger),
		Designated: service.NewDesignatedService(store, publisher, metrics, logger),
	}

	// --- Router ---
	readyz := func(r *http.Request) error {
		return store.Ping(r.Context())
	}
	router := handler.NewRouter(svcs, readyz, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
