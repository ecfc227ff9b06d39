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

	"github.com/redis/go-redis/v9"

	"ai_gateway/internal/billing"
	"ai_gateway/internal/business"
	"ai_gateway/internal/config"
	"ai_gateway/internal/conversation"
	"ai_gateway/internal/gateway"
	"ai_gateway/internal/httpapi"
	"ai_gateway/internal/logging"
	"ai_gateway/internal/postprocess"
	"ai_gateway/internal/providers"
	"ai_gateway/internal/queue"
	"ai_gateway/internal/storage"
	"ai_gateway/internal/utils"
)

// services holds what main must shut down
type services struct {
	handler     http.Handler
	db          *storage.DB
	redis       *redis.Client
	usageWorker *storage.UsageQueueWorker
	journal     *logging.ExchangeLog
	cancel      context.CancelFunc
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	level, err := utils.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid LOG_LEVEL: %v", err)
	}
	utils.SetDefaultLogLevel(level)
	logger := utils.NewLogger("main")

	svc, err := build(cfg)
	if err != nil {
		log.Fatalf("Failed to start gateway: %v", err)
	}

	addr := ":" + cfg.HTTPPort
	server := &http.Server{
		Addr:         addr,
		Handler:      svc.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Provider.RequestTimeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("AI gateway listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Flush queued usage records before the database goes away
	if svc.usageWorker != nil {
		_ = svc.usageWorker.Stop()
	}
	if svc.journal != nil {
		svc.journal.Shutdown()
	}
	svc.cancel()
	if svc.redis != nil {
		_ = svc.redis.Close()
	}
	_ = svc.db.Close()

	logger.Info("Server exited")
}

// build wires storage, providers, billing and the conversation pipeline
func build(cfg *config.Config) (*services, error) {
	ctx, cancel := context.WithCancel(context.Background())
	svc := &services{cancel: cancel}
	ok := false
	defer func() {
		if !ok {
			cancel()
		}
	}()

	db, err := storage.NewDB(storage.DBConfig{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	svc.db = db
	if err := db.Migrate(ctx); err != nil {
		return nil, err
	}

	// Stored provider keys need the encryption secret; without it only
	// environment credentials are used.
	var enc *storage.Encryption
	if cfg.EncryptionKey != "" {
		enc, err = storage.NewEncryptionFromSecret(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize encryption: %w", err)
		}
	}

	providerRepo := db.NewProviderRepository(enc)
	registry := providers.NewRegistry(providerRepo, db.NewModelRepository())
	if err := registry.Reload(ctx); err != nil {
		return nil, fmt.Errorf("failed to load providers: %w", err)
	}
	registry.Start(ctx, cfg.Provider.ReloadInterval)
	credentials := providers.NewCredentialResolver(providerRepo, nil)
	adapter := providers.NewAdapter(registry, credentials, cfg.Provider.RequestTimeout)

	if cfg.Redis.Enabled {
		svc.redis, err = storage.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
	}

	usageRepo := db.NewUsageRepository()
	ledger, worker, err := buildLedger(ctx, cfg, svc.redis, usageRepo)
	if err != nil {
		return nil, err
	}
	svc.usageWorker = worker

	loc, err := time.LoadLocation(cfg.Cost.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid cost timezone: %w", err)
	}
	govOpts := billing.Options{
		FailOpenOnLedgerError: cfg.Cost.FailOpenOnLedgerError,
		Location:              loc,
	}
	if cfg.Cost.TotalsBackend == "redis" {
		tracker := billing.NewRedisSpendTracker(svc.redis, loc)
		govOpts.Totals = tracker
		govOpts.Counter = tracker
	}
	governor := billing.NewGovernor(ledger, db.NewAlertRepository(), govOpts)

	var source business.Store
	switch cfg.Business.Source {
	case "database":
		source = db.NewBusinessContextRepository(cfg.Cost.DefaultAlertThreshold)
	default:
		source = business.NewFileStore(cfg.Business.Dir, cfg.Cost.DefaultAlertThreshold)
	}
	contexts := storage.NewCachedContextStore(source, cfg.Cache.ContextCacheSize, cfg.Cache.ContextCacheTTL)

	history := db.NewHistoryRepository()
	gwOpts := gateway.Options{}
	if cfg.Business.RecordHistoryExchanges {
		gwOpts.History = history
	}
	if cfg.Journal.File != "" {
		svc.journal, err = logging.NewExchangeLog(logging.Config{
			FileTemplate:  cfg.Journal.File,
			MaxSize:       int64(cfg.Journal.MaxSizeMB) << 20,
			MaxFiles:      cfg.Journal.MaxFiles,
			BufferSize:    cfg.Journal.BufferSize,
			FlushInterval: cfg.Journal.FlushInterval,
		})
		if err != nil {
			return nil, err
		}
		gwOpts.Journal = svc.journal
	}

	gw := gateway.New(
		contexts,
		conversation.NewAssembler(history, nil),
		governor,
		adapter,
		registry,
		postprocess.NewProcessor(postprocess.Weights{
			NameInResponse: cfg.Scoring.NameInResponse,
			WordOverlap:    cfg.Scoring.WordOverlap,
			IntentBonus:    cfg.Scoring.IntentBonus,
			Threshold:      cfg.Scoring.Threshold,
		}),
		gwOpts,
	)

	deps := &httpapi.Dependencies{
		Gateway:   gw,
		Governor:  governor,
		Providers: registry,
		Contexts:  contexts,
		Database:  db,
		JWTSecret: cfg.JWTSecret,
	}
	if worker != nil {
		deps.UsageWorker = worker
	}
	svc.handler = httpapi.NewRouter(deps)

	ok = true
	return svc, nil
}

// buildLedger returns the repository itself, or an asynchronous ledger backed
// by a queue worker when USAGE_ASYNC is set.
func buildLedger(ctx context.Context, cfg *config.Config, client *redis.Client, repo *storage.UsageRepository) (billing.Ledger, *storage.UsageQueueWorker, error) {
	if !cfg.Usage.Async {
		return repo, nil, nil
	}

	qcfg := queue.DefaultConfig("usage")
	qcfg.BatchSize = cfg.Usage.BatchSize
	qcfg.BatchTimeout = cfg.Usage.BatchTimeout
	qcfg.MaxRetries = cfg.Usage.MaxRetries
	qcfg.RetryBackoff = cfg.Usage.RetryBackoff

	var (
		q   queue.Queue
		dlq queue.DeadLetterQueue
		err error
	)
	if cfg.Usage.QueueBackend == "redis" {
		q, err = queue.NewRedisQueue(client, qcfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create usage queue: %w", err)
		}
		dlq, err = queue.NewRedisDeadLetterQueue(client, qcfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create usage DLQ: %w", err)
		}
	} else {
		q = queue.NewMemoryQueue(qcfg)
		dlq = queue.NewMemoryDeadLetterQueue()
	}

	worker := storage.NewUsageQueueWorker(q, dlq, repo, qcfg)
	ledger := storage.NewAsyncLedger(worker, repo)
	worker.Start(ctx)
	return ledger, worker, nil
}
