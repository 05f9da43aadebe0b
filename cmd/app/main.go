// File: cmd/app/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gumbees/homebase-intake/internal/config"
	"github.com/Gumbees/homebase-intake/internal/domain/model"
	"github.com/Gumbees/homebase-intake/internal/domain/ports/adapter"
	"github.com/Gumbees/homebase-intake/internal/extract"
	aiAdapters "github.com/Gumbees/homebase-intake/internal/infra/adapters/ai"
	"github.com/Gumbees/homebase-intake/internal/infra/api"
	pg "github.com/Gumbees/homebase-intake/internal/infra/db/postgres"
	"github.com/Gumbees/homebase-intake/internal/infra/logging"
	"github.com/Gumbees/homebase-intake/internal/infra/metrics"
	"github.com/Gumbees/homebase-intake/internal/infra/notify"
	red "github.com/Gumbees/homebase-intake/internal/infra/redis"
	"github.com/Gumbees/homebase-intake/internal/infra/sched"
	"github.com/Gumbees/homebase-intake/internal/infra/security"
	"github.com/Gumbees/homebase-intake/internal/infra/storage"
	"github.com/Gumbees/homebase-intake/internal/infra/worker"
	"github.com/Gumbees/homebase-intake/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("development mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	tm := pg.NewTxManager(pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer func() { _ = redisClient.Close() }()
	locker := red.NewLocker(redisClient)
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Repositories ----
	taskRepo := pg.NewTaskRepo(pool, tm)
	subjectRepo := pg.NewSubjectRepo(pool)
	scheduleRepo := pg.NewScheduleRepo(pool)
	ledgerRepo := pg.NewCreationRecordRepo(pool)
	documentRepo := pg.NewDocumentRepo(pool)
	entitySink := pg.NewEntitySink(pool)

	// ---- Attachments ----
	var store *storage.FSStore
	if cfg.Storage.EncryptionKey != "" {
		encSvc, err := security.NewEncryptionService(cfg.Storage.EncryptionKey)
		if err != nil {
			log.Fatalf("storage encryption: %v", err)
		}
		store, err = storage.NewEncryptedFSStore(cfg.Storage.Dir, encSvc)
		if err != nil {
			log.Fatalf("attachment store: %v", err)
		}
	} else {
		store, err = storage.NewFSStore(cfg.Storage.Dir)
		if err != nil {
			log.Fatalf("attachment store: %v", err)
		}
	}

	// ---- Notifier ----
	var notifier *notify.TelegramNotifier
	if cfg.Notify.TelegramToken != "" {
		notifier, err = notify.NewTelegramNotifier(cfg.Notify.TelegramToken, cfg.Notify.ChatID, logger)
		if err != nil {
			log.Fatalf("telegram notifier: %v", err)
		}
	} else {
		logger.Warn().Msg("notify.telegram_token not set; operator notifications disabled")
	}

	// ---- Inference gateway ----
	gateway := aiAdapters.NewGateway(logger,
		aiAdapters.WithRateLimit(rateLimiter, cfg.AI.RateLimit, cfg.AI.RateWindow),
		aiAdapters.WithRetry(cfg.AI.MaxRetries, cfg.AI.RetryPause),
	)
	registered := 0
	if cfg.AI.OpenAIKey != "" {
		p, err := aiAdapters.NewOpenAIProvider(cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL, cfg.AI.OpenAIModel)
		if err != nil {
			log.Fatalf("openai provider: %v", err)
		}
		gateway.Register(aiAdapters.NewLimitedProvider(p, 16))
		registered++
	}
	if cfg.AI.GeminiKey != "" {
		p, err := aiAdapters.NewGeminiProvider(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.GeminiModel)
		if err != nil {
			log.Fatalf("gemini provider: %v", err)
		}
		gateway.Register(aiAdapters.NewLimitedProvider(p, 16))
		registered++
	}
	if registered == 0 {
		if !cfg.Runtime.Dev {
			log.Fatalf("no inference provider configured: set ai.openai_key or ai.gemini_key")
		}
		gateway.Register(aiAdapters.NewNoopProvider())
		logger.Warn().Msg("no provider keys set; using noop provider")
	}

	// The interface must stay nil when no notifier is configured; a typed
	// nil pointer would defeat the consumers' nil checks.
	var notifierPort adapter.Notifier
	if notifier != nil {
		notifierPort = notifier
	}

	// ---- Use cases ----
	intakeUC := usecase.NewIntakeUseCase(taskRepo, documentRepo, ledgerRepo, entitySink, notifierPort, tm, logger)
	analysisUC := usecase.NewAnalysisUseCase(store, gateway, extract.NewNormalizer(logger), intakeUC, logger)
	evaluator := aiAdapters.NewSubjectEvaluator(gateway, cfg.AI.DefaultProvider, logger)
	evalUC := usecase.NewEvaluationUseCase(subjectRepo, scheduleRepo, evaluator, notifierPort, tm, cfg.Scheduler.DailyLimit, logger)

	// ---- Queue processor ----
	processor := worker.NewProcessor(taskRepo, notifierPort, worker.ProcessorConfig{
		Interval:    cfg.Queue.Interval,
		BatchSize:   cfg.Queue.BatchSize,
		StaleAfter:  cfg.Queue.StaleAfter,
		MaxAttempts: cfg.Queue.MaxAttempts,
	}, logger)
	processor.Register(model.TaskKindConsumableExpiration, worker.NewConsumableExpirationHandler(taskRepo, notifierPort, logger))
	processor.Register(model.TaskKindStockCheck, worker.NewStockCheckHandler(notifierPort, logger))
	processor.Register(model.TaskKindObjectEvaluation, worker.NewObjectEvaluationHandler(subjectRepo, evaluator, logger))
	wPool := worker.NewPool(cfg.Queue.Workers, logger)
	wPool.Start(ctx)
	defer wPool.Stop()
	go processor.Start(ctx, wPool)

	// ---- Evaluation scheduler ----
	schedWorker := sched.NewWorker(evalUC, locker, cfg.Scheduler.Interval, cfg.Scheduler.Batch, logger)
	schedWorker.Start(ctx)
	defer schedWorker.Stop()

	// ---- API ----
	auth := api.NewAuthManager(cfg.API.APIKey, cfg.API.JWTSecret, !cfg.Runtime.Dev, cfg.API.SessionTTL)
	srv := api.NewServer(analysisUC, intakeUC, processor, schedWorker, gateway, auth, logger)
	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.API.Port)); err != nil {
			logger.Error().Err(err).Msg("api server stopped")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api shutdown failed")
	}
	cancel()
}
