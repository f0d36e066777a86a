package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/gridline-energy/gridline/internal/app"
	"github.com/gridline-energy/gridline/internal/exchange/inbox"
	"github.com/gridline-energy/gridline/internal/exchange/outbox"
	jobmetrics "github.com/gridline-energy/gridline/internal/jobs"
	"github.com/gridline-energy/gridline/internal/platform/cache"
	"github.com/gridline-energy/gridline/internal/platform/db"
	"github.com/gridline-energy/gridline/internal/process"
	"github.com/gridline-energy/gridline/internal/settlement"
	"github.com/gridline-energy/gridline/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := jobmetrics.NewMetrics(nil)

	settlementRepo := settlement.NewRepository(pool)
	priceCache := settlement.NewPriceCache(settlement.NewPgPriceSource(pool), redisClient, cfg.SpotPriceTTL, logger)
	settlementService := settlement.NewService(settlementRepo, settlement.NewPgInputSource(pool), priceCache, logger)

	outboxRepo := outbox.NewRepository(pool)
	dispatcher := outbox.NewDispatcher(outboxRepo, outbox.NewHTTPSender(cfg.HubURL, nil), outbox.Config{
		MaxRetries:     cfg.OutboxMaxRetries,
		RetryBaseDelay: cfg.OutboxRetryBaseDelay,
		PollInterval:   cfg.OutboxPollInterval,
		BatchSize:      cfg.OutboxBatchSize,
		StaleClaimAge:  cfg.OutboxStaleClaimAge,
	}, logger)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	processRepo := process.NewRepository(pool)
	processManager := process.NewManager(processRepo, process.NewRegistry(), logger)
	// Inbox-sweep advances must schedule settlement runs the same way
	// HTTP-driven advances in the api server do.
	processManager.Subscribe(jobs.NewSettlementTrigger(jobClient, logger))

	inboxRegistry := inbox.NewRegistry()
	process.RegisterDocumentHandlers(inboxRegistry, processManager, logger)
	inboxProcessor := inbox.NewProcessor(inbox.NewRepository(pool), inboxRegistry, inbox.Config{
		MaxAttempts:  cfg.InboxMaxAttempts,
		PollInterval: cfg.InboxPollInterval,
	}, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSettlementCalculate, Handler: jobs.HandleSettlementCalculate(settlementService, outboxRepo, metrics, logger)},
			{Type: jobs.TaskSettlementCorrect, Handler: jobs.HandleSettlementCorrect(settlementService, outboxRepo, metrics, logger)},
			{Type: jobs.TaskOutboxDispatch, Handler: jobs.HandleOutboxDispatch(dispatcher, metrics, logger)},
			{Type: jobs.TaskInboxSweep, Handler: jobs.HandleInboxSweep(inboxProcessor, metrics, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "@every " + cfg.OutboxPollInterval.String(), Task: jobs.NewOutboxDispatchTask()},
			{Spec: "@every " + cfg.InboxPollInterval.String(), Task: jobs.NewInboxSweepTask()},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
