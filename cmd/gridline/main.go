package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gridline-energy/gridline/internal/app"
	"github.com/gridline-energy/gridline/internal/exchange/inbox"
	"github.com/gridline-energy/gridline/internal/exchange/outbox"
	"github.com/gridline-energy/gridline/internal/observability"
	"github.com/gridline-energy/gridline/internal/platform/cache"
	"github.com/gridline-energy/gridline/internal/platform/db"
	"github.com/gridline-energy/gridline/internal/process"
	"github.com/gridline-energy/gridline/internal/settlement"
	"github.com/gridline-energy/gridline/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// Spot price caching degrades to the database without redis.
		logger.Warn("redis unavailable", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

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

	metrics := observability.NewMetrics()

	processRepo := process.NewRepository(pool)
	processManager := process.NewManager(processRepo, process.NewRegistry(), logger)
	processManager.Subscribe(jobs.NewSettlementTrigger(jobClient, logger))
	processHandler := process.NewHandler(processManager, logger)

	settlementRepo := settlement.NewRepository(pool)
	priceCache := settlement.NewPriceCache(settlement.NewPgPriceSource(pool), redisClient, cfg.SpotPriceTTL, logger)
	settlementService := settlement.NewService(settlementRepo, settlement.NewPgInputSource(pool), priceCache, logger)
	settlementHandler := settlement.NewHandler(settlementService, logger)

	outboxRepo := outbox.NewRepository(pool)
	outboxHandler := outbox.NewHandler(outboxRepo, logger)

	inboxRepo := inbox.NewRepository(pool)
	inboxRegistry := inbox.NewRegistry()
	process.RegisterDocumentHandlers(inboxRegistry, processManager, logger)
	inboxCfg := inbox.Config{MaxAttempts: cfg.InboxMaxAttempts, PollInterval: cfg.InboxPollInterval}
	inboxProcessor := inbox.NewProcessor(inboxRepo, inboxRegistry, inboxCfg, logger)
	inboxHandler := inbox.NewHandler(inboxRepo, inboxProcessor, inboxCfg, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		ProcessHandler:    processHandler,
		SettlementHandler: settlementHandler,
		OutboxHandler:     outboxHandler,
		InboxHandler:      inboxHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
