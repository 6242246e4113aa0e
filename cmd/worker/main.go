package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/parkwise/parkwise/internal/app"
	jobmetrics "github.com/parkwise/parkwise/internal/jobs"
	"github.com/parkwise/parkwise/internal/observability"
	"github.com/parkwise/parkwise/internal/platform/cache"
	"github.com/parkwise/parkwise/internal/platform/db"
	"github.com/parkwise/parkwise/internal/registry"
	"github.com/parkwise/parkwise/internal/returns"
	"github.com/parkwise/parkwise/internal/shared"
	"github.com/parkwise/parkwise/jobs"
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

	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, MaxConnIdleTime: cfg.PGMaxIdleTime})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	returnService := returns.NewService(returns.NewRepository(pool), registry.NewRepository(pool), shared.NewAuditLogger(pool), metrics, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	recalcJob := &jobs.ReturnsRecalculateJob{Service: returnService, Logger: logger, Metrics: jobMetrics}
	reconcileJob := &jobs.ReconcileOpenJob{
		Service:   returnService,
		Keys:      idempotencyStore,
		Retention: cfg.IdempotencyRetention,
		Logger:    logger,
		Metrics:   jobMetrics,
	}

	sweepTask, err := jobs.NewReconcileOpenTask(0)
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts.AsynqOpt(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReturnsRecalculate, Handler: recalcJob.Handle},
			{Type: jobs.TaskReturnsReconcileOpen, Handler: reconcileJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ReconcileCron, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.Int("concurrency", cfg.WorkerConcurrency), slog.String("reconcile_cron", cfg.ReconcileCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
