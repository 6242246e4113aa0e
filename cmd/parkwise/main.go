package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/parkwise/parkwise/cmd/parkwise/cli"
	"github.com/parkwise/parkwise/internal/app"
	"github.com/parkwise/parkwise/internal/fees"
	"github.com/parkwise/parkwise/internal/observability"
	"github.com/parkwise/parkwise/internal/platform/cache"
	"github.com/parkwise/parkwise/internal/platform/db"
	"github.com/parkwise/parkwise/internal/pricing"
	"github.com/parkwise/parkwise/internal/registry"
	"github.com/parkwise/parkwise/internal/returns"
	"github.com/parkwise/parkwise/internal/sessions"
	"github.com/parkwise/parkwise/internal/shared"
	"github.com/parkwise/parkwise/internal/subscriptions"
	"github.com/parkwise/parkwise/jobs"
	"github.com/parkwise/parkwise/migrations"
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

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		os.Exit(runMigrate(ctx, cfg, logger))
	}
	if len(os.Args) > 1 {
		os.Exit(runCommand(ctx, cfg, os.Args[1:]))
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, MaxConnIdleTime: cfg.PGMaxIdleTime})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisOpts := redisOptions(cfg)
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		logger.Warn("redis unavailable, pricing cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	directory := registry.NewRepository(dbpool)

	pricingService := pricing.NewService(pricing.NewRepository(dbpool), pricing.NewCache(redisClient, cfg.PricingCacheTTL), auditLogger, logger)
	calculator := fees.NewCalculator(pricingService, feeOptions(cfg, metrics, logger))

	subscriptionService := subscriptions.NewService(subscriptions.NewRepository(dbpool), directory, pricingService, auditLogger, logger)
	sessionService := sessions.NewService(sessions.NewRepository(dbpool), directory, subscriptionService, calculator, auditLogger, metrics, logger)
	returnService := returns.NewService(returns.NewRepository(dbpool), directory, auditLogger, metrics, logger)

	inspector := asynq.NewInspector(redisOpts.AsynqOpt())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	var recalculator returns.Recalculator = returns.InlineRecalculator{Service: returnService}
	if cfg.ReturnsAsyncRecalc {
		jobClient := jobs.NewClient(redisOpts.AsynqOpt())
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		recalculator = jobClient
	}

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		PricingHandler:      pricing.NewHandler(logger, pricingService),
		SessionsHandler:     sessions.NewHandler(logger, sessionService, idempotencyStore),
		SubscriptionHandler: subscriptions.NewHandler(logger, subscriptionService),
		ReturnsHandler:      returns.NewHandler(logger, returnService, recalculator, idempotencyStore),
		JobHandler:          jobs.NewHandler(inspector, logger),
		Metrics:             metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.Bool("async_recalc", cfg.ReturnsAsyncRecalc))
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

func redisOptions(cfg *app.Config) cache.Options {
	return cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

func feeOptions(cfg *app.Config, observer fees.Observer, logger *slog.Logger) fees.Options {
	opts := fees.Options{Observer: observer, Logger: logger}
	if cfg.PricingResolveAt == app.ResolveAtEntry {
		opts.ReferenceTime = fees.ResolveAtEntry
	}
	if cfg.PricingMissingRule == app.MissingRuleReject {
		opts.MissingRule = fees.RejectMissing
	}
	return opts
}

func runMigrate(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()
	applied, err := db.Migrate(ctx, pool, migrations.Files, logger)
	if err != nil {
		logger.Error("migrate", slog.Any("error", err))
		return 1
	}
	logger.Info("schema up to date", slog.Int("applied", applied))
	return 0
}

// runCommand handles the operational subcommands.
func runCommand(ctx context.Context, cfg *app.Config, args []string) int {
	ops := cli.NewJobsCLI(redisOptions(cfg).AsynqOpt())
	defer func() { _ = ops.Close() }()

	switch args[0] {
	case "recalc":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: parkwise recalc <invoice-id>")
			return 2
		}
		invoiceID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "recalc: invalid invoice id %q\n", args[1])
			return 2
		}
		return ops.RecalculateCommand(ctx, invoiceID, os.Stdout, os.Stderr)
	case "reconcile":
		return ops.ReconcileCommand(ctx, 0, os.Stdout, os.Stderr)
	case "queue":
		return ops.QueueCommand(ctx, os.Stdout, os.Stderr)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (expected migrate, recalc, reconcile or queue)\n", args[0])
		return 2
	}
}
