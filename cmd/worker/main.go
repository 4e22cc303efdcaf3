package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gatehouse-authz/gatehouse/internal/app"
	"github.com/gatehouse-authz/gatehouse/internal/billing"
	jobmetrics "github.com/gatehouse-authz/gatehouse/internal/jobs"
	"github.com/gatehouse-authz/gatehouse/internal/platform/db"
	"github.com/gatehouse-authz/gatehouse/jobs"
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

	catalog := billing.BuiltinCatalog()
	if cfg.PlanCatalogPath != "" {
		catalog, err = billing.LoadCatalog(cfg.PlanCatalogPath)
		if err != nil {
			logger.Error("load plan catalog", slog.Any("error", err))
			os.Exit(1)
		}
	}
	billingService := billing.NewService(billing.NewRepository(pool), catalog, logger)

	handlers := &jobs.Handlers{
		Billing:        billingService,
		Pool:           pool,
		Logger:         logger,
		Metrics:        jobmetrics.NewMetrics(prometheus.NewRegistry()),
		UsageRetention: cfg.UsageRetention,
	}

	rollupTask, err := jobs.NewUsageRollupTask(jobs.UsageRollupPayload{})
	if err != nil {
		logger.Error("build rollup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers:  handlers,
		Cron: []jobs.CronRegistration{
			{Spec: "15 2 * * *", Task: rollupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "*/30 * * * *", Task: jobs.NewSubscriptionReconcileTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 3 * * 0", Task: jobs.NewDecisionLogPruneTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
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
