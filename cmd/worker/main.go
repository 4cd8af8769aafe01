package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/daesung-metal/erp/internal/app"
	"github.com/daesung-metal/erp/internal/bom"
	jobmetrics "github.com/daesung-metal/erp/internal/jobs"
	"github.com/daesung-metal/erp/internal/observability"
	"github.com/daesung-metal/erp/internal/platform/cache"
	"github.com/daesung-metal/erp/internal/platform/db"
	"github.com/daesung-metal/erp/jobs"
)

const metricsAddr = ":9091"

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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{ApplicationName: "erp-worker"})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	bomMetrics, err := bom.NewMetrics(metrics.Registerer())
	if err != nil {
		logger.Error("register bom metrics", slog.Any("error", err))
		os.Exit(1)
	}
	bomService := bom.NewService(bom.NewPostgresRepository(pool), logger, bomMetrics, bom.ServiceConfig{
		DefaultMaxLevel: cfg.BOMDefaultMaxLevel,
	})
	scanStore := bom.NewScanStore(redisClient, cfg.BOMScanTTL)
	integrityJob := jobs.NewBOMIntegrityJob(bomService, scanStore, logger, jobmetrics.NewMetrics(metrics.Registerer()))

	scanTask, err := jobs.NewBOMIntegrityScanTask(jobs.BOMIntegrityScanPayload{Trigger: jobs.TriggerCron})
	if err != nil {
		logger.Error("build bom scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cache.QueueOpts(cfg.RedisAddr),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskBOMIntegrityScan, Handler: integrityJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.BOMScanCron, Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: metricsAddr, Handler: metrics.Handler(), ReadTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting worker", slog.String("bom_scan_cron", cfg.BOMScanCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
