package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/app"
	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/jobs"
	"github.com/spec-kit/queue-service/internal/observability"
	"github.com/spec-kit/queue-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.App, cfg.Logger, "worker")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build app", zap.Error(err))
	}
	defer a.Close()

	jobWorker := worker.NewJobWorker(a.Jobs, logger, worker.JobWorkerOptions{
		PollInterval: cfg.Jobs.PollInterval(),
		Concurrency:  cfg.Jobs.Concurrency,
	})
	jobWorker.Register(jobs.TypeLateExpiry, a.Core.Expiry.HandleJob)
	jobWorker.Register(jobs.TypePromote, a.Core.Promotion.HandleJob)

	if cfg.Reconciler.Enabled {
		if err := a.Core.Reconciler.Start(cfg.Reconciler.Spec); err != nil {
			logger.Fatal("failed to schedule reconciler", zap.String("spec", cfg.Reconciler.Spec), zap.Error(err))
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			a.Core.Reconciler.Stop(stopCtx)
		}()
	}

	logger.Info("worker started",
		zap.Duration("poll", cfg.Jobs.PollInterval()),
		zap.Int("concurrency", cfg.Jobs.Concurrency),
		zap.Bool("reconciler", cfg.Reconciler.Enabled))

	jobWorker.Run(ctx)

	logger.Info("worker stopped")
}
