// Package app assembles the collaborators shared by the api and worker
// processes.
package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/cache"
	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/jobs"
	"github.com/spec-kit/queue-service/internal/observability"
	"github.com/spec-kit/queue-service/internal/persistence"
	"github.com/spec-kit/queue-service/internal/repository"
	"github.com/spec-kit/queue-service/internal/service"
)

// App holds the wired core and the connections it runs on.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Postgres *persistence.Postgres
	Redis    *persistence.Redis
	Store    repository.Store
	Jobs     *jobs.RedisQueue
	Core     *service.Core
}

// Build connects to Postgres and Redis, runs migrations when enabled and
// wires the core.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			pg.Close()
			return nil, err
		}
	}
	rdb := persistence.NewRedis(ctx, cfg.Redis, cfg.App.Name, logger)

	metrics := observability.NewMetrics()
	store := pg.Store(cfg.Postgres, logger)
	queue := jobs.NewRedisQueue(rdb.Client, jobs.RedisQueueOptions{
		Prefix:            cfg.Jobs.KeyPrefix,
		VisibilityTimeout: cfg.Jobs.VisibilityTimeout(),
	})

	var c cache.Cache = cache.Noop{}
	if cfg.Cache.Enabled {
		c = cache.NewRedisCache(rdb.Client, cfg.Cache.KeyPrefix, cfg.Cache.TTL())
	}

	retry := jobs.RetryPolicy{MaxAttempts: cfg.Jobs.MaxAttempts, Backoff: cfg.Jobs.Backoff()}
	core := service.New(service.Dependencies{
		Store:    store,
		Jobs:     queue,
		Notifier: events.NewRedisNotifier(rdb.Client, cfg.Notify.ChannelPrefix),
		Cache:    c,
		Logger:   logger,
		Metrics:  metrics,
		Settings: service.Settings{
			DefaultServiceSlots: cfg.Queue.DefaultServiceSlots,
			DefaultGraceMinutes: cfg.Queue.DefaultGraceMinutes,
			PageSize:            cfg.Queue.PageSize,
			CacheTTL:            cfg.Cache.TTL(),
			ExpiryRetry:         retry,
			PromoteRetry:        retry,
			PromoteBackupDelay:  cfg.Jobs.PromoteBackup(),
			ReconcileBatch:      cfg.Reconciler.BatchSize,
		},
	})

	return &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics,
		Postgres: pg,
		Redis:    rdb,
		Store:    store,
		Jobs:     queue,
		Core:     core,
	}, nil
}

// Close releases connections.
func (a *App) Close() {
	a.Redis.Close()
	a.Postgres.Close()
}
