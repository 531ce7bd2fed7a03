package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/cache"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/jobs"
	"github.com/spec-kit/queue-service/internal/observability"
	"github.com/spec-kit/queue-service/internal/repository"
)

// Settings tunes the scheduling core.
type Settings struct {
	DefaultServiceSlots int
	DefaultGraceMinutes int
	PageSize            int
	CacheTTL            time.Duration
	ExpiryRetry         jobs.RetryPolicy
	PromoteRetry        jobs.RetryPolicy
	// PromoteBackupDelay is how long after a slot-changing mutation the
	// durable promotion job fires in case the detached promotion was lost.
	PromoteBackupDelay time.Duration
	ReconcileBatch     int
}

func (s Settings) withDefaults() Settings {
	if s.DefaultServiceSlots <= 0 {
		s.DefaultServiceSlots = domain.DefaultServiceSlots
	}
	if s.DefaultGraceMinutes <= 0 {
		s.DefaultGraceMinutes = domain.DefaultGraceMinutes
	}
	if s.PageSize <= 0 {
		s.PageSize = 10
	}
	if s.CacheTTL <= 0 {
		s.CacheTTL = 30 * time.Second
	}
	if s.ExpiryRetry.MaxAttempts <= 0 {
		s.ExpiryRetry = jobs.DefaultRetryPolicy
	}
	if s.PromoteRetry.MaxAttempts <= 0 {
		s.PromoteRetry = jobs.DefaultRetryPolicy
	}
	if s.PromoteBackupDelay <= 0 {
		s.PromoteBackupDelay = 5 * time.Second
	}
	if s.ReconcileBatch <= 0 {
		s.ReconcileBatch = 500
	}
	return s
}

// Dependencies bundles collaborators for the core.
type Dependencies struct {
	Store    repository.Store
	Jobs     jobs.Scheduler
	Notifier events.Notifier
	Cache    cache.Cache
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Settings Settings
	// Now defaults to time.Now.
	Now func() time.Time
	// Detach runs post-commit promotions off the caller's path. It defaults
	// to starting a goroutine.
	Detach func(func())
}

// Core wires the engines that make up the scheduling core.
type Core struct {
	Transitions *TransitionEngine
	Promotion   *PromotionEngine
	Admission   *Admission
	Expiry      *ExpiryScheduler
	Reconciler  *Reconciler
	Queues      *QueueService
}

// New constructs every engine around one shared set of collaborators.
func New(deps Dependencies) *Core {
	settings := deps.Settings.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Now
	if clock == nil {
		clock = time.Now
	}
	// Postgres keeps microseconds; values read back must compare equal to
	// the ones this process wrote.
	now := func() time.Time { return clock().Truncate(time.Microsecond) }
	detach := deps.Detach
	if detach == nil {
		detach = func(fn func()) { go fn() }
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = events.NewInMemoryNotifier()
	}
	c := deps.Cache
	if c == nil {
		c = cache.Noop{}
	}
	scheduler := deps.Jobs
	if scheduler == nil {
		scheduler = jobs.NewMemoryQueue(now)
	}

	follow := &followUps{
		notifications: NewNotificationService(notifier, logger, deps.Metrics, now),
		cache:         c,
		logger:        logger,
		metrics:       deps.Metrics,
	}
	transitions := &TransitionEngine{
		store:    deps.Store,
		settings: settings,
		now:      now,
		logger:   logger,
		metrics:  deps.Metrics,
		follow:   follow,
	}
	promotion := &PromotionEngine{
		store:       deps.Store,
		transitions: transitions,
		jobs:        scheduler,
		settings:    settings,
		now:         now,
		detach:      detach,
		logger:      logger,
		metrics:     deps.Metrics,
		follow:      follow,
	}
	expiry := &ExpiryScheduler{
		store:       deps.Store,
		transitions: transitions,
		jobs:        scheduler,
		policy:      settings.ExpiryRetry,
		now:         now,
		logger:      logger,
		follow:      follow,
	}
	follow.expiry = expiry
	follow.promotion = promotion

	admission := &Admission{
		store:       deps.Store,
		transitions: transitions,
		now:         now,
		follow:      follow,
	}
	return &Core{
		Transitions: transitions,
		Promotion:   promotion,
		Admission:   admission,
		Expiry:      expiry,
		Reconciler:  NewReconciler(deps.Store, expiry, logger, deps.Metrics, now, settings.ReconcileBatch),
		Queues: &QueueService{
			store:       deps.Store,
			transitions: transitions,
			admission:   admission,
			promotion:   promotion,
			cache:       c,
			settings:    settings,
			logger:      logger,
			follow:      follow,
		},
	}
}
