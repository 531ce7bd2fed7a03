package service

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/observability"
	"github.com/spec-kit/queue-service/internal/repository"
)

// Reconciler is the safety net for lost expiry checks. Each sweep re-arms an
// immediate check for every LATE ticket whose grace window has passed. The
// check's own re-read makes overlapping sweeps and multiple instances safe.
type Reconciler struct {
	store   repository.Store
	expiry  *ExpiryScheduler
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
	batch   int

	mu   sync.Mutex
	cron *cron.Cron
}

// NewReconciler creates a reconciler. Start schedules it.
func NewReconciler(store repository.Store, expiry *ExpiryScheduler, logger *zap.Logger, metrics *observability.Metrics, now func() time.Time, batch int) *Reconciler {
	return &Reconciler{
		store:   store,
		expiry:  expiry,
		logger:  logger,
		metrics: metrics,
		now:     now,
		batch:   batch,
	}
}

// Sweep re-arms overdue checks and returns how many were armed.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	overdue, err := r.store.Tickets().ListExpiredLate(ctx, r.now(), r.batch)
	if err != nil {
		return 0, storeError(err, "ticket")
	}
	armed := 0
	for _, ticket := range overdue {
		if err := r.expiry.ArmNow(ctx, ticket.QueueID, ticket.ID); err != nil {
			r.logger.Warn("reconciler could not re-arm expiry check",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
			continue
		}
		armed++
	}
	r.metrics.RecordReconcile(armed)
	if armed > 0 {
		r.logger.Info("reconciler re-armed expiry checks", zap.Int("count", armed))
	}
	return armed, nil
}

// Start runs Sweep on a cron spec with seconds precision. A sweep still
// running when the next one is due is skipped.
func (r *Reconciler) Start(spec string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return nil
	}
	logger := cronLogger{r.logger}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(spec, func() {
		if _, err := r.Sweep(context.Background()); err != nil {
			r.logger.Warn("reconciler sweep failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	c.Start()
	r.cron = c
	return nil
}

// Stop unschedules the sweep and waits for a running one to finish or ctx
// to end.
func (r *Reconciler) Stop(ctx context.Context) {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
