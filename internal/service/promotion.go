package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/jobs"
	"github.com/spec-kit/queue-service/internal/observability"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// PromotionEngine moves WAITING tickets into free service slots.
type PromotionEngine struct {
	store       repository.Store
	transitions *TransitionEngine
	jobs        jobs.Scheduler
	settings    Settings
	now         func() time.Time
	detach      func(func())
	logger      *zap.Logger
	metrics     *observability.Metrics
	follow      *followUps
}

// Promote fills free slots of a queue one ticket at a time and returns the
// promoted ticket ids. The queue row lock serializes promotions per queue;
// slots and the best candidate are re-read before every promotion so a
// shrinking capacity is honored mid-loop. A candidate lost to a concurrent
// transition ends the loop: whatever changed it triggers promotion again.
func (p *PromotionEngine) Promote(ctx context.Context, queueID string) ([]string, error) {
	var results []*TransitionResult
	err := p.store.WithTx(ctx, func(tx repository.Repositories) error {
		results = results[:0]
		queue, err := tx.Queues().GetForUpdate(ctx, queueID)
		if err != nil {
			return storeError(err, "queue")
		}
		slots := queue.Effective(p.settings.DefaultServiceSlots, p.settings.DefaultGraceMinutes).ServiceSlots
		for {
			serving, err := tx.Tickets().CountByStatus(ctx, queueID, domain.TicketStatusServing)
			if err != nil {
				return storeError(err, "ticket")
			}
			if slots-serving <= 0 {
				return nil
			}
			candidate, err := tx.Tickets().NextWaiting(ctx, queueID)
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			if err != nil {
				return storeError(err, "ticket")
			}
			result, err := p.transitions.Apply(ctx, tx, candidate, domain.EventServe, TransitionContext{
				Actor:  domain.ActorSystem,
				Queue:  queue,
				Reason: "slot available",
			})
			if apperrors.Is(err, apperrors.CodeConcurrentModification) {
				p.logger.Debug("promotion candidate raced", zap.String("ticket_id", candidate.ID))
				return nil
			}
			if err != nil {
				return err
			}
			results = append(results, result)
		}
	})
	if err != nil {
		return nil, err
	}

	promoted := make([]string, len(results))
	for i, r := range results {
		promoted[i] = r.TicketID
	}
	p.metrics.RecordPromotions(len(promoted))
	if len(results) > 0 {
		p.follow.promoted(ctx, queueID, results)
	}
	return promoted, nil
}

// Trigger arms the durable backup promotion for the queue and runs Promote
// detached from the caller.
func (p *PromotionEngine) Trigger(ctx context.Context, queueID string) {
	p.scheduleBackup(ctx, queueID)
	detached := context.WithoutCancel(ctx)
	p.detach(func() {
		if _, err := p.Promote(detached, queueID); err != nil && !apperrors.Is(err, apperrors.CodeNotFound) {
			p.logger.Warn("promotion failed", zap.String("queue_id", queueID), zap.Error(err))
		}
	})
}

func (p *PromotionEngine) scheduleBackup(ctx context.Context, queueID string) {
	err := p.jobs.Schedule(ctx, jobs.TypePromote, jobs.PromotePayload{QueueID: queueID},
		p.settings.PromoteBackupDelay, jobs.PromoteKey(queueID), p.settings.PromoteRetry)
	if err != nil {
		p.metrics.RecordDegraded("jobs")
		p.logger.Warn("promotion job not scheduled", zap.String("queue_id", queueID), zap.Error(err))
	}
}

// HandleJob runs a deferred promotion. A deleted queue completes the job.
func (p *PromotionEngine) HandleJob(ctx context.Context, job *jobs.Job) error {
	var payload jobs.PromotePayload
	if err := job.Decode(&payload); err != nil {
		p.logger.Error("malformed promotion job", zap.String("job_key", job.Key), zap.Error(err))
		return nil
	}
	_, err := p.Promote(ctx, payload.QueueID)
	if apperrors.Is(err, apperrors.CodeNotFound) {
		return nil
	}
	return err
}
