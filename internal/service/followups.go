package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/cache"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/observability"
)

// followUps runs the best-effort work that happens after a transition has
// committed: arming expiry checks, invalidating cached reads, notifying
// observers and triggering promotion. None of it can undo the transition.
type followUps struct {
	expiry        *ExpiryScheduler
	promotion     *PromotionEngine
	notifications *NotificationService
	cache         cache.Cache
	logger        *zap.Logger
	metrics       *observability.Metrics
}

func (f *followUps) run(ctx context.Context, result *TransitionResult) {
	if result.To == domain.TicketStatusLate && result.ExpiresAt != nil {
		if err := f.expiry.Arm(ctx, result.QueueID, result.TicketID, *result.ExpiresAt); err != nil {
			// the reconciler picks the ticket up once its window has passed
			f.metrics.RecordDegraded("jobs")
			f.logger.Warn("expiry check not armed",
				zap.String("ticket_id", result.TicketID), zap.Error(err))
		}
	}
	f.invalidateQueue(ctx, result.QueueID)
	f.notifications.TicketUpdated(ctx, result)
	f.notifications.QueueUpdated(ctx, result.QueueID, string(result.To), nil)
	if result.Created || result.Event.TriggersPromotion() {
		f.promotion.Trigger(ctx, result.QueueID)
	}
}

func (f *followUps) promoted(ctx context.Context, queueID string, results []*TransitionResult) {
	f.invalidateQueue(ctx, queueID)
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.TicketID
		f.notifications.TicketUpdated(ctx, r)
	}
	f.notifications.QueueUpdated(ctx, queueID, "promoted", ids)
}

// queueChanged covers settings changes and deletion.
func (f *followUps) queueChanged(ctx context.Context, queueID, reason string, promote bool) {
	f.invalidateQueue(ctx, queueID)
	f.notifications.QueueUpdated(ctx, queueID, reason, nil)
	if promote {
		f.promotion.Trigger(ctx, queueID)
	}
}

// invalidateQueue drops every cached view of the queue. Any ticket change
// can shift the positions of the others.
func (f *followUps) invalidateQueue(ctx context.Context, queueID string) {
	for _, pattern := range []string{cache.StatusPattern(queueID), cache.QueueListPattern(queueID)} {
		if err := f.cache.Invalidate(ctx, pattern); err != nil {
			f.metrics.RecordDegraded("cache")
			f.logger.Warn("cache invalidation failed", zap.String("pattern", pattern), zap.Error(err))
		}
	}
}
