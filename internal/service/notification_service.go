package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/observability"
)

// NotificationService emits transition outcomes to the notifier. Publishing
// never fails the caller; a failed publish is logged and dropped.
type NotificationService struct {
	notifier events.Notifier
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewNotificationService creates the service.
func NewNotificationService(notifier events.Notifier, logger *zap.Logger, metrics *observability.Metrics, now func() time.Time) *NotificationService {
	if now == nil {
		now = time.Now
	}
	return &NotificationService{
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
		now:      now,
	}
}

// TicketUpdated tells the ticket's observers about its new state.
func (n *NotificationService) TicketUpdated(ctx context.Context, result *TransitionResult) {
	n.publish(ctx, events.TicketChannel(result.TicketID), events.Event{
		Type:     events.EventTicketUpdated,
		QueueID:  result.QueueID,
		TicketID: result.TicketID,
		Actor:    result.Actor,
		Payload: events.TicketUpdatedPayload{
			Status:        result.To,
			Position:      result.Position,
			PriorityBoost: result.PriorityBoost,
			ExpiresAt:     result.ExpiresAt,
		},
	})
}

// QueueUpdated tells queue observers to refresh positions and listings.
func (n *NotificationService) QueueUpdated(ctx context.Context, queueID, reason string, promoted []string) {
	n.publish(ctx, events.QueueChannel(queueID), events.Event{
		Type:    events.EventQueueUpdated,
		QueueID: queueID,
		Payload: events.QueueUpdatedPayload{Reason: reason, Promoted: promoted},
	})
}

func (n *NotificationService) publish(ctx context.Context, channel string, event events.Event) {
	if n.notifier == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = n.now()
	if err := n.notifier.Publish(ctx, channel, event); err != nil {
		n.metrics.RecordDegraded("notifier")
		n.logger.Warn("notification dropped",
			zap.String("channel", channel),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}
