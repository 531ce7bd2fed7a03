package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/observability"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// TicketRef addresses a ticket by its queue and participant.
type TicketRef struct {
	QueueID       string
	ParticipantID string
}

// TransitionContext carries who asks and when.
type TransitionContext struct {
	Actor domain.Actor
	// Now overrides the engine clock when set.
	Now time.Time
	// Queue is an optional prefetched copy of the ticket's queue.
	Queue *domain.Queue
	// RequireOwner, when set, restricts the transition to queues owned by it.
	RequireOwner string
	Reason       string
}

// TransitionResult describes an accepted transition.
type TransitionResult struct {
	TicketID      string              `json:"ticket_id"`
	QueueID       string              `json:"queue_id"`
	ParticipantID string              `json:"participant_id"`
	Event         domain.TicketEvent  `json:"event,omitempty"`
	Actor         domain.Actor        `json:"actor"`
	Created       bool                `json:"created,omitempty"`
	From          domain.TicketStatus `json:"from,omitempty"`
	To            domain.TicketStatus `json:"to"`
	Position      *int                `json:"position"`
	PriorityBoost int                 `json:"priority_boost"`
	ExpiresAt     *time.Time          `json:"expires_at"`
	AccessToken   string              `json:"access_token,omitempty"`
}

// TransitionEngine validates and applies single ticket state changes.
type TransitionEngine struct {
	store    repository.Store
	settings Settings
	now      func() time.Time
	logger   *zap.Logger
	metrics  *observability.Metrics
	follow   *followUps
}

// Transition applies event to the referenced ticket in its own transaction
// and runs the post-commit follow-ups.
func (e *TransitionEngine) Transition(ctx context.Context, ref TicketRef, event domain.TicketEvent, tc TransitionContext) (*TransitionResult, error) {
	var result *TransitionResult
	err := e.store.WithTx(ctx, func(tx repository.Repositories) error {
		queue := tc.Queue
		if queue == nil || queue.ID != ref.QueueID {
			q, err := tx.Queues().GetByID(ctx, ref.QueueID)
			if err != nil {
				return storeError(err, "queue")
			}
			queue = q
		}
		if tc.RequireOwner != "" && queue.OwnerID != tc.RequireOwner {
			return apperrors.NewNotFound("queue", nil)
		}
		tc.Queue = queue
		ticket, err := tx.Tickets().GetByParticipant(ctx, ref.QueueID, ref.ParticipantID)
		if err != nil {
			return storeError(err, "ticket")
		}
		result, err = e.Apply(ctx, tx, ticket, event, tc)
		return err
	})
	if err != nil {
		return nil, storeError(err, "ticket")
	}
	e.follow.run(ctx, result)
	return result, nil
}

// Apply performs one transition inside tx. The actor check runs before the
// table lookup. The status write is conditional on the status ticket was
// read with, and the audit event is appended in the same transaction. On
// success ticket reflects the new state.
func (e *TransitionEngine) Apply(ctx context.Context, tx repository.Repositories, ticket *domain.Ticket, event domain.TicketEvent, tc TransitionContext) (*TransitionResult, error) {
	if !tc.Actor.Permits(event) {
		return nil, apperrors.NewForbidden("actor " + string(tc.Actor) + " may not request " + string(event))
	}
	to, ok := domain.NextStatus(ticket.Status, event)
	if !ok {
		return nil, apperrors.NewIllegalTransition(string(ticket.Status), string(event))
	}
	now := tc.Now
	if now.IsZero() {
		now = e.now()
	}

	change := repository.TicketChange{
		ID:       ticket.ID,
		From:     ticket.Status,
		To:       to,
		ServedAt: ticket.ServedAt,
		At:       now,
	}
	if ticket.Status == domain.TicketStatusLate {
		if ticket.ExpiresAt == nil {
			e.logger.Error("late ticket without expiry", zap.String("ticket_id", ticket.ID))
			return nil, apperrors.NewInvariantViolation("late ticket has no expiresAt", map[string]any{"ticket_id": ticket.ID})
		}
		if event == domain.EventRejoin {
			if now.After(*ticket.ExpiresAt) {
				change.To = domain.TicketStatusMissed
			} else {
				change.PriorityBoost = 1
			}
		}
	}
	switch change.To {
	case domain.TicketStatusLate:
		queue, err := e.queueFor(ctx, tx, ticket.QueueID, tc.Queue)
		if err != nil {
			return nil, err
		}
		expiresAt := now.Add(queue.Effective(e.settings.DefaultServiceSlots, e.settings.DefaultGraceMinutes).GraceTime)
		change.ExpiresAt = &expiresAt
	case domain.TicketStatusCompleted:
		if change.From == domain.TicketStatusServing {
			change.ServedAt = &now
		}
	}

	applied, err := tx.Tickets().CompareAndSwap(ctx, change)
	if err != nil {
		return nil, storeError(err, "ticket")
	}
	if !applied {
		return nil, apperrors.NewConcurrentModification(ticket.ID)
	}

	auditType, _ := event.AuditType()
	if change.To == domain.TicketStatusMissed {
		auditType = domain.EventTypeTicketMissed
	}
	from := change.From
	ticketID := ticket.ID
	if err := tx.Events().Append(ctx, &domain.Event{
		ID:         uuid.NewString(),
		QueueID:    ticket.QueueID,
		TicketID:   &ticketID,
		Type:       auditType,
		Actor:      tc.Actor,
		FromStatus: &from,
		ToStatus:   change.To,
		Reason:     tc.Reason,
		CreatedAt:  now,
	}); err != nil {
		return nil, storeError(err, "event")
	}

	ticket.Status = change.To
	ticket.PriorityBoost = change.PriorityBoost
	ticket.ServedAt = change.ServedAt
	ticket.ExpiresAt = change.ExpiresAt
	ticket.UpdatedAt = now

	result := &TransitionResult{
		TicketID:      ticket.ID,
		QueueID:       ticket.QueueID,
		ParticipantID: ticket.ParticipantID,
		Event:         event,
		Actor:         tc.Actor,
		From:          change.From,
		To:            change.To,
		PriorityBoost: change.PriorityBoost,
		ExpiresAt:     change.ExpiresAt,
	}
	if result.Position, err = PositionOf(ctx, tx.Tickets(), ticket); err != nil {
		return nil, storeError(err, "ticket")
	}
	e.metrics.RecordTransition(string(change.From), string(change.To))
	return result, nil
}

func (e *TransitionEngine) queueFor(ctx context.Context, tx repository.Repositories, queueID string, prefetched *domain.Queue) (*domain.Queue, error) {
	if prefetched != nil && prefetched.ID == queueID {
		return prefetched, nil
	}
	queue, err := tx.Queues().GetByID(ctx, queueID)
	if err != nil {
		return nil, storeError(err, "queue")
	}
	return queue, nil
}
