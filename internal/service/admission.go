package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// Admission is the join path.
type Admission struct {
	store       repository.Store
	transitions *TransitionEngine
	now         func() time.Time
	follow      *followUps
}

// Join admits a participant into a queue. The queue row is locked for the
// duration so concurrent joins cannot overshoot maxSize. A participant whose
// ticket is CANCELLED or MISSED rejoins with it; any other existing ticket
// fails with AlreadyJoined.
func (a *Admission) Join(ctx context.Context, queueID, participantID string) (*TransitionResult, error) {
	var result *TransitionResult
	err := a.store.WithTx(ctx, func(tx repository.Repositories) error {
		queue, err := tx.Queues().GetForUpdate(ctx, queueID)
		if err != nil {
			return storeError(err, "queue")
		}
		if queue.MaxSize != nil {
			active, err := tx.Tickets().CountByStatus(ctx, queueID, domain.ActiveTicketStatuses...)
			if err != nil {
				return storeError(err, "ticket")
			}
			if active >= *queue.MaxSize {
				return apperrors.NewCapacityExceeded(queueID, *queue.MaxSize)
			}
		}

		existing, err := tx.Tickets().GetByParticipant(ctx, queueID, participantID)
		switch {
		case err == nil:
			if existing.Status != domain.TicketStatusCancelled && existing.Status != domain.TicketStatusMissed {
				return apperrors.NewAlreadyJoined(queueID)
			}
			result, err = a.transitions.Apply(ctx, tx, existing, domain.EventRejoin, TransitionContext{
				Actor:  domain.ActorUser,
				Queue:  queue,
				Reason: "join",
			})
			return err
		case !errors.Is(err, repository.ErrNotFound):
			return storeError(err, "ticket")
		}

		result, err = a.create(ctx, tx, queueID, participantID)
		return err
	})
	if err != nil {
		return nil, err
	}
	a.follow.run(ctx, result)
	return result, nil
}

func (a *Admission) create(ctx context.Context, tx repository.Repositories, queueID, participantID string) (*TransitionResult, error) {
	now := a.now()
	ticket := &domain.Ticket{
		ID:            uuid.NewString(),
		QueueID:       queueID,
		ParticipantID: participantID,
		Status:        domain.TicketStatusWaiting,
		JoinedAt:      now,
		AccessToken:   uuid.NewString(),
	}
	if err := tx.Tickets().Create(ctx, ticket); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewAlreadyJoined(queueID)
		}
		return nil, storeError(err, "ticket")
	}
	ticketID := ticket.ID
	if err := tx.Events().Append(ctx, &domain.Event{
		ID:        uuid.NewString(),
		QueueID:   queueID,
		TicketID:  &ticketID,
		Type:      domain.EventTypeTicketCreated,
		Actor:     domain.ActorUser,
		ToStatus:  domain.TicketStatusWaiting,
		Reason:    "join",
		CreatedAt: now,
	}); err != nil {
		return nil, storeError(err, "event")
	}
	position, err := PositionOf(ctx, tx.Tickets(), ticket)
	if err != nil {
		return nil, storeError(err, "ticket")
	}
	return &TransitionResult{
		TicketID:      ticket.ID,
		QueueID:       queueID,
		ParticipantID: participantID,
		Actor:         domain.ActorUser,
		Created:       true,
		To:            domain.TicketStatusWaiting,
		Position:      position,
		AccessToken:   ticket.AccessToken,
	}, nil
}
