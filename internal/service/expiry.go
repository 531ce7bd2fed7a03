package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/jobs"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// ExpiryScheduler arms and runs the deferred grace-window check of LATE tickets.
type ExpiryScheduler struct {
	store       repository.Store
	transitions *TransitionEngine
	jobs        jobs.Scheduler
	policy      jobs.RetryPolicy
	now         func() time.Time
	logger      *zap.Logger
	follow      *followUps
}

// Arm schedules the check to fire at expiresAt. Re-arming the same ticket
// replaces the pending check.
func (s *ExpiryScheduler) Arm(ctx context.Context, queueID, ticketID string, expiresAt time.Time) error {
	return s.schedule(ctx, queueID, ticketID, expiresAt.Sub(s.now()))
}

// ArmNow schedules the check with no delay.
func (s *ExpiryScheduler) ArmNow(ctx context.Context, queueID, ticketID string) error {
	return s.schedule(ctx, queueID, ticketID, 0)
}

func (s *ExpiryScheduler) schedule(ctx context.Context, queueID, ticketID string, delay time.Duration) error {
	err := s.jobs.Schedule(ctx, jobs.TypeLateExpiry,
		jobs.LateExpiryPayload{QueueID: queueID, TicketID: ticketID},
		delay, jobs.LateExpiryKey(queueID, ticketID), s.policy)
	if err != nil {
		return apperrors.NewCollaboratorUnavailable("jobs", err)
	}
	return nil
}

// Check drives an expired LATE ticket to MISSED. It returns nil without
// changing anything when the ticket is gone, no longer LATE, not yet
// expired, or was moved by a concurrent transition.
func (s *ExpiryScheduler) Check(ctx context.Context, queueID, ticketID string) (*TransitionResult, error) {
	var result *TransitionResult
	err := s.store.WithTx(ctx, func(tx repository.Repositories) error {
		ticket, err := s.findTicket(ctx, tx, queueID, ticketID)
		if err != nil || ticket == nil {
			return err
		}
		if ticket.Status != domain.TicketStatusLate {
			return nil
		}
		if ticket.ExpiresAt == nil {
			s.logger.Error("late ticket without expiry", zap.String("ticket_id", ticket.ID))
			return apperrors.NewInvariantViolation("late ticket has no expiresAt", map[string]any{"ticket_id": ticket.ID})
		}
		now := s.now()
		if ticket.ExpiresAt.After(now) {
			return nil
		}
		result, err = s.transitions.Apply(ctx, tx, ticket, domain.EventMissed, TransitionContext{
			Actor:  domain.ActorSystem,
			Now:    now,
			Reason: "grace window elapsed",
		})
		return err
	})
	if apperrors.Is(err, apperrors.CodeConcurrentModification) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError(err, "ticket")
	}
	if result != nil {
		s.follow.run(ctx, result)
	}
	return result, nil
}

// findTicket yields nil without error when the ticket is gone or belongs to
// another queue.
func (s *ExpiryScheduler) findTicket(ctx context.Context, tx repository.Repositories, queueID, ticketID string) (*domain.Ticket, error) {
	ticket, err := tx.Tickets().GetByID(ctx, ticketID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError(err, "ticket")
	}
	if ticket.QueueID != queueID {
		return nil, nil
	}
	return ticket, nil
}

// HandleJob runs a deferred check. Failures other than invariant violations
// are returned so the job facility retries them.
func (s *ExpiryScheduler) HandleJob(ctx context.Context, job *jobs.Job) error {
	var payload jobs.LateExpiryPayload
	if err := job.Decode(&payload); err != nil {
		s.logger.Error("malformed late-expiry job", zap.String("job_key", job.Key), zap.Error(err))
		return nil
	}
	result, err := s.Check(ctx, payload.QueueID, payload.TicketID)
	if apperrors.Is(err, apperrors.CodeInvariantViolation) {
		return nil
	}
	if err != nil {
		return err
	}
	if result != nil {
		s.logger.Info("ticket missed",
			zap.String("queue_id", result.QueueID),
			zap.String("ticket_id", result.TicketID))
	}
	return nil
}
