package service

import (
	"context"
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/repository"
)

// Position is 1 plus the number of WAITING tickets in the queue that rank
// strictly ahead of a ticket with the given arrival and boost. It uses the
// same ordering as promotion candidate selection.
func Position(ctx context.Context, tickets repository.TicketRepository, queueID string, joinedAt time.Time, priorityBoost int) (int, error) {
	ahead, err := tickets.CountAhead(ctx, queueID, joinedAt, priorityBoost)
	if err != nil {
		return 0, err
	}
	return ahead + 1, nil
}

// PositionOf returns the rank of a WAITING ticket and nil for any other status.
func PositionOf(ctx context.Context, tickets repository.TicketRepository, ticket *domain.Ticket) (*int, error) {
	if ticket.Status != domain.TicketStatusWaiting {
		return nil, nil
	}
	pos, err := Position(ctx, tickets, ticket.QueueID, ticket.JoinedAt, ticket.PriorityBoost)
	if err != nil {
		return nil, err
	}
	return &pos, nil
}
