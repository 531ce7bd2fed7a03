package repository

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert violates a uniqueness rule.
	ErrDuplicate = errors.New("duplicate record")
)

// QueueRepository encapsulates queue persistence.
type QueueRepository interface {
	Create(ctx context.Context, queue *domain.Queue) error
	Update(ctx context.Context, queue *domain.Queue) error
	Delete(ctx context.Context, id, ownerID string) error
	GetByID(ctx context.Context, id string) (*domain.Queue, error)
	// GetForUpdate reads the queue row and holds an exclusive lock on it
	// until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*domain.Queue, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.QueueSummary, error)
}

// TicketChange is a conditional status write. It only applies when the
// stored status still equals From.
type TicketChange struct {
	ID            string
	From          domain.TicketStatus
	To            domain.TicketStatus
	PriorityBoost int
	ServedAt      *time.Time
	ExpiresAt     *time.Time
	At            time.Time
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByParticipant(ctx context.Context, queueID, participantID string) (*domain.Ticket, error)
	// CompareAndSwap applies change and reports whether exactly one row matched.
	CompareAndSwap(ctx context.Context, change TicketChange) (bool, error)
	CountByStatus(ctx context.Context, queueID string, statuses ...domain.TicketStatus) (int, error)
	// CountAhead counts WAITING tickets in the queue that rank strictly ahead
	// of a ticket with the given arrival time and boost.
	CountAhead(ctx context.Context, queueID string, joinedAt time.Time, priorityBoost int) (int, error)
	// NextWaiting returns the highest ranked WAITING ticket.
	NextWaiting(ctx context.Context, queueID string) (*domain.Ticket, error)
	ListByRank(ctx context.Context, queueID string, statuses []domain.TicketStatus, limit, offset int) ([]domain.Ticket, int, error)
	ListByParticipant(ctx context.Context, participantID string) ([]domain.Ticket, error)
	ListExpiredLate(ctx context.Context, now time.Time, limit int) ([]domain.Ticket, error)
}

// EventRepository stores audit entries. Entries are never updated.
type EventRepository interface {
	Append(ctx context.Context, event *domain.Event) error
	ListByQueue(ctx context.Context, queueID string, limit, offset int) ([]domain.Event, error)
}

// Repositories groups the repositories bound to one connection or transaction.
type Repositories interface {
	Queues() QueueRepository
	Tickets() TicketRepository
	Events() EventRepository
}

// Store is the transactional source of truth.
type Store interface {
	Repositories
	// WithTx runs fn in one atomic unit. Any error rolls everything back.
	WithTx(ctx context.Context, fn func(tx Repositories) error) error
	Ping(ctx context.Context) error
}
