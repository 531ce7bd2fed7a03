package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/queue-service/internal/domain"
)

type ticketRepository struct {
	db DBTX
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db DBTX) TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `t.id, t.queue_id, t.participant_id, t.status, t.joined_at, t.priority_boost,
               t.served_at, t.expires_at, t.access_token, t.created_at, t.updated_at`

// rankOrder is the fairness order; see domain.RanksAhead.
const rankOrder = `ORDER BY t.priority_boost DESC, t.joined_at ASC, t.id ASC`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, queue_id, participant_id, status, joined_at, priority_boost, access_token)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING joined_at, created_at, updated_at`
	err := r.db.QueryRow(ctx, query,
		ticket.ID,
		ticket.QueueID,
		ticket.ParticipantID,
		ticket.Status,
		ticket.JoinedAt,
		ticket.PriorityBoost,
		ticket.AccessToken,
	).Scan(&ticket.JoinedAt, &ticket.CreatedAt, &ticket.UpdatedAt)
	return translate(err)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets t WHERE t.id=$1`
	ticket, err := scanTicket(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err)
	}
	return ticket, nil
}

func (r *ticketRepository) GetByParticipant(ctx context.Context, queueID, participantID string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets t WHERE t.queue_id=$1 AND t.participant_id=$2`
	ticket, err := scanTicket(r.db.QueryRow(ctx, query, queueID, participantID))
	if err != nil {
		return nil, translate(err)
	}
	return ticket, nil
}

func (r *ticketRepository) CompareAndSwap(ctx context.Context, change TicketChange) (bool, error) {
	const query = `
        UPDATE tickets SET status=$1, priority_boost=$2, served_at=$3, expires_at=$4, updated_at=$5
        WHERE id=$6 AND status=$7`
	cmd, err := r.db.Exec(ctx, query,
		change.To,
		change.PriorityBoost,
		change.ServedAt,
		change.ExpiresAt,
		change.At,
		change.ID,
		change.From,
	)
	if err != nil {
		return false, translate(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *ticketRepository) CountByStatus(ctx context.Context, queueID string, statuses ...domain.TicketStatus) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM tickets WHERE queue_id=$1 AND status = ANY($2)`,
		queueID, statusStrings(statuses),
	).Scan(&count)
	return count, translate(err)
}

func (r *ticketRepository) CountAhead(ctx context.Context, queueID string, joinedAt time.Time, priorityBoost int) (int, error) {
	const query = `
        SELECT COUNT(*) FROM tickets
        WHERE queue_id=$1 AND status='WAITING'
          AND (priority_boost > $2 OR (priority_boost = $2 AND joined_at < $3))`
	var count int
	err := r.db.QueryRow(ctx, query, queueID, priorityBoost, joinedAt).Scan(&count)
	return count, translate(err)
}

func (r *ticketRepository) NextWaiting(ctx context.Context, queueID string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets t
        WHERE t.queue_id=$1 AND t.status='WAITING' ` + rankOrder + ` LIMIT 1`
	ticket, err := scanTicket(r.db.QueryRow(ctx, query, queueID))
	if err != nil {
		return nil, translate(err)
	}
	return ticket, nil
}

func (r *ticketRepository) ListByRank(ctx context.Context, queueID string, statuses []domain.TicketStatus, limit, offset int) ([]domain.Ticket, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM tickets WHERE queue_id=$1 AND status = ANY($2)`,
		queueID, statusStrings(statuses),
	).Scan(&total); err != nil {
		return nil, 0, translate(err)
	}

	query := `SELECT ` + ticketColumns + ` FROM tickets t
        WHERE t.queue_id=$1 AND t.status = ANY($2) ` + rankOrder + ` LIMIT $3 OFFSET $4`
	rows, err := r.db.Query(ctx, query, queueID, statusStrings(statuses), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	tickets, err := scanTickets(rows, false)
	return tickets, total, err
}

func (r *ticketRepository) ListByParticipant(ctx context.Context, participantID string) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `, q.name FROM tickets t
        JOIN queues q ON q.id = t.queue_id
        WHERE t.participant_id=$1 ORDER BY t.updated_at DESC`
	rows, err := r.db.Query(ctx, query, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows, true)
}

func (r *ticketRepository) ListExpiredLate(ctx context.Context, now time.Time, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets t
        WHERE t.status='LATE' AND t.expires_at <= $1 ORDER BY t.expires_at ASC LIMIT $2`
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows, false)
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(ticketFields(&ticket)...); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows, withQueueName bool) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		dest := ticketFields(&ticket)
		if withQueueName {
			dest = append(dest, &ticket.QueueName)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func ticketFields(ticket *domain.Ticket) []any {
	return []any{
		&ticket.ID,
		&ticket.QueueID,
		&ticket.ParticipantID,
		&ticket.Status,
		&ticket.JoinedAt,
		&ticket.PriorityBoost,
		&ticket.ServedAt,
		&ticket.ExpiresAt,
		&ticket.AccessToken,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	}
}

func statusStrings(statuses []domain.TicketStatus) []string {
	out := make([]string, len(statuses))
	for i, status := range statuses {
		out[i] = string(status)
	}
	return out
}
