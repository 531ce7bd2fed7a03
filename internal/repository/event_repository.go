package repository

import (
	"context"

	"github.com/spec-kit/queue-service/internal/domain"
)

type eventRepository struct {
	db DBTX
}

// NewEventRepository builds repository.
func NewEventRepository(db DBTX) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Append(ctx context.Context, event *domain.Event) error {
	const query = `
        INSERT INTO queue_events (id, queue_id, ticket_id, type, actor, from_status, to_status, reason, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := r.db.Exec(ctx, query,
		event.ID,
		event.QueueID,
		event.TicketID,
		event.Type,
		event.Actor,
		event.FromStatus,
		event.ToStatus,
		event.Reason,
		event.CreatedAt,
	)
	return translate(err)
}

func (r *eventRepository) ListByQueue(ctx context.Context, queueID string, limit, offset int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, queue_id, ticket_id, type, actor, from_status, to_status, reason, created_at
        FROM queue_events WHERE queue_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, queueID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Event
	for rows.Next() {
		var event domain.Event
		if err := rows.Scan(
			&event.ID,
			&event.QueueID,
			&event.TicketID,
			&event.Type,
			&event.Actor,
			&event.FromStatus,
			&event.ToStatus,
			&event.Reason,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}
