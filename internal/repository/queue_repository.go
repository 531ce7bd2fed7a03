package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/queue-service/internal/domain"
)

type queueRepository struct {
	db DBTX
}

// NewQueueRepository instantiates repository.
func NewQueueRepository(db DBTX) QueueRepository {
	return &queueRepository{db: db}
}

const queueColumns = `id, owner_id, name, service_slots, max_size, grace_minutes, created_at, updated_at`

func (r *queueRepository) Create(ctx context.Context, queue *domain.Queue) error {
	const query = `
        INSERT INTO queues (id, owner_id, name, service_slots, max_size, grace_minutes)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING created_at, updated_at`
	err := r.db.QueryRow(ctx, query,
		queue.ID,
		queue.OwnerID,
		queue.Name,
		queue.ServiceSlots,
		queue.MaxSize,
		queue.GraceMinutes,
	).Scan(&queue.CreatedAt, &queue.UpdatedAt)
	return translate(err)
}

func (r *queueRepository) Update(ctx context.Context, queue *domain.Queue) error {
	const query = `
        UPDATE queues SET name=$1, service_slots=$2, max_size=$3, grace_minutes=$4, updated_at=NOW()
        WHERE id=$5 AND owner_id=$6
        RETURNING updated_at`
	err := r.db.QueryRow(ctx, query,
		queue.Name,
		queue.ServiceSlots,
		queue.MaxSize,
		queue.GraceMinutes,
		queue.ID,
		queue.OwnerID,
	).Scan(&queue.UpdatedAt)
	return translate(err)
}

func (r *queueRepository) Delete(ctx context.Context, id, ownerID string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM queues WHERE id=$1 AND owner_id=$2`, id, ownerID)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *queueRepository) GetByID(ctx context.Context, id string) (*domain.Queue, error) {
	return r.fetchSingle(ctx, `SELECT `+queueColumns+` FROM queues WHERE id=$1`, id)
}

func (r *queueRepository) GetForUpdate(ctx context.Context, id string) (*domain.Queue, error) {
	return r.fetchSingle(ctx, `SELECT `+queueColumns+` FROM queues WHERE id=$1 FOR UPDATE`, id)
}

func (r *queueRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Queue, error) {
	queue, err := scanQueue(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, translate(err)
	}
	return queue, nil
}

func (r *queueRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.QueueSummary, error) {
	const query = `
        SELECT q.id, q.owner_id, q.name, q.service_slots, q.max_size, q.grace_minutes, q.created_at, q.updated_at,
               (SELECT COUNT(*) FROM tickets t WHERE t.queue_id = q.id AND t.status IN ('WAITING','LATE'))
        FROM queues q WHERE q.owner_id=$1 ORDER BY q.updated_at DESC`
	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.QueueSummary
	for rows.Next() {
		var summary domain.QueueSummary
		if err := rows.Scan(
			&summary.ID,
			&summary.OwnerID,
			&summary.Name,
			&summary.ServiceSlots,
			&summary.MaxSize,
			&summary.GraceMinutes,
			&summary.CreatedAt,
			&summary.UpdatedAt,
			&summary.ActiveCount,
		); err != nil {
			return nil, err
		}
		result = append(result, summary)
	}
	return result, rows.Err()
}

func scanQueue(row pgx.Row) (*domain.Queue, error) {
	var queue domain.Queue
	if err := row.Scan(
		&queue.ID,
		&queue.OwnerID,
		&queue.Name,
		&queue.ServiceSlots,
		&queue.MaxSize,
		&queue.GraceMinutes,
		&queue.CreatedAt,
		&queue.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &queue, nil
}
