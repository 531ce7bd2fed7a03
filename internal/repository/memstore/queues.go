package memstore

import (
	"context"
	"sort"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/repository"
)

type queueView struct{ *view }

func (v queueView) Create(_ context.Context, queue *domain.Queue) error {
	st, release := v.acquire()
	defer release()
	if _, exists := st.queues[queue.ID]; exists {
		return repository.ErrDuplicate
	}
	for _, q := range st.queues {
		if q.OwnerID == queue.OwnerID && q.Name == queue.Name {
			return repository.ErrDuplicate
		}
	}
	now := v.now()
	queue.CreatedAt = now
	queue.UpdatedAt = now
	st.queues[queue.ID] = *queue
	return nil
}

func (v queueView) Update(_ context.Context, queue *domain.Queue) error {
	st, release := v.acquire()
	defer release()
	current, ok := st.queues[queue.ID]
	if !ok || current.OwnerID != queue.OwnerID {
		return repository.ErrNotFound
	}
	for _, q := range st.queues {
		if q.ID != queue.ID && q.OwnerID == queue.OwnerID && q.Name == queue.Name {
			return repository.ErrDuplicate
		}
	}
	queue.CreatedAt = current.CreatedAt
	queue.UpdatedAt = v.now()
	st.queues[queue.ID] = *queue
	return nil
}

func (v queueView) Delete(_ context.Context, id, ownerID string) error {
	st, release := v.acquire()
	defer release()
	current, ok := st.queues[id]
	if !ok || current.OwnerID != ownerID {
		return repository.ErrNotFound
	}
	delete(st.queues, id)
	for ticketID, t := range st.tickets {
		if t.QueueID == id {
			delete(st.tickets, ticketID)
		}
	}
	kept := make([]domain.Event, 0, len(st.events))
	for _, e := range st.events {
		if e.QueueID != id {
			kept = append(kept, e)
		}
	}
	st.events = kept
	return nil
}

func (v queueView) GetByID(_ context.Context, id string) (*domain.Queue, error) {
	st, release := v.acquire()
	defer release()
	q, ok := st.queues[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &q, nil
}

// GetForUpdate needs no row lock: transactions are already serialized.
func (v queueView) GetForUpdate(ctx context.Context, id string) (*domain.Queue, error) {
	return v.GetByID(ctx, id)
}

func (v queueView) ListByOwner(_ context.Context, ownerID string) ([]domain.QueueSummary, error) {
	st, release := v.acquire()
	defer release()
	var result []domain.QueueSummary
	for _, q := range st.queues {
		if q.OwnerID != ownerID {
			continue
		}
		summary := domain.QueueSummary{Queue: q}
		for _, t := range st.tickets {
			if t.QueueID == q.ID && (t.Status == domain.TicketStatusWaiting || t.Status == domain.TicketStatusLate) {
				summary.ActiveCount++
			}
		}
		result = append(result, summary)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}
