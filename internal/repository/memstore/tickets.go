package memstore

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/repository"
)

type ticketView struct{ *view }

func (v ticketView) Create(_ context.Context, ticket *domain.Ticket) error {
	st, release := v.acquire()
	defer release()
	if _, ok := st.queues[ticket.QueueID]; !ok {
		return repository.ErrNotFound
	}
	if _, exists := st.tickets[ticket.ID]; exists {
		return repository.ErrDuplicate
	}
	for _, t := range st.tickets {
		if t.QueueID == ticket.QueueID && t.ParticipantID == ticket.ParticipantID {
			return repository.ErrDuplicate
		}
	}
	now := v.now()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	st.tickets[ticket.ID] = *ticket
	return nil
}

func (v ticketView) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	st, release := v.acquire()
	defer release()
	t, ok := st.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (v ticketView) GetByParticipant(_ context.Context, queueID, participantID string) (*domain.Ticket, error) {
	st, release := v.acquire()
	defer release()
	for _, t := range st.tickets {
		if t.QueueID == queueID && t.ParticipantID == participantID {
			return &t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (v ticketView) CompareAndSwap(_ context.Context, change repository.TicketChange) (bool, error) {
	st, release := v.acquire()
	defer release()
	t, ok := st.tickets[change.ID]
	if !ok || t.Status != change.From {
		return false, nil
	}
	t.Status = change.To
	t.PriorityBoost = change.PriorityBoost
	t.ServedAt = change.ServedAt
	t.ExpiresAt = change.ExpiresAt
	t.UpdatedAt = change.At
	st.tickets[t.ID] = t
	return true, nil
}

func (v ticketView) CountByStatus(_ context.Context, queueID string, statuses ...domain.TicketStatus) (int, error) {
	st, release := v.acquire()
	defer release()
	count := 0
	for _, t := range st.tickets {
		if t.QueueID == queueID && slices.Contains(statuses, t.Status) {
			count++
		}
	}
	return count, nil
}

func (v ticketView) CountAhead(_ context.Context, queueID string, joinedAt time.Time, priorityBoost int) (int, error) {
	st, release := v.acquire()
	defer release()
	probe := &domain.Ticket{JoinedAt: joinedAt, PriorityBoost: priorityBoost}
	count := 0
	for _, t := range st.tickets {
		if t.QueueID == queueID && t.Status == domain.TicketStatusWaiting && domain.RanksAhead(&t, probe) {
			count++
		}
	}
	return count, nil
}

func (v ticketView) NextWaiting(_ context.Context, queueID string) (*domain.Ticket, error) {
	st, release := v.acquire()
	defer release()
	ranked := rank(st, queueID, []domain.TicketStatus{domain.TicketStatusWaiting})
	if len(ranked) == 0 {
		return nil, repository.ErrNotFound
	}
	return &ranked[0], nil
}

func (v ticketView) ListByRank(_ context.Context, queueID string, statuses []domain.TicketStatus, limit, offset int) ([]domain.Ticket, int, error) {
	st, release := v.acquire()
	defer release()
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	ranked := rank(st, queueID, statuses)
	total := len(ranked)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return ranked[offset:end], total, nil
}

func (v ticketView) ListByParticipant(_ context.Context, participantID string) ([]domain.Ticket, error) {
	st, release := v.acquire()
	defer release()
	var result []domain.Ticket
	for _, t := range st.tickets {
		if t.ParticipantID != participantID {
			continue
		}
		t.QueueName = st.queues[t.QueueID].Name
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (v ticketView) ListExpiredLate(_ context.Context, now time.Time, limit int) ([]domain.Ticket, error) {
	st, release := v.acquire()
	defer release()
	var result []domain.Ticket
	for _, t := range st.tickets {
		if t.Status == domain.TicketStatusLate && t.ExpiresAt != nil && !t.ExpiresAt.After(now) {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ExpiresAt.Before(*result[j].ExpiresAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func rank(st *state, queueID string, statuses []domain.TicketStatus) []domain.Ticket {
	var ranked []domain.Ticket
	for _, t := range st.tickets {
		if t.QueueID == queueID && slices.Contains(statuses, t.Status) {
			ranked = append(ranked, t)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if domain.RanksAhead(&ranked[i], &ranked[j]) {
			return true
		}
		if domain.RanksAhead(&ranked[j], &ranked[i]) {
			return false
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked
}
