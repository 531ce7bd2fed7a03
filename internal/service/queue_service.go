package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/cache"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

const maxQueueNameLength = 100

// QueueService is the operation surface offered to the request layer.
type QueueService struct {
	store       repository.Store
	transitions *TransitionEngine
	admission   *Admission
	promotion   *PromotionEngine
	cache       cache.Cache
	settings    Settings
	logger      *zap.Logger
	follow      *followUps
}

// QueueInput describes queue creation.
type QueueInput struct {
	Name         string
	ServiceSlots *int
	MaxSize      *int
	GraceMinutes *int
}

// QueueUpdate describes a partial settings change. Nil fields are kept.
type QueueUpdate struct {
	Name         *string
	ServiceSlots *int
	MaxSize      *int
	GraceMinutes *int
	// ClearMaxSize removes the size cap.
	ClearMaxSize bool
}

// QueueMeta is the effective configuration of a queue.
type QueueMeta struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ServiceSlots int    `json:"service_slots"`
	MaxSize      *int   `json:"max_size"`
	GraceMinutes int    `json:"grace_minutes"`
}

// StatusView is a participant's view of their ticket.
type StatusView struct {
	TicketID      string              `json:"ticket_id"`
	Status        domain.TicketStatus `json:"status"`
	Position      *int                `json:"position"`
	PriorityBoost int                 `json:"priority_boost"`
	JoinedAt      time.Time           `json:"joined_at"`
	ServedAt      *time.Time          `json:"served_at"`
	ExpiresAt     *time.Time          `json:"expires_at"`
	Queue         QueueMeta           `json:"queue"`
}

// TicketView is one row of the active listing.
type TicketView struct {
	TicketID      string              `json:"ticket_id"`
	ParticipantID string              `json:"participant_id"`
	Status        domain.TicketStatus `json:"status"`
	Position      *int                `json:"position"`
	PriorityBoost int                 `json:"priority_boost"`
	JoinedAt      time.Time           `json:"joined_at"`
	ExpiresAt     *time.Time          `json:"expires_at"`
}

// TicketPage is one page of the active listing in fairness order.
type TicketPage struct {
	Items      []TicketView `json:"items"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
	Total      int          `json:"total"`
	TotalPages int          `json:"total_pages"`
}

// CreateQueue creates a queue owned by ownerID.
func (s *QueueService) CreateQueue(ctx context.Context, ownerID string, input QueueInput) (*domain.Queue, error) {
	name := strings.TrimSpace(input.Name)
	if err := validateQueueSettings(&name, input.ServiceSlots, input.MaxSize, input.GraceMinutes); err != nil {
		return nil, err
	}
	queue := &domain.Queue{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Name:         name,
		ServiceSlots: input.ServiceSlots,
		MaxSize:      input.MaxSize,
		GraceMinutes: input.GraceMinutes,
	}
	if err := s.store.Queues().Create(ctx, queue); err != nil {
		return nil, storeError(err, "queue")
	}
	s.logger.Info("queue created", zap.String("queue_id", queue.ID), zap.String("owner_id", ownerID))
	return queue, nil
}

// UpdateQueue changes settings of an owned queue and triggers promotion,
// since more slots may now be free.
func (s *QueueService) UpdateQueue(ctx context.Context, ownerID, queueID string, update QueueUpdate) (*domain.Queue, error) {
	var name *string
	if update.Name != nil {
		trimmed := strings.TrimSpace(*update.Name)
		name = &trimmed
	}
	if err := validateQueueSettings(name, update.ServiceSlots, update.MaxSize, update.GraceMinutes); err != nil {
		return nil, err
	}
	var queue *domain.Queue
	err := s.store.WithTx(ctx, func(tx repository.Repositories) error {
		q, err := s.ownedQueue(ctx, tx, ownerID, queueID, true)
		if err != nil {
			return err
		}
		if name != nil {
			q.Name = *name
		}
		if update.ServiceSlots != nil {
			q.ServiceSlots = update.ServiceSlots
		}
		if update.ClearMaxSize {
			q.MaxSize = nil
		} else if update.MaxSize != nil {
			q.MaxSize = update.MaxSize
		}
		if update.GraceMinutes != nil {
			q.GraceMinutes = update.GraceMinutes
		}
		if err := tx.Queues().Update(ctx, q); err != nil {
			return storeError(err, "queue")
		}
		queue = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.follow.queueChanged(ctx, queueID, "settings_changed", true)
	return queue, nil
}

// DeleteQueue removes an owned queue with its tickets and events.
func (s *QueueService) DeleteQueue(ctx context.Context, ownerID, queueID string) error {
	if err := s.store.Queues().Delete(ctx, queueID, ownerID); err != nil {
		return storeError(err, "queue")
	}
	s.follow.queueChanged(ctx, queueID, "deleted", false)
	s.logger.Info("queue deleted", zap.String("queue_id", queueID), zap.String("owner_id", ownerID))
	return nil
}

// GetQueue returns an owned queue with its count of waiting and late tickets.
func (s *QueueService) GetQueue(ctx context.Context, ownerID, queueID string) (*domain.QueueSummary, error) {
	queue, err := s.ownedQueue(ctx, s.store, ownerID, queueID, false)
	if err != nil {
		return nil, err
	}
	active, err := s.store.Tickets().CountByStatus(ctx, queueID, domain.TicketStatusWaiting, domain.TicketStatusLate)
	if err != nil {
		return nil, storeError(err, "ticket")
	}
	return &domain.QueueSummary{Queue: *queue, ActiveCount: active}, nil
}

// ListOwnedQueues lists the owner's queues, most recently updated first.
func (s *QueueService) ListOwnedQueues(ctx context.Context, ownerID string) ([]domain.QueueSummary, error) {
	queues, err := s.store.Queues().ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, storeError(err, "queue")
	}
	return queues, nil
}

// Join admits the participant.
func (s *QueueService) Join(ctx context.Context, queueID, participantID string) (*TransitionResult, error) {
	return s.admission.Join(ctx, queueID, participantID)
}

// Leave cancels the participant's own ticket.
func (s *QueueService) Leave(ctx context.Context, queueID, participantID string) (*TransitionResult, error) {
	return s.transitions.Transition(ctx, TicketRef{QueueID: queueID, ParticipantID: participantID}, domain.EventLeave,
		TransitionContext{Actor: domain.ActorUser, Reason: "left"})
}

// Rejoin returns the participant's LATE, CANCELLED or MISSED ticket to WAITING.
func (s *QueueService) Rejoin(ctx context.Context, queueID, participantID string) (*TransitionResult, error) {
	return s.transitions.Transition(ctx, TicketRef{QueueID: queueID, ParticipantID: participantID}, domain.EventRejoin,
		TransitionContext{Actor: domain.ActorUser, Reason: "rejoined"})
}

// MarkLate moves a SERVING ticket into its grace window.
func (s *QueueService) MarkLate(ctx context.Context, ownerID, queueID, participantID string) (*TransitionResult, error) {
	return s.adminTransition(ctx, ownerID, queueID, participantID, domain.EventMarkLate, "marked late")
}

// MarkComplete finishes a SERVING ticket.
func (s *QueueService) MarkComplete(ctx context.Context, ownerID, queueID, participantID string) (*TransitionResult, error) {
	return s.adminTransition(ctx, ownerID, queueID, participantID, domain.EventComplete, "completed")
}

// Remove cancels a ticket on the participant's behalf.
func (s *QueueService) Remove(ctx context.Context, ownerID, queueID, participantID string) (*TransitionResult, error) {
	return s.adminTransition(ctx, ownerID, queueID, participantID, domain.EventLeave, "removed")
}

// MarkArrived rejoins a LATE participant who showed up.
func (s *QueueService) MarkArrived(ctx context.Context, ownerID, queueID, participantID string) (*TransitionResult, error) {
	return s.adminTransition(ctx, ownerID, queueID, participantID, domain.EventRejoin, "arrived")
}

func (s *QueueService) adminTransition(ctx context.Context, ownerID, queueID, participantID string, event domain.TicketEvent, reason string) (*TransitionResult, error) {
	return s.transitions.Transition(ctx, TicketRef{QueueID: queueID, ParticipantID: participantID}, event,
		TransitionContext{Actor: domain.ActorAdmin, RequireOwner: ownerID, Reason: reason})
}

// GetStatus returns the participant's ticket in a queue. Reads are served
// from the cache when possible.
func (s *QueueService) GetStatus(ctx context.Context, queueID, participantID string) (*StatusView, error) {
	key := cache.StatusKey(queueID, participantID)
	var cached StatusView
	if hit, err := s.cache.Get(ctx, key, &cached); err != nil {
		s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	} else if hit {
		return &cached, nil
	}

	queue, err := s.store.Queues().GetByID(ctx, queueID)
	if err != nil {
		return nil, storeError(err, "queue")
	}
	ticket, err := s.store.Tickets().GetByParticipant(ctx, queueID, participantID)
	if err != nil {
		return nil, storeError(err, "ticket")
	}
	position, err := PositionOf(ctx, s.store.Tickets(), ticket)
	if err != nil {
		return nil, storeError(err, "ticket")
	}
	view := &StatusView{
		TicketID:      ticket.ID,
		Status:        ticket.Status,
		Position:      position,
		PriorityBoost: ticket.PriorityBoost,
		JoinedAt:      ticket.JoinedAt,
		ServedAt:      ticket.ServedAt,
		ExpiresAt:     ticket.ExpiresAt,
		Queue:         s.meta(queue),
	}
	s.cacheSet(ctx, key, view)
	return view, nil
}

// ListActive returns a page of WAITING, SERVING and LATE tickets of an owned
// queue in fairness order. Pages start at 1.
func (s *QueueService) ListActive(ctx context.Context, ownerID, queueID string, page int) (*TicketPage, error) {
	if page < 1 {
		page = 1
	}
	if _, err := s.ownedQueue(ctx, s.store, ownerID, queueID, false); err != nil {
		return nil, err
	}
	key := cache.QueueListKey(queueID, page)
	var cached TicketPage
	if hit, err := s.cache.Get(ctx, key, &cached); err != nil {
		s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	} else if hit {
		return &cached, nil
	}

	size := s.settings.PageSize
	tickets, total, err := s.store.Tickets().ListByRank(ctx, queueID, domain.ActiveTicketStatuses, size, (page-1)*size)
	if err != nil {
		return nil, storeError(err, "ticket")
	}
	result := &TicketPage{
		Items:      make([]TicketView, 0, len(tickets)),
		Page:       page,
		PageSize:   size,
		Total:      total,
		TotalPages: (total + size - 1) / size,
	}
	for i := range tickets {
		t := &tickets[i]
		position, err := PositionOf(ctx, s.store.Tickets(), t)
		if err != nil {
			return nil, storeError(err, "ticket")
		}
		result.Items = append(result.Items, TicketView{
			TicketID:      t.ID,
			ParticipantID: t.ParticipantID,
			Status:        t.Status,
			Position:      position,
			PriorityBoost: t.PriorityBoost,
			JoinedAt:      t.JoinedAt,
			ExpiresAt:     t.ExpiresAt,
		})
	}
	s.cacheSet(ctx, key, result)
	return result, nil
}

// ListMyTickets returns every ticket of a participant, newest activity first.
func (s *QueueService) ListMyTickets(ctx context.Context, participantID string) ([]domain.Ticket, error) {
	tickets, err := s.store.Tickets().ListByParticipant(ctx, participantID)
	if err != nil {
		return nil, storeError(err, "ticket")
	}
	return tickets, nil
}

// ListEvents returns a page of an owned queue's audit trail, newest first.
func (s *QueueService) ListEvents(ctx context.Context, ownerID, queueID string, page int) ([]domain.Event, error) {
	if page < 1 {
		page = 1
	}
	if _, err := s.ownedQueue(ctx, s.store, ownerID, queueID, false); err != nil {
		return nil, err
	}
	size := s.settings.PageSize
	list, err := s.store.Events().ListByQueue(ctx, queueID, size, (page-1)*size)
	if err != nil {
		return nil, storeError(err, "event")
	}
	return list, nil
}

// ownedQueue hides queues of other owners behind NotFound.
func (s *QueueService) ownedQueue(ctx context.Context, repos repository.Repositories, ownerID, queueID string, lock bool) (*domain.Queue, error) {
	var (
		queue *domain.Queue
		err   error
	)
	if lock {
		queue, err = repos.Queues().GetForUpdate(ctx, queueID)
	} else {
		queue, err = repos.Queues().GetByID(ctx, queueID)
	}
	if err != nil {
		return nil, storeError(err, "queue")
	}
	if queue.OwnerID != ownerID {
		return nil, apperrors.NewNotFound("queue", nil)
	}
	return queue, nil
}

func (s *QueueService) meta(queue *domain.Queue) QueueMeta {
	effective := queue.Effective(s.settings.DefaultServiceSlots, s.settings.DefaultGraceMinutes)
	return QueueMeta{
		ID:           queue.ID,
		Name:         queue.Name,
		ServiceSlots: effective.ServiceSlots,
		MaxSize:      effective.MaxSize,
		GraceMinutes: int(effective.GraceTime / time.Minute),
	}
}

func (s *QueueService) cacheSet(ctx context.Context, key string, value any) {
	if err := s.cache.Set(ctx, key, value, s.settings.CacheTTL); err != nil {
		s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func validateQueueSettings(name *string, serviceSlots, maxSize, graceMinutes *int) error {
	details := map[string]any{}
	if name != nil {
		if *name == "" {
			details["name"] = "required"
		} else if len(*name) > maxQueueNameLength {
			details["name"] = "too long"
		}
	}
	positive := func(field string, v *int) {
		if v != nil && *v <= 0 {
			details[field] = "must be greater than zero"
		}
	}
	positive("service_slots", serviceSlots)
	positive("max_size", maxSize)
	positive("grace_minutes", graceMinutes)
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid queue settings", details)
	}
	return nil
}
