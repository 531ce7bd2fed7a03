package dto

import (
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// CreateQueueRequest payload.
type CreateQueueRequest struct {
	Name         string `json:"name"`
	ServiceSlots *int   `json:"service_slots"`
	MaxSize      *int   `json:"max_size"`
	GraceMinutes *int   `json:"grace_minutes"`
}

// UpdateQueueRequest payload. Omitted fields are left unchanged.
type UpdateQueueRequest struct {
	Name         *string `json:"name"`
	ServiceSlots *int    `json:"service_slots"`
	MaxSize      *int    `json:"max_size"`
	GraceMinutes *int    `json:"grace_minutes"`
	ClearMaxSize bool    `json:"clear_max_size"`
}

// PageQuery captures the page query parameter.
type PageQuery struct {
	Page int `query:"page"`
}

// QueueResponse represents a queue.
type QueueResponse struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Name         string    `json:"name"`
	ServiceSlots *int      `json:"service_slots"`
	MaxSize      *int      `json:"max_size"`
	GraceMinutes *int      `json:"grace_minutes"`
	ActiveCount  *int      `json:"active_count,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TicketResponse is a participant's own ticket.
type TicketResponse struct {
	ID            string              `json:"id"`
	QueueID       string              `json:"queue_id"`
	QueueName     string              `json:"queue_name,omitempty"`
	Status        domain.TicketStatus `json:"status"`
	PriorityBoost int                 `json:"priority_boost"`
	JoinedAt      time.Time           `json:"joined_at"`
	ServedAt      *time.Time          `json:"served_at"`
	ExpiresAt     *time.Time          `json:"expires_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// EventResponse is one audit entry.
type EventResponse struct {
	ID         string               `json:"id"`
	TicketID   *string              `json:"ticket_id"`
	Type       domain.EventType     `json:"type"`
	Actor      domain.Actor         `json:"actor"`
	FromStatus *domain.TicketStatus `json:"from_status"`
	ToStatus   domain.TicketStatus  `json:"to_status"`
	Reason     string               `json:"reason,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}

// NewQueueResponse maps a queue.
func NewQueueResponse(q *domain.Queue) QueueResponse {
	return QueueResponse{
		ID:           q.ID,
		OwnerID:      q.OwnerID,
		Name:         q.Name,
		ServiceSlots: q.ServiceSlots,
		MaxSize:      q.MaxSize,
		GraceMinutes: q.GraceMinutes,
		CreatedAt:    q.CreatedAt,
		UpdatedAt:    q.UpdatedAt,
	}
}

// NewQueueSummaryResponse maps a queue with its active count.
func NewQueueSummaryResponse(s *domain.QueueSummary) QueueResponse {
	resp := NewQueueResponse(&s.Queue)
	count := s.ActiveCount
	resp.ActiveCount = &count
	return resp
}

// NewTicketResponse maps a ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:            t.ID,
		QueueID:       t.QueueID,
		QueueName:     t.QueueName,
		Status:        t.Status,
		PriorityBoost: t.PriorityBoost,
		JoinedAt:      t.JoinedAt,
		ServedAt:      t.ServedAt,
		ExpiresAt:     t.ExpiresAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

// NewEventResponse maps an audit entry.
func NewEventResponse(e *domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TicketID:   e.TicketID,
		Type:       e.Type,
		Actor:      e.Actor,
		FromStatus: e.FromStatus,
		ToStatus:   e.ToStatus,
		Reason:     e.Reason,
		CreatedAt:  e.CreatedAt,
	}
}
