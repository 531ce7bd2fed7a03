package events

import (
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// EventType enumerates notification identifiers.
type EventType string

const (
	EventTicketUpdated EventType = "ticket_updated"
	EventQueueUpdated  EventType = "queue_updated"
)

// Event is a notification fanned out to observers of a ticket or queue.
type Event struct {
	ID        string       `json:"id"`
	Type      EventType    `json:"type"`
	QueueID   string       `json:"queue_id"`
	TicketID  string       `json:"ticket_id,omitempty"`
	Actor     domain.Actor `json:"actor,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	Payload   any          `json:"payload"`
}

// TicketUpdatedPayload is what a participant's client renders.
type TicketUpdatedPayload struct {
	Status        domain.TicketStatus `json:"status"`
	Position      *int                `json:"position"`
	PriorityBoost int                 `json:"priority_boost"`
	ExpiresAt     *time.Time          `json:"expires_at"`
}

// QueueUpdatedPayload tells queue observers to refresh.
type QueueUpdatedPayload struct {
	Reason   string   `json:"reason"`
	Promoted []string `json:"promoted,omitempty"`
}

// TicketChannel is the per-ticket channel name.
func TicketChannel(ticketID string) string {
	return "ticket:" + ticketID
}

// QueueChannel is the per-queue channel name.
func QueueChannel(queueID string) string {
	return "queue:" + queueID
}
