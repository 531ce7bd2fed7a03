package domain

import "time"

// EventType identifies an audit record.
type EventType string

const (
	EventTypeTicketCreated   EventType = "TICKET_CREATED"
	EventTypeTicketServed    EventType = "TICKET_SERVED"
	EventTypeTicketLeft      EventType = "TICKET_LEFT"
	EventTypeTicketCompleted EventType = "TICKET_COMPLETED"
	EventTypeTicketLate      EventType = "TICKET_LATE"
	EventTypeTicketRejoined  EventType = "TICKET_REJOINED"
	EventTypeTicketMissed    EventType = "TICKET_MISSED"
)

// Event is an immutable audit trail entry written in the same transaction
// as the ticket change it describes.
type Event struct {
	ID         string
	QueueID    string
	TicketID   *string
	Type       EventType
	Actor      Actor
	FromStatus *TicketStatus
	ToStatus   TicketStatus
	Reason     string
	CreatedAt  time.Time
}
