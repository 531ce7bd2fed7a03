package domain

import "time"

// TicketStatus enumerates lifecycle states for queue tickets.
type TicketStatus string

const (
	TicketStatusWaiting   TicketStatus = "WAITING"
	TicketStatusServing   TicketStatus = "SERVING"
	TicketStatusLate      TicketStatus = "LATE"
	TicketStatusCompleted TicketStatus = "COMPLETED"
	TicketStatusCancelled TicketStatus = "CANCELLED"
	TicketStatusMissed    TicketStatus = "MISSED"
)

// AllTicketStatuses lists every status in declaration order.
var AllTicketStatuses = []TicketStatus{
	TicketStatusWaiting,
	TicketStatusServing,
	TicketStatusLate,
	TicketStatusCompleted,
	TicketStatusCancelled,
	TicketStatusMissed,
}

// ActiveTicketStatuses are the statuses that count against a queue's max size.
var ActiveTicketStatuses = []TicketStatus{
	TicketStatusWaiting,
	TicketStatusServing,
	TicketStatusLate,
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusWaiting, TicketStatusServing, TicketStatusLate,
		TicketStatusCompleted, TicketStatusCancelled, TicketStatusMissed:
		return true
	}
	return false
}

// Ticket is one participant's membership in one queue.
type Ticket struct {
	ID            string
	QueueID       string
	ParticipantID string
	Status        TicketStatus
	JoinedAt      time.Time
	PriorityBoost int
	ServedAt      *time.Time
	ExpiresAt     *time.Time
	AccessToken   string
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// QueueName is populated by listings that join the owning queue.
	QueueName string
}

// RanksAhead reports whether a is served before b. Higher boost wins, then
// earlier arrival. Both the position calculator and promotion candidate
// selection order tickets by this rule.
func RanksAhead(a, b *Ticket) bool {
	if a.PriorityBoost != b.PriorityBoost {
		return a.PriorityBoost > b.PriorityBoost
	}
	return a.JoinedAt.Before(b.JoinedAt)
}
