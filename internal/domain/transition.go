package domain

// TicketEvent is an intent applied to a ticket by the transition engine.
type TicketEvent string

const (
	EventServe    TicketEvent = "SERVE"
	EventLeave    TicketEvent = "LEAVE"
	EventComplete TicketEvent = "COMPLETE"
	EventMarkLate TicketEvent = "MARK_LATE"
	EventRejoin   TicketEvent = "REJOIN"
	EventMissed   TicketEvent = "MISSED"
)

// AllTicketEvents lists every event in declaration order.
var AllTicketEvents = []TicketEvent{
	EventServe,
	EventLeave,
	EventComplete,
	EventMarkLate,
	EventRejoin,
	EventMissed,
}

// Actor identifies who asked for a transition.
type Actor string

const (
	ActorUser   Actor = "user"
	ActorAdmin  Actor = "admin"
	ActorSystem Actor = "system"
)

// NextStatus looks up the transition table. The second result is false when
// the event is not accepted from the given status.
func NextStatus(from TicketStatus, event TicketEvent) (TicketStatus, bool) {
	switch from {
	case TicketStatusWaiting:
		switch event {
		case EventServe:
			return TicketStatusServing, true
		case EventLeave:
			return TicketStatusCancelled, true
		}
	case TicketStatusServing:
		switch event {
		case EventComplete:
			return TicketStatusCompleted, true
		case EventMarkLate:
			return TicketStatusLate, true
		case EventLeave:
			return TicketStatusCancelled, true
		}
	case TicketStatusLate:
		switch event {
		case EventRejoin:
			return TicketStatusWaiting, true
		case EventMissed:
			return TicketStatusMissed, true
		case EventLeave:
			return TicketStatusCancelled, true
		}
	case TicketStatusCancelled, TicketStatusMissed:
		if event == EventRejoin {
			return TicketStatusWaiting, true
		}
	case TicketStatusCompleted:
	}
	return "", false
}

// Permits reports whether the actor may request the event at all. It runs
// before the table lookup so every permission rule lives here. Only slot
// assignment is restricted; ownership of admin operations is checked by the
// caller.
func (a Actor) Permits(event TicketEvent) bool {
	switch a {
	case ActorUser, ActorAdmin, ActorSystem:
	default:
		return false
	}
	if event == EventServe {
		return a == ActorSystem
	}
	return true
}

// AuditType maps an accepted event to the audit record type it produces.
func (e TicketEvent) AuditType() (EventType, bool) {
	switch e {
	case EventServe:
		return EventTypeTicketServed, true
	case EventLeave:
		return EventTypeTicketLeft, true
	case EventComplete:
		return EventTypeTicketCompleted, true
	case EventMarkLate:
		return EventTypeTicketLate, true
	case EventRejoin:
		return EventTypeTicketRejoined, true
	case EventMissed:
		return EventTypeTicketMissed, true
	}
	return "", false
}

// TriggersPromotion reports whether the event can free or fill a service slot.
func (e TicketEvent) TriggersPromotion() bool {
	switch e {
	case EventLeave, EventComplete, EventMarkLate, EventMissed, EventRejoin:
		return true
	case EventServe:
		return false
	}
	return false
}
