package domain

import "time"

const (
	DefaultServiceSlots = 1
	DefaultGraceMinutes = 5
)

// Queue is a capacity-limited service resource owned by an admin.
type Queue struct {
	ID           string
	OwnerID      string
	Name         string
	ServiceSlots *int
	MaxSize      *int
	GraceMinutes *int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// QueueSettings are the effective values after defaults are applied.
type QueueSettings struct {
	ServiceSlots int
	MaxSize      *int
	GraceTime    time.Duration
}

// Effective resolves unset settings against the given defaults.
func (q *Queue) Effective(defaultSlots, defaultGraceMinutes int) QueueSettings {
	if defaultSlots <= 0 {
		defaultSlots = DefaultServiceSlots
	}
	if defaultGraceMinutes <= 0 {
		defaultGraceMinutes = DefaultGraceMinutes
	}
	settings := QueueSettings{
		ServiceSlots: defaultSlots,
		MaxSize:      q.MaxSize,
		GraceTime:    time.Duration(defaultGraceMinutes) * time.Minute,
	}
	if q.ServiceSlots != nil && *q.ServiceSlots > 0 {
		settings.ServiceSlots = *q.ServiceSlots
	}
	if q.GraceMinutes != nil && *q.GraceMinutes > 0 {
		settings.GraceTime = time.Duration(*q.GraceMinutes) * time.Minute
	}
	return settings
}

// QueueSummary pairs a queue with its count of waiting and late tickets.
type QueueSummary struct {
	Queue
	ActiveCount int
}
