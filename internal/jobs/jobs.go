// Package jobs is the durable delayed-job facility. Jobs are at least once:
// handlers re-check state before acting.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Job types scheduled by the queue core.
const (
	TypeLateExpiry = "late-expiry"
	TypePromote    = "promote-if-free-slot"
)

// errLeaseExpired is recorded when a claimed job outlived its visibility
// timeout without being acked or retried.
var errLeaseExpired = errors.New("lease expired before the job finished")

// RetryPolicy bounds redelivery after a handler failure. The delay before
// attempt n+1 is Backoff * 2^(n-1).
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy is five attempts starting at five seconds.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 5, Backoff: 5 * time.Second}

// NextDelay returns the wait after the given failed attempt.
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if p.Backoff <= 0 {
		return 0
	}
	return p.Backoff << (attempt - 1)
}

// Scheduler arms deferred work. Scheduling an existing dedup key replaces
// the pending job instead of adding a second one.
type Scheduler interface {
	Schedule(ctx context.Context, jobType string, payload any, delay time.Duration, dedupKey string, policy RetryPolicy) error
}

// Job is one claimed unit of work.
type Job struct {
	Key      string          `json:"-"`
	Type     string          `json:"-"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
	Policy   RetryPolicy     `json:"policy"`
	LastErr  string          `json:"last_error,omitempty"`

	token string
}

// Decode unmarshals the payload.
func (j *Job) Decode(dest any) error {
	return json.Unmarshal(j.Payload, dest)
}

// LateExpiryPayload identifies the ticket whose grace window is checked.
type LateExpiryPayload struct {
	QueueID  string `json:"queue_id"`
	TicketID string `json:"ticket_id"`
}

// PromotePayload identifies the queue to promote in.
type PromotePayload struct {
	QueueID string `json:"queue_id"`
}

// LateExpiryKey is the dedup key for a ticket's grace check.
func LateExpiryKey(queueID, ticketID string) string {
	return "late-expiry-" + queueID + "-" + ticketID
}

// PromoteKey is the dedup key for a queue's deferred promotion.
func PromoteKey(queueID string) string {
	return "promote-if-free-slot-" + queueID
}
