// Package memstore is an in-process implementation of repository.Store.
// Transactions are serialized and applied copy-on-write, so a failed unit of
// work leaves no trace. It backs local development without Postgres and the
// engine tests.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/repository"
)

type state struct {
	queues  map[string]domain.Queue
	tickets map[string]domain.Ticket
	events  []domain.Event
}

func (s *state) clone() *state {
	out := &state{
		queues:  make(map[string]domain.Queue, len(s.queues)),
		tickets: make(map[string]domain.Ticket, len(s.tickets)),
		events:  s.events[:len(s.events):len(s.events)],
	}
	for id, q := range s.queues {
		out.queues[id] = q
	}
	for id, t := range s.tickets {
		out.tickets[id] = t
	}
	return out
}

// Store implements repository.Store in memory.
type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		state: &state{
			queues:  make(map[string]domain.Queue),
			tickets: make(map[string]domain.Ticket),
		},
		now: time.Now,
	}
}

var _ repository.Store = (*Store)(nil)

// WithTx runs fn against a private copy and publishes it only on success.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.state.clone()
	if err := fn(&view{fixed: work, now: s.now}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Queues() repository.QueueRepository   { return s.autocommit().Queues() }
func (s *Store) Tickets() repository.TicketRepository { return s.autocommit().Tickets() }
func (s *Store) Events() repository.EventRepository   { return s.autocommit().Events() }

func (s *Store) autocommit() *view {
	return &view{store: s, now: s.now}
}

// ServingCount reports the committed number of SERVING tickets in a queue.
func (s *Store) ServingCount(queueID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, t := range s.state.tickets {
		if t.QueueID == queueID && t.Status == domain.TicketStatusServing {
			count++
		}
	}
	return count
}

// view serves reads and writes either on a transaction's private state or,
// when fixed is nil, directly on the store under its lock.
type view struct {
	fixed *state
	store *Store
	now   func() time.Time
}

func (v *view) Queues() repository.QueueRepository   { return queueView{v} }
func (v *view) Tickets() repository.TicketRepository { return ticketView{v} }
func (v *view) Events() repository.EventRepository   { return eventView{v} }

func (v *view) acquire() (*state, func()) {
	if v.fixed != nil {
		return v.fixed, func() {}
	}
	v.store.mu.Lock()
	return v.store.state, v.store.mu.Unlock
}
