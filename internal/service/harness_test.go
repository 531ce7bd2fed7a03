package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/jobs"
	"github.com/spec-kit/queue-service/internal/repository"
	"github.com/spec-kit/queue-service/internal/repository/memstore"
)

const owner = "owner-1"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// servingWatch records the committed SERVING count of one queue after
// every transaction.
type servingWatch struct {
	*memstore.Store

	mu      sync.Mutex
	queueID string
	counts  []int
}

func (s *servingWatch) WithTx(ctx context.Context, fn func(tx repository.Repositories) error) error {
	err := s.Store.WithTx(ctx, fn)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queueID != "" {
		s.counts = append(s.counts, s.Store.ServingCount(s.queueID))
	}
	return err
}

func (s *servingWatch) watch(queueID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queueID = queueID
	s.counts = []int{s.Store.ServingCount(queueID)}
}

func (s *servingWatch) maxServing() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	peak := 0
	for _, n := range s.counts {
		peak = max(peak, n)
	}
	return peak
}

// maxServingOnceWithin is the peak count observed after the count first
// dropped to limit or below.
func (s *servingWatch) maxServingOnceWithin(limit int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	peak, settled := 0, false
	for _, n := range s.counts {
		if n <= limit {
			settled = true
		}
		if settled {
			peak = max(peak, n)
		}
	}
	return peak
}

type harness struct {
	t     *testing.T
	ctx   context.Context
	clock *fakeClock
	store *servingWatch
	jobs  *jobs.MemoryQueue
	notes *events.Recorder
	core  *Core
	wg    sync.WaitGroup
}

type harnessOption func(*harness, *Dependencies)

// async runs detached promotions on goroutines tracked by the harness.
func async() harnessOption {
	return func(h *harness, deps *Dependencies) {
		deps.Detach = func(fn func()) {
			h.wg.Add(1)
			go func() {
				defer h.wg.Done()
				fn()
			}()
		}
	}
}

func withScheduler(s jobs.Scheduler) harnessOption {
	return func(_ *harness, deps *Dependencies) {
		deps.Jobs = s
	}
}

// withPostgresPrecision starts the clock off a microsecond boundary and
// stores joinedAt at microsecond precision without reporting it back, the
// way a timestamptz column does.
func withPostgresPrecision() harnessOption {
	return func(h *harness, deps *Dependencies) {
		h.clock.now = h.clock.now.Add(123456789 * time.Nanosecond)
		deps.Store = microsecondStore{Store: deps.Store}
	}
}

type microsecondStore struct{ repository.Store }

func (s microsecondStore) WithTx(ctx context.Context, fn func(tx repository.Repositories) error) error {
	return s.Store.WithTx(ctx, func(tx repository.Repositories) error {
		return fn(microsecondRepos{tx})
	})
}

func (s microsecondStore) Tickets() repository.TicketRepository {
	return microsecondTickets{s.Store.Tickets()}
}

type microsecondRepos struct{ repository.Repositories }

func (r microsecondRepos) Tickets() repository.TicketRepository {
	return microsecondTickets{r.Repositories.Tickets()}
}

type microsecondTickets struct{ repository.TicketRepository }

func (t microsecondTickets) Create(ctx context.Context, ticket *domain.Ticket) error {
	stored := *ticket
	stored.JoinedAt = stored.JoinedAt.Truncate(time.Microsecond)
	err := t.TicketRepository.Create(ctx, &stored)
	ticket.CreatedAt = stored.CreatedAt
	ticket.UpdatedAt = stored.UpdatedAt
	return err
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		ctx:   context.Background(),
		clock: &fakeClock{now: time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)},
		store: &servingWatch{Store: memstore.New()},
		notes: &events.Recorder{},
	}
	h.jobs = jobs.NewMemoryQueue(h.clock.Now)
	deps := Dependencies{
		Store:    h.store,
		Jobs:     h.jobs,
		Notifier: h.notes,
		Now:      h.clock.Now,
		Detach:   func(fn func()) { fn() },
	}
	for _, opt := range opts {
		opt(h, &deps)
	}
	h.core = New(deps)
	return h
}

func intPtr(v int) *int { return &v }

func (h *harness) queue(slots int, maxSize *int, graceMinutes int) string {
	h.t.Helper()
	q, err := h.core.Queues.CreateQueue(h.ctx, owner, QueueInput{
		Name:         "desk-" + uuid.NewString(),
		ServiceSlots: intPtr(slots),
		MaxSize:      maxSize,
		GraceMinutes: intPtr(graceMinutes),
	})
	require.NoError(h.t, err)
	return q.ID
}

// join admits a participant one second after the previous arrival so
// arrival order is unambiguous.
func (h *harness) join(queueID, participantID string) *TransitionResult {
	h.t.Helper()
	h.clock.Advance(time.Second)
	result, err := h.core.Queues.Join(h.ctx, queueID, participantID)
	require.NoError(h.t, err)
	return result
}

func (h *harness) status(queueID, participantID string) *StatusView {
	h.t.Helper()
	view, err := h.core.Queues.GetStatus(h.ctx, queueID, participantID)
	require.NoError(h.t, err)
	return view
}

func (h *harness) ticket(queueID, participantID string) *domain.Ticket {
	h.t.Helper()
	ticket, err := h.store.Tickets().GetByParticipant(h.ctx, queueID, participantID)
	require.NoError(h.t, err)
	return ticket
}
