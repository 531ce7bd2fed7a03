package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/jobs"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

func TestLateGraceScenario(t *testing.T) {
	h := newHarness(t)
	q := h.queue(1, nil, 1)
	h.join(q, "alice")
	h.join(q, "bob")
	h.join(q, "carol")

	t0 := h.clock.Now()
	late, err := h.core.Queues.MarkLate(h.ctx, owner, q, "alice")
	require.NoError(t, err)
	require.NotNil(t, late.ExpiresAt)
	assert.Equal(t, t0.Add(time.Minute), *late.ExpiresAt)

	due, ok := h.jobs.Pending(jobs.TypeLateExpiry, jobs.LateExpiryKey(q, late.TicketID))
	require.True(t, ok)
	assert.Equal(t, *late.ExpiresAt, due)

	// the freed slot goes to the next in line
	assert.Equal(t, domain.TicketStatusServing, h.ticket(q, "bob").Status)

	h.clock.Advance(30 * time.Second)
	back, err := h.core.Queues.Rejoin(h.ctx, q, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusWaiting, back.To)
	assert.Equal(t, 1, back.PriorityBoost)

	alice := h.status(q, "alice")
	carol := h.status(q, "carol")
	require.NotNil(t, alice.Position)
	require.NotNil(t, carol.Position)
	assert.Equal(t, 1, *alice.Position)
	assert.Equal(t, 2, *carol.Position)

	// a stale check after the rejoin changes nothing
	h.clock.Advance(time.Minute)
	result, err := h.core.Expiry.Check(h.ctx, q, late.TicketID)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, domain.TicketStatusWaiting, h.ticket(q, "alice").Status)
}

func TestRejoinAfterGraceIsMissed(t *testing.T) {
	h := newHarness(t)
	q := h.queue(1, nil, 1)
	h.join(q, "alice")

	_, err := h.core.Queues.MarkLate(h.ctx, owner, q, "alice")
	require.NoError(t, err)

	h.clock.Advance(61 * time.Second)
	result, err := h.core.Queues.Rejoin(h.ctx, q, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusMissed, result.To)
	assert.Equal(t, 0, result.PriorityBoost)

	trail, err := h.core.Queues.ListEvents(h.ctx, owner, q, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.EventTypeTicketMissed, trail[0].Type)
}

func TestRejoinAtExactExpiryKeepsBoost(t *testing.T) {
	h := newHarness(t)
	q := h.queue(1, nil, 1)
	h.join(q, "alice")

	_, err := h.core.Queues.MarkLate(h.ctx, owner, q, "alice")
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	result, err := h.core.Queues.Rejoin(h.ctx, q, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusWaiting, result.To)
	assert.Equal(t, 1, result.PriorityBoost)
}

func TestExpiryCheckIsIdempotent(t *testing.T) {
	h := newHarness(t)
	q := h.queue(1, nil, 1)
	h.join(q, "alice")
	late, err := h.core.Queues.MarkLate(h.ctx, owner, q, "alice")
	require.NoError(t, err)

	early, err := h.core.Expiry.Check(h.ctx, q, late.TicketID)
	require.NoError(t, err)
	assert.Nil(t, early)
	assert.Equal(t, domain.TicketStatusLate, h.ticket(q, "alice").Status)

	h.clock.Advance(time.Minute)
	first, err := h.core.Expiry.Check(h.ctx, q, late.TicketID)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, domain.TicketStatusMissed, first.To)
	assert.Equal(t, domain.ActorSystem, first.Actor)

	second, err := h.core.Expiry.Check(h.ctx, q, late.TicketID)
	require.NoError(t, err)
	assert.Nil(t, second)

	trail, err := h.core.Queues.ListEvents(h.ctx, owner, q, 1)
	require.NoError(t, err)
	missed := 0
	for _, e := range trail {
		if e.Type == domain.EventTypeTicketMissed {
			missed++
		}
	}
	assert.Equal(t, 1, missed)
}

func TestExpiryCheckOfUnknownTicket(t *testing.T) {
	h := newHarness(t)
	q := h.queue(1, nil, 1)

	result, err := h.core.Expiry.Check(h.ctx, q, "gone")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestExpiryJobThroughQueue(t *testing.T) {
	h := newHarness(t)
	q := h.queue(1, nil, 1)
	h.join(q, "alice")
	_, err := h.core.Queues.MarkLate(h.ctx, owner, q, "alice")
	require.NoError(t, err)

	job, err := h.jobs.Claim(h.ctx, jobs.TypeLateExpiry)
	require.NoError(t, err)
	assert.Nil(t, job, "not due yet")

	h.clock.Advance(time.Minute)
	job, err = h.jobs.Claim(h.ctx, jobs.TypeLateExpiry)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NoError(t, h.core.Expiry.HandleJob(h.ctx, job))
	require.NoError(t, h.jobs.Ack(h.ctx, job))

	assert.Equal(t, domain.TicketStatusMissed, h.ticket(q, "alice").Status)
	assert.Zero(t, h.jobs.Len(jobs.TypeLateExpiry))
}

func TestReconcilerRecoversDroppedCheck(t *testing.T) {
	h := newHarness(t)
	q := h.queue(1, nil, 1)
	h.join(q, "alice")
	late, err := h.core.Queues.MarkLate(h.ctx, owner, q, "alice")
	require.NoError(t, err)

	key := jobs.LateExpiryKey(q, late.TicketID)
	h.jobs.Drop(jobs.TypeLateExpiry, key)

	h.clock.Advance(30 * time.Second)
	armed, err := h.core.Reconciler.Sweep(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, armed)

	h.clock.Advance(60 * time.Second)
	armed, err = h.core.Reconciler.Sweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, armed)
	assert.Equal(t, []string{key}, h.jobs.Due(jobs.TypeLateExpiry))

	job, err := h.jobs.Claim(h.ctx, jobs.TypeLateExpiry)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NoError(t, h.core.Expiry.HandleJob(h.ctx, job))
	assert.Equal(t, domain.TicketStatusMissed, h.ticket(q, "alice").Status)

	// overlapping sweeps are harmless
	armed, err = h.core.Reconciler.Sweep(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, armed)
}

type failingScheduler struct{}

func (failingScheduler) Schedule(context.Context, string, any, time.Duration, string, jobs.RetryPolicy) error {
	return assert.AnError
}

func TestSchedulerOutageDoesNotFailTransition(t *testing.T) {
	h := newHarness(t, withScheduler(failingScheduler{}))
	q := h.queue(1, nil, 1)
	h.join(q, "alice")

	result, err := h.core.Queues.MarkLate(h.ctx, owner, q, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusLate, result.To)

	err = h.core.Expiry.Arm(h.ctx, q, result.TicketID, *result.ExpiresAt)
	assert.True(t, apperrors.Is(err, apperrors.CodeCollaboratorUnavailable))
}
