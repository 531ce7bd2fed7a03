package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newRedisQueue(t *testing.T) (*RedisQueue, *clock) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	clk := &clock{now: time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)}
	q := NewRedisQueue(client, RedisQueueOptions{Prefix: "test", VisibilityTimeout: 10 * time.Second, Now: clk.Now})
	return q, clk
}

func TestRedisQueueDelaysUntilDue(t *testing.T) {
	q, clk := newRedisQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Schedule(ctx, TypeLateExpiry, LateExpiryPayload{QueueID: "q", TicketID: "t"}, time.Minute, "k1", DefaultRetryPolicy))

	job, err := q.Claim(ctx, TypeLateExpiry)
	require.NoError(t, err)
	assert.Nil(t, job)

	clk.Advance(time.Minute)
	job, err = q.Claim(ctx, TypeLateExpiry)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "k1", job.Key)
	assert.Equal(t, TypeLateExpiry, job.Type)

	var payload LateExpiryPayload
	require.NoError(t, job.Decode(&payload))
	assert.Equal(t, LateExpiryPayload{QueueID: "q", TicketID: "t"}, payload)

	require.NoError(t, q.Ack(ctx, job))
	pending, err := q.Pending(ctx, TypeLateExpiry)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestRedisQueueRearmReplaces(t *testing.T) {
	q, clk := newRedisQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Schedule(ctx, TypePromote, PromotePayload{QueueID: "q"}, time.Minute, "k", DefaultRetryPolicy))
	require.NoError(t, q.Schedule(ctx, TypePromote, PromotePayload{QueueID: "q"}, 5*time.Second, "k", DefaultRetryPolicy))

	pending, err := q.Pending(ctx, TypePromote)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	due, ok, err := q.DueAt(ctx, TypePromote, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, clk.Now().Add(5*time.Second).UnixMilli(), due.UnixMilli())
}

func TestRedisQueueStaleAckIsNoop(t *testing.T) {
	q, clk := newRedisQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Schedule(ctx, TypeLateExpiry, LateExpiryPayload{TicketID: "t"}, 0, "k", DefaultRetryPolicy))
	job, err := q.Claim(ctx, TypeLateExpiry)
	require.NoError(t, err)
	require.NotNil(t, job)

	// re-armed while the first run is in flight
	require.NoError(t, q.Schedule(ctx, TypeLateExpiry, LateExpiryPayload{TicketID: "t"}, time.Minute, "k", DefaultRetryPolicy))
	require.NoError(t, q.Ack(ctx, job))

	_, ok, err := q.DueAt(ctx, TypeLateExpiry, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	clk.Advance(time.Minute)
	again, err := q.Claim(ctx, TypeLateExpiry)
	require.NoError(t, err)
	assert.NotNil(t, again)
}

func TestRedisQueueRedeliversAfterVisibilityTimeout(t *testing.T) {
	q, clk := newRedisQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Schedule(ctx, TypePromote, PromotePayload{QueueID: "q"}, 0, "k", DefaultRetryPolicy))
	first, err := q.Claim(ctx, TypePromote)
	require.NoError(t, err)
	require.NotNil(t, first)

	none, err := q.Claim(ctx, TypePromote)
	require.NoError(t, err)
	assert.Nil(t, none)

	clk.Advance(10 * time.Second)
	second, err := q.Claim(ctx, TypePromote)
	require.NoError(t, err)
	require.NotNil(t, second)

	// the crashed worker's lease is gone
	require.NoError(t, q.Ack(ctx, first))
	pending, err := q.Pending(ctx, TypePromote)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
	require.NoError(t, q.Ack(ctx, second))
}

func TestRedisQueueRetryBackoffThenDeadLetter(t *testing.T) {
	q, clk := newRedisQueue(t)
	ctx := context.Background()
	policy := RetryPolicy{MaxAttempts: 2, Backoff: time.Second}

	require.NoError(t, q.Schedule(ctx, TypeLateExpiry, LateExpiryPayload{TicketID: "t"}, 0, "k", policy))
	job, err := q.Claim(ctx, TypeLateExpiry)
	require.NoError(t, err)

	dead, err := q.Retry(ctx, job, errors.New("store down"))
	require.NoError(t, err)
	assert.False(t, dead)

	due, ok, err := q.DueAt(ctx, TypeLateExpiry, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, clk.Now().Add(time.Second).UnixMilli(), due.UnixMilli())

	clk.Advance(time.Second)
	job, err = q.Claim(ctx, TypeLateExpiry)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, "store down", job.LastErr)

	dead, err = q.Retry(ctx, job, errors.New("store still down"))
	require.NoError(t, err)
	assert.True(t, dead)

	abandoned, err := q.Dead(ctx, TypeLateExpiry)
	require.NoError(t, err)
	require.Len(t, abandoned, 1)
	assert.Equal(t, 2, abandoned[0].Attempts)
	pending, err := q.Pending(ctx, TypeLateExpiry)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestRetryPolicyNextDelay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, Backoff: 5 * time.Second}
	assert.Equal(t, 5*time.Second, p.NextDelay(1))
	assert.Equal(t, 10*time.Second, p.NextDelay(2))
	assert.Equal(t, 40*time.Second, p.NextDelay(4))
	assert.Equal(t, 5*time.Second, p.NextDelay(0))
	assert.Zero(t, RetryPolicy{}.NextDelay(3))
}

func TestRedisQueueExpiredLeasesExhaustRetryBudget(t *testing.T) {
	q, clk := newRedisQueue(t)
	ctx := context.Background()
	policy := RetryPolicy{MaxAttempts: 3, Backoff: time.Second}

	require.NoError(t, q.Schedule(ctx, TypeLateExpiry, LateExpiryPayload{TicketID: "t"}, 0, "k", policy))
	first, err := q.Claim(ctx, TypeLateExpiry)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Zero(t, first.Attempts)

	// the worker holding each lease dies without acking
	clk.Advance(10 * time.Second)
	second, err := q.Claim(ctx, TypeLateExpiry)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, 1, second.Attempts)
	assert.Equal(t, errLeaseExpired.Error(), second.LastErr)

	clk.Advance(10 * time.Second)
	third, err := q.Claim(ctx, TypeLateExpiry)
	require.NoError(t, err)
	require.NotNil(t, third)
	assert.Equal(t, 2, third.Attempts)

	clk.Advance(10 * time.Second)
	none, err := q.Claim(ctx, TypeLateExpiry)
	require.NoError(t, err)
	assert.Nil(t, none)

	abandoned, err := q.Dead(ctx, TypeLateExpiry)
	require.NoError(t, err)
	require.Len(t, abandoned, 1)
	assert.Equal(t, 3, abandoned[0].Attempts)
	pending, err := q.Pending(ctx, TypeLateExpiry)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestRedisQueueRetryAfterExpiredLeaseCountsBoth(t *testing.T) {
	q, clk := newRedisQueue(t)
	ctx := context.Background()
	policy := RetryPolicy{MaxAttempts: 5, Backoff: time.Second}

	require.NoError(t, q.Schedule(ctx, TypePromote, PromotePayload{QueueID: "q"}, 0, "k", policy))
	_, err := q.Claim(ctx, TypePromote)
	require.NoError(t, err)

	clk.Advance(10 * time.Second)
	job, err := q.Claim(ctx, TypePromote)
	require.NoError(t, err)
	require.NotNil(t, job)
	dead, err := q.Retry(ctx, job, errors.New("store down"))
	require.NoError(t, err)
	assert.False(t, dead)

	clk.Advance(2 * time.Second)
	job, err = q.Claim(ctx, TypePromote)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 2, job.Attempts)
	assert.Equal(t, "store down", job.LastErr)
}
