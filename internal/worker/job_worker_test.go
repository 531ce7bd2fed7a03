package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/jobs"
)

func TestProcessAcksOnSuccess(t *testing.T) {
	q := jobs.NewMemoryQueue(nil)
	ctx := context.Background()
	require.NoError(t, q.Schedule(ctx, jobs.TypePromote, jobs.PromotePayload{QueueID: "q1"}, 0, "k", jobs.DefaultRetryPolicy))

	w := NewJobWorker(q, zap.NewNop(), JobWorkerOptions{})
	var seen string
	w.Register(jobs.TypePromote, func(_ context.Context, job *jobs.Job) error {
		var p jobs.PromotePayload
		require.NoError(t, job.Decode(&p))
		seen = p.QueueID
		return nil
	})

	job, err := q.Claim(ctx, jobs.TypePromote)
	require.NoError(t, err)
	w.Process(ctx, job)

	assert.Equal(t, "q1", seen)
	assert.Zero(t, q.Len(jobs.TypePromote))
}

func TestProcessRetriesThenDeadLetters(t *testing.T) {
	now := time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)
	q := jobs.NewMemoryQueue(func() time.Time { return now })
	ctx := context.Background()
	policy := jobs.RetryPolicy{MaxAttempts: 2, Backoff: time.Second}
	require.NoError(t, q.Schedule(ctx, jobs.TypeLateExpiry, jobs.LateExpiryPayload{TicketID: "t"}, 0, "k", policy))

	w := NewJobWorker(q, zap.NewNop(), JobWorkerOptions{})
	w.Register(jobs.TypeLateExpiry, func(context.Context, *jobs.Job) error {
		return errors.New("store down")
	})

	job, err := q.Claim(ctx, jobs.TypeLateExpiry)
	require.NoError(t, err)
	w.Process(ctx, job)
	assert.Equal(t, 1, q.Len(jobs.TypeLateExpiry))
	assert.Empty(t, q.Due(jobs.TypeLateExpiry))

	now = now.Add(time.Second)
	job, err = q.Claim(ctx, jobs.TypeLateExpiry)
	require.NoError(t, err)
	require.NotNil(t, job)
	w.Process(ctx, job)

	dead := q.Dead(jobs.TypeLateExpiry)
	require.Len(t, dead, 1)
	assert.Equal(t, "store down", dead[0].LastErr)
}

func TestRunDrainsDueJobsUntilCancelled(t *testing.T) {
	q := jobs.NewMemoryQueue(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, q.Schedule(ctx, jobs.TypePromote, jobs.PromotePayload{QueueID: key}, 0, key, jobs.DefaultRetryPolicy))
	}

	w := NewJobWorker(q, zap.NewNop(), JobWorkerOptions{PollInterval: 10 * time.Millisecond, Concurrency: 2})
	var handled atomic.Int32
	w.Register(jobs.TypePromote, func(context.Context, *jobs.Job) error {
		handled.Add(1)
		return nil
	})

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return handled.Load() == 3 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Zero(t, q.Len(jobs.TypePromote))
}
