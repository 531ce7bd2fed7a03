package jobs

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process Scheduler with the same replace-on-rearm
// and retry semantics as RedisQueue. Nothing survives a restart.
type MemoryQueue struct {
	mu         sync.Mutex
	now        func() time.Time
	visibility time.Duration
	pending    map[string]map[string]*memoryEntry
	dead       map[string][]Job
}

type memoryEntry struct {
	job   Job
	due   time.Time
	token string
}

// NewMemoryQueue builds an empty queue. now may be nil.
func NewMemoryQueue(now func() time.Time) *MemoryQueue {
	if now == nil {
		now = time.Now
	}
	return &MemoryQueue{
		now:        now,
		visibility: 30 * time.Second,
		pending:    make(map[string]map[string]*memoryEntry),
		dead:       make(map[string][]Job),
	}
}

func (q *MemoryQueue) Schedule(_ context.Context, jobType string, payload any, delay time.Duration, dedupKey string, policy RetryPolicy) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if delay < 0 {
		delay = 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	byKey := q.pending[jobType]
	if byKey == nil {
		byKey = make(map[string]*memoryEntry)
		q.pending[jobType] = byKey
	}
	byKey[dedupKey] = &memoryEntry{
		job: Job{Key: dedupKey, Type: jobType, Payload: raw, Policy: policy},
		due: q.now().Add(delay),
	}
	return nil
}

// Drop forgets a pending job, as if the facility had lost it.
func (q *MemoryQueue) Drop(jobType, dedupKey string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending[jobType], dedupKey)
}

func (q *MemoryQueue) Claim(_ context.Context, jobType string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	for {
		var best *memoryEntry
		for _, entry := range q.pending[jobType] {
			if entry.due.After(now) {
				continue
			}
			if best == nil || entry.due.Before(best.due) || (entry.due.Equal(best.due) && entry.job.Key < best.job.Key) {
				best = entry
			}
		}
		if best == nil {
			return nil, nil
		}
		if best.token != "" {
			// the previous lease expired
			best.job.Attempts++
			best.job.LastErr = errLeaseExpired.Error()
			if best.job.Attempts >= best.job.Policy.MaxAttempts {
				delete(q.pending[jobType], best.job.Key)
				q.dead[jobType] = append(q.dead[jobType], best.job)
				continue
			}
		}
		best.token = uuid.NewString()
		best.due = now.Add(q.visibility)
		job := best.job
		job.token = best.token
		return &job, nil
	}
}

func (q *MemoryQueue) Ack(_ context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	entry, ok := q.pending[job.Type][job.Key]
	if ok && entry.token == job.token {
		delete(q.pending[job.Type], job.Key)
	}
	return nil
}

func (q *MemoryQueue) Retry(_ context.Context, job *Job, cause error) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entry, ok := q.pending[job.Type][job.Key]
	if !ok || entry.token != job.token {
		return false, nil
	}
	job.Attempts++
	if cause != nil {
		job.LastErr = cause.Error()
	}
	if job.Attempts >= job.Policy.MaxAttempts {
		delete(q.pending[job.Type], job.Key)
		q.dead[job.Type] = append(q.dead[job.Type], *job)
		return true, nil
	}
	entry.job = *job
	entry.job.token = ""
	entry.token = ""
	entry.due = q.now().Add(job.Policy.NextDelay(job.Attempts))
	return false, nil
}

// Due returns the dedup keys of jobs of a type that are due, earliest first.
func (q *MemoryQueue) Due(jobType string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	var entries []*memoryEntry
	for _, entry := range q.pending[jobType] {
		if !entry.due.After(now) {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].due.Before(entries[j].due) })
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.job.Key
	}
	return keys
}

// Pending returns the due time of a scheduled job.
func (q *MemoryQueue) Pending(jobType, dedupKey string) (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entry, ok := q.pending[jobType][dedupKey]
	if !ok {
		return time.Time{}, false
	}
	return entry.due, true
}

// Len reports how many jobs of a type are scheduled.
func (q *MemoryQueue) Len(jobType string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending[jobType])
}

// Dead returns abandoned jobs of a type.
func (q *MemoryQueue) Dead(jobType string) []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Job(nil), q.dead[jobType]...)
}
