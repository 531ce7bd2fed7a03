package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/jobs"
)

// Handler processes one job. Returning an error schedules a retry.
type Handler func(ctx context.Context, job *jobs.Job) error

// Source is the claim side of the durable job facility.
type Source interface {
	Claim(ctx context.Context, jobType string) (*jobs.Job, error)
	Ack(ctx context.Context, job *jobs.Job) error
	Retry(ctx context.Context, job *jobs.Job, cause error) (bool, error)
}

// JobWorker polls job types and runs their handlers with bounded concurrency.
type JobWorker struct {
	source      Source
	logger      *zap.Logger
	handlers    map[string]Handler
	types       []string
	poll        time.Duration
	concurrency int
}

// JobWorkerOptions configures a JobWorker.
type JobWorkerOptions struct {
	PollInterval time.Duration
	Concurrency  int
}

// NewJobWorker creates a worker with no handlers.
func NewJobWorker(source Source, logger *zap.Logger, opts JobWorkerOptions) *JobWorker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobWorker{
		source:      source,
		logger:      logger,
		handlers:    make(map[string]Handler),
		poll:        opts.PollInterval,
		concurrency: opts.Concurrency,
	}
}

// Register binds a handler to a job type. Call before Run.
func (w *JobWorker) Register(jobType string, handler Handler) {
	if _, exists := w.handlers[jobType]; !exists {
		w.types = append(w.types, jobType)
	}
	w.handlers[jobType] = handler
}

// Run blocks until ctx is cancelled, then waits for in-flight jobs.
func (w *JobWorker) Run(ctx context.Context) {
	sem := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()
	for {
		for w.drain(ctx, sem, &wg) {
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// drain claims at most one job per type and reports whether any was found.
func (w *JobWorker) drain(ctx context.Context, sem chan struct{}, wg *sync.WaitGroup) bool {
	found := false
	for _, jobType := range w.types {
		select {
		case <-ctx.Done():
			return false
		case sem <- struct{}{}:
		}
		job, err := w.source.Claim(ctx, jobType)
		if err != nil || job == nil {
			<-sem
			if err != nil && ctx.Err() == nil {
				w.logger.Warn("job claim failed", zap.String("job_type", jobType), zap.Error(err))
			}
			continue
		}
		found = true
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			w.Process(ctx, job)
		}()
	}
	return found
}

// Process runs the handler for a claimed job and acks or retries it.
func (w *JobWorker) Process(ctx context.Context, job *jobs.Job) {
	handler, ok := w.handlers[job.Type]
	if !ok {
		w.logger.Error("no handler for job", zap.String("job_type", job.Type), zap.String("job_key", job.Key))
		return
	}
	err := handler(ctx, job)
	if err == nil {
		if ackErr := w.source.Ack(ctx, job); ackErr != nil {
			w.logger.Warn("job ack failed", zap.String("job_key", job.Key), zap.Error(ackErr))
		}
		return
	}
	dead, retryErr := w.source.Retry(ctx, job, err)
	if retryErr != nil {
		w.logger.Warn("job retry failed", zap.String("job_key", job.Key), zap.Error(retryErr))
		return
	}
	if dead {
		w.logger.Error("job abandoned after retries",
			zap.String("job_key", job.Key),
			zap.Int("attempts", job.Attempts),
			zap.Error(err))
		return
	}
	w.logger.Warn("job failed, retrying",
		zap.String("job_key", job.Key),
		zap.Int("attempt", job.Attempts),
		zap.Error(err))
}
