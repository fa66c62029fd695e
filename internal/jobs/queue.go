// Package jobs provides a typed background job queue with at-least-once
// delivery. Handlers must be idempotent: delivery retries mean the same
// job can be handled more than once for a single enqueue.
package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is the tagged union of background work kinds. Each kind carries its
// own payload type; dispatch is an exhaustive type switch in the handler.
type Job interface {
	Kind() string
}

// GraduationJob requests graduation processing for a token whose curve
// crossed the threshold.
type GraduationJob struct {
	TokenID string
}

// Kind returns the job kind tag.
func (GraduationJob) Kind() string { return "graduation" }

// Handler processes a job. Returning an error triggers a delivery retry.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

// Options configures a Queue.
type Options struct {
	BufferSize int           // queued jobs before Enqueue starts failing
	MaxRetries int           // delivery retries after the first attempt
	BaseDelay  time.Duration // initial retry backoff, doubled per attempt
}

// Queue is a single-worker job queue. One worker keeps delivery per kind
// ordered; idempotent handlers make the at-least-once semantics safe.
type Queue struct {
	handler Handler
	logger  *zap.Logger
	opts    Options

	ch     chan Job
	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
}

// NewQueue creates a new queue. Zero option fields get working defaults.
func NewQueue(handler Handler, logger *zap.Logger, opts Options) *Queue {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 64
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 100 * time.Millisecond
	}
	return &Queue{
		handler: handler,
		logger:  logger,
		opts:    opts,
		ch:      make(chan Job, opts.BufferSize),
	}
}

// Start launches the worker. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	ctx, q.cancel = context.WithCancel(ctx)
	q.wg.Add(1)
	go q.run(ctx)
}

// Stop drains nothing: it cancels the worker and waits for the in-flight
// job to finish. Queued jobs are dropped, which is acceptable because the
// enqueueing side re-dispatches on its own triggers.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()

	q.wg.Wait()
}

// Enqueue submits a job without blocking the caller. Returns false when
// the buffer is full; the caller decides whether that is fatal.
func (q *Queue) Enqueue(job Job) bool {
	select {
	case q.ch <- job:
		return true
	default:
		q.logger.Error("job queue full, dropping job", zap.String("kind", job.Kind()))
		return false
	}
}

// run is the worker loop.
func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.ch:
			q.deliver(ctx, job)
		}
	}
}

// deliver hands a job to the handler with exponential-backoff retries.
func (q *Queue) deliver(ctx context.Context, job Job) {
	delay := q.opts.BaseDelay
	for attempt := 0; ; attempt++ {
		err := q.handler.Handle(ctx, job)
		if err == nil {
			return
		}
		if attempt >= q.opts.MaxRetries {
			q.logger.Error("job delivery exhausted retries",
				zap.String("kind", job.Kind()),
				zap.Int("attempts", attempt+1),
				zap.Error(err))
			return
		}

		q.logger.Warn("job delivery failed, retrying",
			zap.String("kind", job.Kind()),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		delay *= 2
	}
}
