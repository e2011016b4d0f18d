package gateway

import (
	"context"

	"github.com/user/stitchbot/internal/types"
)

// Gateway turns inbound events into jobs on the sending user's lane, so every
// event for one user is handled in arrival order and never concurrently.
type Gateway struct {
	Queue *Queue

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Gateway with the given limit on simultaneously running jobs.
func New(maxConcurrent ...int64) *Gateway {
	var concurrency int64 = 2
	if len(maxConcurrent) > 0 && maxConcurrent[0] > 0 {
		concurrency = maxConcurrent[0]
	}
	return &Gateway{
		Queue: NewQueue(concurrency),
	}
}

// Start initialises the gateway's context and starts the internal queue.
func (g *Gateway) Start(ctx context.Context) {
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.Queue.Start(g.ctx)
}

// Stop cancels the gateway context, stops the queue, and waits for any
// outstanding work to finish.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.Queue.Stop()
}

// JobOption configures optional behavior on a Job.
type JobOption func(*Job)

// WithOnError sets a callback invoked when the job's processor fails.
func WithOnError(fn func(error)) JobOption {
	return func(j *Job) { j.OnError = fn }
}

// HandleInbound wraps the event in a Job and enqueues it on the user's lane.
func (g *Gateway) HandleInbound(_ context.Context, event *types.InboundEvent, opts ...JobOption) error {
	job := NewJob(event)
	for _, opt := range opts {
		opt(job)
	}
	return g.Queue.Enqueue(job)
}

// Submit runs fn on the user's lane, after any events already queued for them.
func (g *Gateway) Submit(user types.UserID, fn func(ctx context.Context) error) error {
	return g.Queue.Enqueue(NewTaskJob(user, fn))
}
