package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/stitchbot/internal/types"
)

const (
	// laneBuffer is how many jobs a single user may have waiting.
	laneBuffer = 100
	// defaultLaneIdle is how long an empty lane keeps its goroutine.
	defaultLaneIdle = 5 * time.Minute
)

// ErrQueueFull is returned by Enqueue when a user's lane has no room.
var ErrQueueFull = errors.New("queue full")

// Queue manages per-user lanes with a global concurrency semaphore.
// Each user gets its own FIFO channel (lane) so that jobs for one user
// run strictly one after another, while the semaphore limits the total
// number of concurrent jobs across all users.
type Queue struct {
	lanes     map[types.UserID]chan *Job
	semaphore *semaphore.Weighted
	processor func(*Job) error
	active    atomic.Int64
	laneIdle  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewQueue creates a Queue that allows up to maxConcurrent jobs to execute
// simultaneously across all user lanes.
func NewQueue(maxConcurrent int64) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Queue{
		lanes:     make(map[types.UserID]chan *Job),
		semaphore: semaphore.NewWeighted(maxConcurrent),
		laneIdle:  defaultLaneIdle,
	}
}

// Start initialises the queue's context. Must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels the queue context, closes all lanes, and waits for in-flight
// jobs to finish.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		for _, lane := range q.lanes {
			close(lane)
		}
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue adds a Job to the user's lane, creating the lane (and its
// goroutine) on first use or after the previous lane retired. Returns
// ErrQueueFull if the lane's buffer is full. The send happens under mu so a
// lane never retires with a job in flight towards it.
func (q *Queue) Enqueue(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx == nil {
		return fmt.Errorf("queue not started")
	}
	if q.closed {
		return fmt.Errorf("queue stopped")
	}

	lane, exists := q.lanes[job.UserID]
	if !exists {
		lane = make(chan *Job, laneBuffer)
		q.lanes[job.UserID] = lane
		q.wg.Add(1)
		go q.processLane(job.UserID, lane)
	}

	select {
	case lane <- job:
		return nil
	default:
		return fmt.Errorf("%w for user %s", ErrQueueFull, job.UserID)
	}
}

// processLane drains a single user lane, acquiring a semaphore slot before
// running each job synchronously. A lane that stays empty for laneIdle
// removes itself so users who went quiet hold no goroutine.
func (q *Queue) processLane(user types.UserID, lane chan *Job) {
	defer q.wg.Done()
	idle := time.NewTimer(q.laneIdle)
	defer idle.Stop()
	for {
		select {
		case job, ok := <-lane:
			if !ok {
				return
			}
			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				return
			}
			q.run(job)
			q.semaphore.Release(1)
			idle.Reset(q.laneIdle)
		case <-idle.C:
			if q.retireLane(user, lane) {
				return
			}
			idle.Reset(q.laneIdle)
		case <-q.ctx.Done():
			return
		}
	}
}

// retireLane drops the user's lane if nothing is waiting in it.
func (q *Queue) retireLane(user types.UserID, lane chan *Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(lane) > 0 {
		return false
	}
	if q.lanes[user] == lane {
		delete(q.lanes, user)
	}
	return true
}

// Lanes returns the number of users that currently hold a lane.
func (q *Queue) Lanes() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.lanes)
}

func (q *Queue) run(job *Job) {
	q.active.Add(1)
	defer q.active.Add(-1)

	job.Ctx = q.ctx
	started := time.Now()
	job.StartedAt = &started
	job.Status = JobStatusRunning

	err := q.execute(job)

	ended := time.Now()
	job.EndedAt = &ended
	if err != nil {
		job.Status = JobStatusFailed
		job.Error = err
		slog.Error("job failed", "job_id", string(job.ID), "user_id", job.UserID.String(), "error", err)
		if job.OnError != nil {
			job.OnError(err)
		}
		return
	}
	job.Status = JobStatusComplete
}

// execute runs the job, turning a panic into an error so one bad input
// cannot take down every lane.
func (q *Queue) execute(job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	switch {
	case job.Task != nil:
		return job.Task(q.ctx)
	case q.processor != nil:
		return q.processor(job)
	}
	return nil
}

// WaitIdle blocks until no jobs are actively being processed, or the timeout
// expires. Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// SetProcessor sets the function invoked for each dequeued event Job.
func (q *Queue) SetProcessor(fn func(*Job) error) {
	q.processor = fn
}
