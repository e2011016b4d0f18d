package gateway

import (
	"context"
	"time"

	"github.com/user/stitchbot/internal/types"
)

// JobStatus represents the lifecycle state of a Job.
type JobStatus string

const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusRunning  JobStatus = "running"
	JobStatusComplete JobStatus = "complete"
	JobStatusFailed   JobStatus = "failed"
)

// Job is one unit of work in a user's lane: either an inbound event for the
// processor or an internal Task such as session eviction.
type Job struct {
	ID        types.JobID
	UserID    types.UserID
	Event     *types.InboundEvent
	Task      func(ctx context.Context) error
	Status    JobStatus
	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time
	Error     error
	OnError   func(err error)
	Ctx       context.Context
}

// NewJob creates a Job in the Queued state for the given event.
func NewJob(event *types.InboundEvent) *Job {
	return &Job{
		ID:        types.NewJobID(),
		UserID:    event.UserID,
		Event:     event,
		Status:    JobStatusQueued,
		CreatedAt: time.Now(),
	}
}

// NewTaskJob creates a Job that runs fn in the user's lane.
func NewTaskJob(user types.UserID, fn func(ctx context.Context) error) *Job {
	return &Job{
		ID:        types.NewJobID(),
		UserID:    user,
		Task:      fn,
		Status:    JobStatusQueued,
		CreatedAt: time.Now(),
	}
}
