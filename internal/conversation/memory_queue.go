package conversation

import (
	"context"
	"time"
)

const defaultMemoryQueueSize = 128

// MemoryQueue hands jobs from the API to the worker inside one process.
// Each Receive returns a single job, and nothing is redelivered, so Delete
// has nothing to acknowledge.
type MemoryQueue struct {
	jobs chan queueJob
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = defaultMemoryQueueSize
	}
	return &MemoryQueue{jobs: make(chan queueJob, size)}
}

// Send blocks while the buffer is full.
func (q *MemoryQueue) Send(ctx context.Context, job queueJob) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive waits up to wait for the next job; a non-positive wait blocks
// until a job arrives or ctx ends. limit is ignored.
func (q *MemoryQueue) Receive(ctx context.Context, _ int, wait time.Duration) ([]queueMessage, error) {
	var expired <-chan time.Time
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		expired = t.C
	}

	select {
	case job := <-q.jobs:
		return []queueMessage{{ID: job.ID, JobID: job.ID, Body: job.Body, Deliveries: 1}}, nil
	case <-expired:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Delete(context.Context, queueMessage) error { return nil }

// Pending reports how many jobs are buffered.
func (q *MemoryQueue) Pending() int { return len(q.jobs) }
