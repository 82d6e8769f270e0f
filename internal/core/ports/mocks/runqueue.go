package mocks

import (
	"context"
	"fmt"
	"sync"
)

// RunQueue is a thread-safe in-memory implementation of ports.RunQueue.
type RunQueue struct {
	mu   sync.Mutex
	runs []string

	// EnqueueRunFn allows overriding EnqueueRun behavior.
	EnqueueRunFn func(ctx context.Context, feedbackID string) (string, error)
}

// NewRunQueue creates a new mock run queue.
func NewRunQueue() *RunQueue {
	return &RunQueue{}
}

// EnqueueRun records the feedback id and returns a sequential run id.
func (q *RunQueue) EnqueueRun(ctx context.Context, feedbackID string) (string, error) {
	if q.EnqueueRunFn != nil {
		return q.EnqueueRunFn(ctx, feedbackID)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.runs = append(q.runs, feedbackID)

	return fmt.Sprintf("run-%d", len(q.runs)), nil
}

// Enqueued returns the feedback ids enqueued so far, in order.
func (q *RunQueue) Enqueued() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	return append([]string(nil), q.runs...)
}
