package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/runforge/runforge/internal/models"
)

// MemoryQueue implements an in-process run-job queue. Job rows live in the
// database; the channel carries only the handoff.
type MemoryQueue struct {
	jobChan chan *models.RunJob
}

// NewMemoryQueue creates a new in-memory queue
func NewMemoryQueue(bufferSize int) *MemoryQueue {
	if bufferSize <= 0 {
		bufferSize = 100
	}

	q := &MemoryQueue{
		jobChan: make(chan *models.RunJob, bufferSize),
	}

	slog.Info("Initialized in-memory run queue", "buffer_size", bufferSize)
	return q
}

// Enqueue adds a run job to the queue. The channel carries a detached copy
// so the worker's status writes cannot race the caller's use of the
// submitted struct.
func (q *MemoryQueue) Enqueue(ctx context.Context, job *models.RunJob) error {
	if job.ID == uuid.Nil {
		return fmt.Errorf("run job must have an ID")
	}

	queued := *job
	select {
	case q.jobChan <- &queued:
		slog.Debug("Run job enqueued", "job_id", job.ID, "template_id", job.TemplateID)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("queue is full, could not enqueue run job %s", job.ID)
	}
}

// Dequeue retrieves the next run job from the queue
func (q *MemoryQueue) Dequeue(ctx context.Context) (*models.RunJob, error) {
	select {
	case job := <-q.jobChan:
		slog.Debug("Run job dequeued", "job_id", job.ID, "template_id", job.TemplateID)
		return job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the queue and releases resources
func (q *MemoryQueue) Close() error {
	close(q.jobChan)
	slog.Info("Memory queue closed")
	return nil
}
