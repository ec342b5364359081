// Package queue transports queued template runs from the API to the worker.
package queue

import (
	"context"
	"errors"

	"github.com/runforge/runforge/internal/models"
)

// ErrJobNotFound is returned when a run job is not found
var ErrJobNotFound = errors.New("run job not found")

// Queue is the run-job transport interface
type Queue interface {
	// Enqueue adds a run job to the queue
	Enqueue(ctx context.Context, job *models.RunJob) error

	// Dequeue retrieves the next run job, blocking until one is
	// available or the context is done
	Dequeue(ctx context.Context) (*models.RunJob, error)

	// Close closes the queue and releases resources
	Close() error
}
