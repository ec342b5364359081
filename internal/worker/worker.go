package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/runforge/runforge/internal/models"
	"github.com/runforge/runforge/internal/orchestrator"
	"github.com/runforge/runforge/internal/queue"
	"gorm.io/gorm"
)

// Worker processes run jobs from the queue
type Worker struct {
	db           *gorm.DB
	queue        queue.Queue
	orchestrator *orchestrator.Service
	logger       *slog.Logger
	maxWorkers   int
	semaphore    chan struct{}
	wg           sync.WaitGroup
}

// New creates a new worker instance
func New(db *gorm.DB, q queue.Queue, orch *orchestrator.Service, logger *slog.Logger) *Worker {
	maxWorkers := 10 // Allow up to 10 concurrent runs
	return &Worker{
		db:           db,
		queue:        q,
		orchestrator: orch,
		logger:       logger,
		maxWorkers:   maxWorkers,
		semaphore:    make(chan struct{}, maxWorkers),
	}
}

// Start begins processing run jobs from the queue
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Worker started", "max_concurrent_runs", w.maxWorkers)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker shutting down, waiting for runs to complete")
			w.wg.Wait() // Wait for all runs to complete
			w.logger.Info("All runs completed, worker stopped")
			return ctx.Err()
		default:
			job, err := w.queue.Dequeue(ctx)
			if err != nil {
				// DeadlineExceeded means no jobs available (normal timeout), not an error
				if err == context.DeadlineExceeded {
					continue
				}
				// Actual errors (connection issues, etc.)
				w.logger.Error("Failed to dequeue run job", "error", err)
				time.Sleep(time.Second) // Backoff on real errors
				continue
			}

			if job == nil {
				time.Sleep(100 * time.Millisecond)
				continue
			}

			// Acquire semaphore slot (blocks if max workers reached)
			select {
			case w.semaphore <- struct{}{}:
				w.wg.Add(1)
				go func(j *models.RunJob) {
					defer w.wg.Done()
					defer func() { <-w.semaphore }() // Release slot when done

					// In-flight runs outlive shutdown: Start waits on the
					// WaitGroup, and a cancelled engine call would wrongly
					// mark a healthy run FAILED. Runs cannot be cancelled
					// once dequeued.
					w.processJob(context.WithoutCancel(ctx), j)
				}(job)
			case <-ctx.Done():
				w.logger.Info("Context cancelled while waiting for worker slot")
				return ctx.Err()
			}
		}
	}
}

func (w *Worker) processJob(ctx context.Context, job *models.RunJob) {
	// Panic recovery so a bad template payload cannot take the worker down
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Panic recovered in processJob", "run_id", job.ID, "panic", r)
			completedAt := time.Now()
			job.CompletedAt = &completedAt
			job.Status = models.RunJobStatusFailed
			job.Error = fmt.Sprintf("Run panicked: %v", r)
			w.db.Save(job)
		}
	}()

	w.logger.Info("Processing run", "run_id", job.ID, "template_id", job.TemplateID)

	// Update job status to running
	job.Status = models.RunJobStatusRunning
	now := time.Now()
	job.StartedAt = &now
	w.db.Save(job)

	err := w.orchestrator.Execute(ctx, job)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	if err != nil {
		w.logger.Error("Run failed", "run_id", job.ID, "error", err)
		job.Status = models.RunJobStatusFailed
		job.Error = err.Error()
	} else {
		w.logger.Info("Run completed", "run_id", job.ID)
		job.Status = models.RunJobStatusCompleted
	}

	w.db.Save(job)
}
