package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/runforge/runforge/internal/models"
)

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemoryQueue(10)
	defer q.Close()
	ctx := context.Background()

	first := &models.RunJob{ID: uuid.New()}
	second := &models.RunJob{ID: uuid.New()}

	if err := q.Enqueue(ctx, first); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := q.Enqueue(ctx, second); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if got.ID != first.ID {
		t.Errorf("dequeued %s, want %s (FIFO)", got.ID, first.ID)
	}
	got, _ = q.Dequeue(ctx)
	if got.ID != second.ID {
		t.Errorf("dequeued %s, want %s", got.ID, second.ID)
	}
}

func TestMemoryQueueRejectsMissingID(t *testing.T) {
	q := NewMemoryQueue(10)
	defer q.Close()

	if err := q.Enqueue(context.Background(), &models.RunJob{}); err == nil {
		t.Error("enqueue without an id should fail")
	}
}

func TestMemoryQueueDetachesJobFromCaller(t *testing.T) {
	q := NewMemoryQueue(10)
	defer q.Close()
	ctx := context.Background()

	submitted := &models.RunJob{ID: uuid.New(), Status: models.RunJobStatusPending}
	if err := q.Enqueue(ctx, submitted); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if got == submitted {
		t.Fatal("dequeued the caller's pointer; consumer writes would race the submitter")
	}
	if got.ID != submitted.ID {
		t.Fatalf("dequeued %s, want %s", got.ID, submitted.ID)
	}

	// The consumer's status writes stay on its copy.
	now := time.Now()
	got.Status = models.RunJobStatusRunning
	got.StartedAt = &now
	if submitted.Status != models.RunJobStatusPending || submitted.StartedAt != nil {
		t.Errorf("submitted job mutated: status = %s, started_at = %v", submitted.Status, submitted.StartedAt)
	}
}

func TestMemoryQueueDequeueRespectsCancellation(t *testing.T) {
	q := NewMemoryQueue(10)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}
