package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/runforge/runforge/internal/models"
	"github.com/valkey-io/valkey-go"
	"gorm.io/gorm"
)

// ValkeyQueue implements a distributed run-job queue using Valkey. Valkey
// carries job ids only; the database stays the source of truth, so a second
// server process can work the same queue.
type ValkeyQueue struct {
	client valkey.Client
	db     *gorm.DB
	key    string
}

// NewValkeyQueue creates a new Valkey-backed queue
func NewValkeyQueue(addr string, db *gorm.DB) (*ValkeyQueue, error) {
	if db == nil {
		return nil, fmt.Errorf("database instance is required for Valkey queue")
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pingCmd := client.B().Ping().Build()
	if err := client.Do(ctx, pingCmd).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Valkey: %w", err)
	}

	q := &ValkeyQueue{
		client: client,
		db:     db,
		key:    "runforge:runs",
	}

	slog.Info("Initialized Valkey run queue", "address", addr, "queue_key", q.key)
	return q, nil
}

// Enqueue pushes the job id onto the Valkey list. The caller has already
// persisted the job row.
func (q *ValkeyQueue) Enqueue(ctx context.Context, job *models.RunJob) error {
	if job.ID == uuid.Nil {
		return fmt.Errorf("run job must have an ID")
	}

	payload, err := json.Marshal(map[string]string{"id": job.ID.String()})
	if err != nil {
		return fmt.Errorf("failed to marshal job data: %w", err)
	}

	cmd := q.client.B().Rpush().Key(q.key).Element(string(payload)).Build()
	if err := q.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to push run job to Valkey: %w", err)
	}

	slog.Debug("Run job enqueued", "job_id", job.ID, "queue_key", q.key)
	return nil
}

// Dequeue blocks on BLPOP, then rehydrates the job row from the database.
func (q *ValkeyQueue) Dequeue(ctx context.Context) (*models.RunJob, error) {
	cmd := q.client.B().Blpop().Key(q.key).Timeout(5).Build()
	result := q.client.Do(ctx, cmd)

	values, err := result.AsStrSlice()
	if err != nil {
		// BLPOP timed out with an empty queue; not an error.
		return nil, context.DeadlineExceeded
	}
	if len(values) < 2 {
		return nil, fmt.Errorf("invalid BLPOP result: expected 2 values, got %d", len(values))
	}

	var payload map[string]string
	if err := json.Unmarshal([]byte(values[1]), &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job data: %w", err)
	}

	jobID, err := uuid.Parse(payload["id"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse job ID: %w", err)
	}

	var job models.RunJob
	if err := q.db.WithContext(ctx).First(&job, "id = ?", jobID).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch run job from database: %w", err)
	}

	slog.Debug("Run job dequeued", "job_id", job.ID)
	return &job, nil
}

// Close closes the Valkey connection
func (q *ValkeyQueue) Close() error {
	q.client.Close()
	slog.Info("Valkey queue closed")
	return nil
}
