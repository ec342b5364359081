package ratelimit

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/runforge/runforge/internal/config"
	"github.com/runforge/runforge/internal/db"
	"github.com/runforge/runforge/internal/models"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := db.New(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(database); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return database
}

func TestReserveMissingCounterIsUnlimited(t *testing.T) {
	database := setupTestDB(t)
	limiter := New(database)

	// No counter provisioned: every reservation succeeds.
	id := uuid.New()
	for i := 0; i < 50; i++ {
		if err := limiter.Reserve(context.Background(), id); err != nil {
			t.Fatalf("reserve %d failed: %v", i, err)
		}
	}
}

func TestReserveExhaustsQuota(t *testing.T) {
	database := setupTestDB(t)
	limiter := New(database)
	ctx := context.Background()
	id := uuid.New()

	if err := limiter.Provision(ctx, id, 2); err != nil {
		t.Fatalf("provision failed: %v", err)
	}

	if err := limiter.Reserve(ctx, id); err != nil {
		t.Fatalf("first reserve failed: %v", err)
	}
	if err := limiter.Reserve(ctx, id); err != nil {
		t.Fatalf("second reserve failed: %v", err)
	}
	if err := limiter.Reserve(ctx, id); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("third reserve err = %v, want ErrLimitExceeded", err)
	}

	// A rejected attempt must not consume quota bookkeeping.
	var counter models.RateLimitCounter
	if err := database.Where("instance_id = ?", id).First(&counter).Error; err != nil {
		t.Fatalf("counter lookup failed: %v", err)
	}
	if counter.CurrentCount != 2 {
		t.Errorf("current_count = %d, want 2", counter.CurrentCount)
	}
}

func TestProvisionIsIdempotent(t *testing.T) {
	database := setupTestDB(t)
	limiter := New(database)
	ctx := context.Background()
	id := uuid.New()

	if err := limiter.Provision(ctx, id, 5); err != nil {
		t.Fatalf("first provision failed: %v", err)
	}
	if err := limiter.Reserve(ctx, id); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	// Re-provisioning must not reset the count or change the limit.
	if err := limiter.Provision(ctx, id, 100); err != nil {
		t.Fatalf("second provision failed: %v", err)
	}

	var counter models.RateLimitCounter
	database.Where("instance_id = ?", id).First(&counter)
	if counter.MaxPerDay != 5 {
		t.Errorf("max_per_day = %d, want 5", counter.MaxPerDay)
	}
	if counter.CurrentCount != 1 {
		t.Errorf("current_count = %d, want 1", counter.CurrentCount)
	}
}

func TestReserveSlidingWindowReset(t *testing.T) {
	database := setupTestDB(t)
	limiter := New(database)
	ctx := context.Background()
	id := uuid.New()

	past := time.Now().UTC().Add(-time.Hour)
	counter := models.RateLimitCounter{
		InstanceID:   id,
		MaxPerDay:    3,
		CurrentCount: 3,
		ResetAt:      &past,
	}
	if err := database.Create(&counter).Error; err != nil {
		t.Fatalf("failed to seed counter: %v", err)
	}

	before := time.Now().UTC()
	if err := limiter.Reserve(ctx, id); err != nil {
		t.Fatalf("reserve after window expiry failed: %v", err)
	}

	var updated models.RateLimitCounter
	database.Where("instance_id = ?", id).First(&updated)
	if updated.CurrentCount != 1 {
		t.Errorf("current_count = %d, want 1 after reset", updated.CurrentCount)
	}
	// The window slides: reset_at is stamped to the reset moment, not to the
	// next day boundary.
	if updated.ResetAt == nil || updated.ResetAt.Before(before.Add(-time.Minute)) {
		t.Errorf("reset_at = %v, want near %v", updated.ResetAt, before)
	}
	if updated.ResetAt.After(before.Add(time.Minute)) {
		t.Errorf("reset_at = %v is in the future; window must slide to now", updated.ResetAt)
	}
}

func TestReleaseReturnsReservedSlot(t *testing.T) {
	database := setupTestDB(t)
	limiter := New(database)
	ctx := context.Background()
	id := uuid.New()

	if err := limiter.Provision(ctx, id, 1); err != nil {
		t.Fatalf("provision failed: %v", err)
	}
	if err := limiter.Reserve(ctx, id); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := limiter.Release(ctx, id); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	// The returned slot is usable again.
	if err := limiter.Reserve(ctx, id); err != nil {
		t.Fatalf("reserve after release failed: %v", err)
	}
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	database := setupTestDB(t)
	limiter := New(database)
	ctx := context.Background()
	id := uuid.New()

	if err := limiter.Provision(ctx, id, 1); err != nil {
		t.Fatalf("provision failed: %v", err)
	}
	if err := limiter.Release(ctx, id); err != nil {
		t.Fatalf("release on empty counter failed: %v", err)
	}

	var counter models.RateLimitCounter
	database.Where("instance_id = ?", id).First(&counter)
	if counter.CurrentCount != 0 {
		t.Errorf("current_count = %d, want 0", counter.CurrentCount)
	}

	// Missing counter: no-op, mirroring Reserve.
	if err := limiter.Release(ctx, uuid.New()); err != nil {
		t.Fatalf("release without counter failed: %v", err)
	}
}

func TestReserveConcurrentSingleSlot(t *testing.T) {
	database := setupTestDB(t)
	limiter := New(database)
	ctx := context.Background()
	id := uuid.New()

	if err := limiter.Provision(ctx, id, 1); err != nil {
		t.Fatalf("provision failed: %v", err)
	}

	const attempts = 5
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- limiter.Reserve(ctx, id)
		}()
	}
	wg.Wait()
	close(results)

	var succeeded int
	for err := range results {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, ErrLimitExceeded) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("succeeded = %d, want exactly 1", succeeded)
	}
}
