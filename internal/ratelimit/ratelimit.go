// Package ratelimit enforces the per-activation daily run quota.
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/runforge/runforge/internal/models"
	"gorm.io/gorm"
)

// ErrLimitExceeded is returned when the daily quota is exhausted. The
// caller rejects the run before any instance or execution row exists.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// Limiter reserves run slots against RateLimitCounter rows.
type Limiter struct {
	db *gorm.DB
}

// New creates a limiter.
func New(db *gorm.DB) *Limiter {
	return &Limiter{db: db}
}

// Provision creates a counter for an activation if none exists. The first
// window ends a day from now; later windows slide (see Reserve).
func (l *Limiter) Provision(ctx context.Context, instanceID uuid.UUID, maxPerDay int) error {
	var existing models.RateLimitCounter
	err := l.db.WithContext(ctx).Where("instance_id = ?", instanceID).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	resetAt := time.Now().UTC().Add(24 * time.Hour)
	counter := models.RateLimitCounter{
		InstanceID: instanceID,
		MaxPerDay:  maxPerDay,
		ResetAt:    &resetAt,
	}
	if err := l.db.WithContext(ctx).Create(&counter).Error; err != nil {
		return err
	}
	slog.Info("Rate limit counter provisioned", "instance_id", instanceID, "max_per_day", maxPerDay)
	return nil
}

// Reserve atomically claims one run slot for the activation. A missing
// counter silently disables limiting. Returns ErrLimitExceeded when the
// quota is exhausted; nothing is persisted for a rejected attempt beyond
// the window bookkeeping.
//
// The window slides rather than resetting on a day boundary: when the
// stored ResetAt has passed, the count is zeroed and ResetAt is stamped to
// now, not to the next wall-clock day. Known quirk, kept for compatibility.
func (l *Limiter) Reserve(ctx context.Context, instanceID uuid.UUID) error {
	var counter models.RateLimitCounter
	err := l.db.WithContext(ctx).Where("instance_id = ?", instanceID).First(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if counter.ResetAt != nil && now.After(*counter.ResetAt) {
		err := l.db.WithContext(ctx).Model(&models.RateLimitCounter{}).
			Where("id = ?", counter.ID).
			Updates(map[string]interface{}{"current_count": 0, "reset_at": now}).Error
		if err != nil {
			return err
		}
	}

	// Single conditional increment; zero rows affected means the quota is
	// gone. This closes the check-then-increment race under concurrent
	// runs of the same activation.
	res := l.db.WithContext(ctx).Model(&models.RateLimitCounter{}).
		Where("instance_id = ? AND current_count < max_per_day", instanceID).
		UpdateColumn("current_count", gorm.Expr("current_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		slog.Warn("Run blocked by rate limit", "instance_id", instanceID, "max_per_day", counter.MaxPerDay)
		return ErrLimitExceeded
	}
	return nil
}

// Release hands a reserved slot back when the submission is rejected after
// the reservation. A rejected attempt must not consume quota. Conditional
// decrement so the count can never go negative; a missing counter is a
// no-op, mirroring Reserve.
func (l *Limiter) Release(ctx context.Context, instanceID uuid.UUID) error {
	return l.db.WithContext(ctx).Model(&models.RateLimitCounter{}).
		Where("instance_id = ? AND current_count > 0", instanceID).
		UpdateColumn("current_count", gorm.Expr("current_count - 1")).Error
}
