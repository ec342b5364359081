// Package retry provides a cancellable timed-retry primitive: an initial
// grace period, a fixed interval, a maximum attempt count, and an early
// exit as soon as an attempt yields a result.
package retry

import (
	"context"
	"log/slog"
	"time"
)

// Config bounds a polling loop.
type Config struct {
	Grace       time.Duration // wait before the first attempt
	Interval    time.Duration // delay between attempts
	MaxAttempts int
}

// Poll runs fn up to cfg.MaxAttempts times. fn reports done=true with its
// value to stop early; an error from fn is swallowed and counted as a
// non-result, and the loop continues. Poll returns done=false with a nil
// error when all attempts are exhausted, and the context error if the
// caller cancels mid-loop.
func Poll[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, bool, error)) (T, bool, error) {
	var zero T

	if cfg.Grace > 0 {
		if err := sleep(ctx, cfg.Grace); err != nil {
			return zero, false, err
		}
	}

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		value, done, err := fn(ctx)
		if err != nil {
			slog.Debug("Poll attempt failed", "attempt", attempt, "max_attempts", cfg.MaxAttempts, "error", err)
		} else if done {
			return value, true, nil
		}

		if attempt < cfg.MaxAttempts {
			if err := sleep(ctx, cfg.Interval); err != nil {
				return zero, false, err
			}
		}
	}

	return zero, false, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
