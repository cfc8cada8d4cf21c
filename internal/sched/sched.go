// Package sched runs the background loops: stage sweep, promo nudge,
// daily thread reset and the admin report.
package sched

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const errBackoff = 5 * time.Second

// Run executes fn every interval until ctx is cancelled. A panicking or
// failing iteration is logged and the loop continues after a backoff;
// one bad tick never kills the loop.
func Run(ctx context.Context, logger *zap.Logger, name string, interval time.Duration, fn func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := runOnce(ctx, logger, name, fn); err != nil {
			logger.Error("loop iteration failed",
				zap.String("loop", name),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(errBackoff):
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func runOnce(ctx context.Context, logger *zap.Logger, name string, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("loop iteration panicked",
				zap.String("loop", name),
				zap.Any("panic", r))
		}
	}()
	return fn(ctx)
}

// sleepUntil blocks until the given wall-clock time or ctx cancellation.
func sleepUntil(ctx context.Context, t time.Time) error {
	timer := time.NewTimer(time.Until(t))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
