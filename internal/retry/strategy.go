// Package retry implements the strategy-driven, cancellation-aware retry
// engine used by the LLM pass runner and the TTS worker pool.
package retry

import (
	"context"
	"time"

	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// Strategy decides whether a failed operation should be retried and how
// long to wait before the next attempt. attempt is zero-based: the first
// retry call happens with attempt == 0, right after the first failure.
type Strategy interface {
	MaxAttempts() int // 0 means unbounded
	ShouldRetry(err error, attempt int) bool
	DelayFor(attempt int) time.Duration
}

// Execute runs op, consulting strategy on every failure, sleeping in a
// cancellation-aware way between attempts. It returns the first success, or
// the last error once the strategy gives up.
func Execute(ctx context.Context, strategy Strategy, op func(ctx context.Context) error) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return types.NewConversionError(types.ErrConversionCancelled, "retry aborted before attempt", err)
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		if types.IsCancelled(err) {
			return err
		}

		max := strategy.MaxAttempts()
		if max > 0 && attempt >= max {
			return err
		}
		if !strategy.ShouldRetry(err, attempt) {
			return err
		}

		delay := strategy.DelayFor(attempt)
		if sleepErr := sleepCancellable(ctx, delay); sleepErr != nil {
			return types.NewConversionError(types.ErrConversionCancelled, "retry sleep cancelled", sleepErr)
		}

		attempt++
	}
}

// sleepCancellable sleeps for d, or returns ctx.Err() the moment ctx is
// cancelled, whichever happens first.
func sleepCancellable(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
