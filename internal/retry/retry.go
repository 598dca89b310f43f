// Package retry runs fallible operations with exponential backoff.
package retry

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultRetries      = 5
	DefaultInitialDelay = 1 * time.Second
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy bounds a retry sequence. The delay before retry i (0-indexed) is
// InitialDelay * 2^i. There is no jitter and no cap, so Retries must stay small.
type Policy struct {
	Retries      int
	InitialDelay time.Duration
	Sleep        SleepFunc
	Logger       *slog.Logger
}

// DefaultPolicy returns 5 retries starting at one second.
func DefaultPolicy() Policy {
	return Policy{
		Retries:      DefaultRetries,
		InitialDelay: DefaultInitialDelay,
	}
}

// Do runs op once and then up to p.Retries more times while it fails.
// The final failure is returned unchanged. Each call keeps its own counter.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	delay := p.InitialDelay
	remaining := p.Retries
	for attempt := 1; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if remaining <= 0 {
			if p.Retries > 0 {
				logger.Error("Operation failed after all retries.", "attempts", attempt, "error", err)
			}
			return result, err
		}

		logger.Warn(
			"Operation failed, will retry.",
			"attempt", attempt,
			"retriesLeft", remaining,
			"backoff", delay.String(),
			"error", err,
		)
		if serr := sleep(ctx, delay); serr != nil {
			logger.Error("Context cancelled during backoff. Aborting retries.", "error", serr)
			return result, err
		}
		delay *= 2
		remaining--
	}
}

// Sleep is the default SleepFunc backed by a timer.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
