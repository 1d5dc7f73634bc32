package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

const DefaultMaxAttempts = 3

var ErrExhausted = errors.New("retry attempts exhausted")

// BackoffFunc returns how long to wait after the given failed attempt
// (0-based) before the next one.
type BackoffFunc func(attempt int) time.Duration

// Policy bounds an operation to MaxAttempts tries with Backoff between them.
type Policy struct {
	MaxAttempts int
	Backoff     BackoffFunc
	// Sleep defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called after a failed attempt that will be retried.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Do runs op until it succeeds, the attempts run out, or ctx is done.
// On exhaustion the last error is returned, wrapped with ErrExhausted.
func Do(ctx context.Context, p Policy, op func(ctx context.Context, attempt int) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	backoff := p.Backoff
	if backoff == nil {
		backoff = NoDelay
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}

		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == maxAttempts-1 {
			break
		}

		wait := backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, lastErr)
		}
		if err := sleep(ctx, wait); err != nil {
			return fmt.Errorf("%w (last error: %v)", err, lastErr)
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, maxAttempts, lastErr)
}

// ExponentialJitter waits 2^attempt seconds plus a uniform 1-3s jitter.
// A nil rng uses the global source.
func ExponentialJitter(rng *rand.Rand) BackoffFunc {
	return func(attempt int) time.Duration {
		jitter := 1 + 2*float64Of(rng)
		seconds := math.Pow(2, float64(attempt)) + jitter
		return time.Duration(seconds * float64(time.Second))
	}
}

func NoDelay(int) time.Duration { return 0 }

func float64Of(rng *rand.Rand) float64 {
	if rng == nil {
		return rand.Float64()
	}
	return rng.Float64()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
