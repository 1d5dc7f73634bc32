package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func TestDoSucceedsAfterTwoFailures(t *testing.T) {
	t.Parallel()

	attempts := 0
	var waits []time.Duration
	err := Do(context.Background(), Policy{
		MaxAttempts: 3,
		Backoff:     func(attempt int) time.Duration { return time.Duration(attempt+1) * time.Second },
		Sleep: func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	}, func(_ context.Context, _ int) error {
		attempts++
		if attempts < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)
}

func TestDoReturnsLastErrorAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	attempts := 0
	sleeps := 0
	var retried []int
	err := Do(context.Background(), Policy{
		MaxAttempts: 3,
		Backoff:     NoDelay,
		Sleep: func(context.Context, time.Duration) error {
			sleeps++
			return nil
		},
		OnRetry: func(attempt int, _ time.Duration, _ error) { retried = append(retried, attempt) },
	}, func(_ context.Context, attempt int) error {
		attempts++
		if attempt == 2 {
			return errors.New("final failure")
		}
		return errTransient
	})

	require.Error(t, err)
	require.ErrorIs(t, err, ErrExhausted)
	require.Contains(t, err.Error(), "final failure")
	require.Equal(t, 3, attempts)
	require.Equal(t, 2, sleeps, "no wait after the last attempt")
	require.Equal(t, []int{0, 1}, retried)
}

func TestDoKeepsWrappedCause(t *testing.T) {
	t.Parallel()

	err := Do(context.Background(), Policy{MaxAttempts: 2}, func(context.Context, int) error {
		return errTransient
	})
	require.ErrorIs(t, err, errTransient)
}

func TestDoDefaultsToThreeAttempts(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := Do(context.Background(), Policy{}, func(context.Context, int) error {
		attempts++
		return errTransient
	})
	require.Error(t, err)
	require.Equal(t, DefaultMaxAttempts, attempts)
}

func TestDoStopsWhenContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Do(ctx, Policy{
		MaxAttempts: 5,
		Backoff:     func(int) time.Duration { return time.Hour },
		OnRetry:     func(int, time.Duration, error) { cancel() },
	}, func(context.Context, int) error {
		attempts++
		return errTransient
	})

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, attempts)
}

func TestExponentialJitterBounds(t *testing.T) {
	t.Parallel()

	backoff := ExponentialJitter(rand.New(rand.NewPCG(1, 2)))
	for attempt := 0; attempt < 4; attempt++ {
		base := time.Duration(1<<attempt) * time.Second
		for i := 0; i < 50; i++ {
			wait := backoff(attempt)
			require.GreaterOrEqual(t, wait, base+time.Second)
			require.LessOrEqual(t, wait, base+3*time.Second)
		}
	}
}
