package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slackrelay/core"
)

func newTestExecutor(maxAttempts int) *Executor {
	return NewExecutor(Config{
		MaxAttempts:    maxAttempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		MaxElapsed:     time.Second,
	})
}

func TestExecutorDo(t *testing.T) {
	ctx := context.Background()

	t.Run("SuccessFirstAttempt", func(t *testing.T) {
		executor := newTestExecutor(5)

		calls := 0
		attempts, err := executor.Do(ctx, "op", func(ctx context.Context) error {
			calls++
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 1, attempts)
		assert.Equal(t, 1, calls)
	})

	t.Run("TransientRetriedUntilSuccess", func(t *testing.T) {
		executor := newTestExecutor(5)

		calls := 0
		attempts, err := executor.Do(ctx, "op", func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return core.NewTransientError(errors.New("connection reset"))
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
		assert.Equal(t, 3, calls)
	})

	t.Run("PermanentNotRetried", func(t *testing.T) {
		executor := newTestExecutor(5)

		calls := 0
		attempts, err := executor.Do(ctx, "op", func(ctx context.Context) error {
			calls++
			return core.NewPermanentError(errors.New("channel_not_found"))
		})

		require.Error(t, err)
		assert.Equal(t, 1, attempts)
		assert.Equal(t, 1, calls)
		assert.False(t, errors.Is(err, core.ErrRetryBudgetExhausted))
		assert.False(t, core.IsTransient(err))
	})

	t.Run("TransientBudgetExhausted", func(t *testing.T) {
		executor := newTestExecutor(3)

		calls := 0
		attempts, err := executor.Do(ctx, "op", func(ctx context.Context) error {
			calls++
			return core.NewTransientError(errors.New("503"))
		})

		require.Error(t, err)
		assert.Equal(t, 3, attempts)
		assert.Equal(t, 3, calls)
		assert.True(t, errors.Is(err, core.ErrRetryBudgetExhausted))
		assert.Equal(t, core.FailureKindPermanent, core.Classification(err))
	})

	t.Run("UnclassifiedErrorTreatedAsTransient", func(t *testing.T) {
		executor := newTestExecutor(2)

		calls := 0
		_, err := executor.Do(ctx, "op", func(ctx context.Context) error {
			calls++
			return errors.New("dial tcp: connection refused")
		})

		require.Error(t, err)
		assert.Equal(t, 2, calls)
		assert.True(t, errors.Is(err, core.ErrRetryBudgetExhausted))
	})

	t.Run("RateLimitWaitHonoredExactly", func(t *testing.T) {
		executor := newTestExecutor(3)

		var waits []time.Duration
		executor.sleep = func(ctx context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		}

		retryAfter := 7 * time.Second
		calls := 0
		_, err := executor.Do(ctx, "op", func(ctx context.Context) error {
			calls++
			if calls == 1 {
				return core.NewRateLimitedError(errors.New("ratelimited"), retryAfter)
			}
			return nil
		})

		require.NoError(t, err)
		require.Len(t, waits, 1)
		assert.Equal(t, retryAfter, waits[0])
	})

	t.Run("BackoffGrowsWithJitter", func(t *testing.T) {
		executor := NewExecutor(Config{
			MaxAttempts:    4,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     time.Minute,
			MaxElapsed:     time.Hour,
		})

		var waits []time.Duration
		executor.sleep = func(ctx context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		}

		_, err := executor.Do(ctx, "op", func(ctx context.Context) error {
			return core.NewTransientError(errors.New("503"))
		})

		require.Error(t, err)
		require.Len(t, waits, 3)
		// Each wait stays within the jitter envelope of its exponential step
		for i, wait := range waits {
			base := 100 * time.Millisecond << i
			assert.GreaterOrEqual(t, wait, base/2, "wait %d below jitter floor", i)
			assert.Less(t, wait, base+base/2+time.Millisecond, "wait %d above jitter ceiling", i)
		}
	})

	t.Run("MaxElapsedStopsRetrying", func(t *testing.T) {
		executor := NewExecutor(Config{
			MaxAttempts:    10,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     200 * time.Millisecond,
			MaxElapsed:     50 * time.Millisecond,
		})

		calls := 0
		_, err := executor.Do(ctx, "op", func(ctx context.Context) error {
			calls++
			return core.NewTransientError(errors.New("503"))
		})

		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.True(t, errors.Is(err, core.ErrRetryBudgetExhausted))
	})

	t.Run("CancelledDuringBackoff", func(t *testing.T) {
		executor := NewExecutor(Config{
			MaxAttempts:    5,
			InitialBackoff: time.Minute,
			MaxBackoff:     time.Minute,
			MaxElapsed:     time.Hour,
		})

		cancelCtx, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		_, err := executor.Do(cancelCtx, "op", func(ctx context.Context) error {
			return core.NewTransientError(errors.New("503"))
		})

		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
	})
}
