package retry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"slackrelay/core"
)

const (
	defaultMaxAttempts    = 5
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 30 * time.Second
	defaultMaxElapsed     = 2 * time.Minute
)

// Config bounds a single wrapped call
type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxElapsed     time.Duration
}

// Executor wraps outbound API calls with classification-aware retry.
// Transient failures are retried with exponential backoff and jitter;
// permanent failures surface immediately. A rate-limit response's advertised
// wait is honored exactly, taking precedence over computed backoff.
// The executor holds no per-call state, so it is safe for concurrent use.
type Executor struct {
	config Config
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewExecutor(config Config) *Executor {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaultMaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaultInitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaultMaxBackoff
	}
	if config.MaxElapsed <= 0 {
		config.MaxElapsed = defaultMaxElapsed
	}
	return &Executor{
		config: config,
		sleep:  sleepContext,
	}
}

// Do runs fn until it succeeds, fails permanently, or the retry budget
// (attempts or elapsed time) runs out. It returns the number of attempts
// made alongside the terminal error, if any. Exhausted budgets wrap
// core.ErrRetryBudgetExhausted so callers can treat them as permanent.
func (e *Executor) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) (int, error) {
	started := time.Now()

	var lastErr error
	attempt := 0
	for attempt < e.config.MaxAttempts {
		attempt++
		err := fn(ctx)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if !core.IsTransient(err) {
			log.Printf("❌ %s failed permanently on attempt %d: %v", operation, attempt, err)
			return attempt, fmt.Errorf("%s failed: %w", operation, err)
		}

		if attempt == e.config.MaxAttempts {
			break
		}

		wait := e.backoff(attempt, err)
		if time.Since(started)+wait > e.config.MaxElapsed {
			log.Printf("⚠️ %s exceeded max elapsed retry time after attempt %d", operation, attempt)
			break
		}

		log.Printf("🔄 %s failed transiently on attempt %d, retrying in %s: %v",
			operation, attempt, wait, err)
		if err := e.sleep(ctx, wait); err != nil {
			return attempt, fmt.Errorf("%s cancelled during backoff: %w", operation, err)
		}
	}

	return attempt, fmt.Errorf("%s failed: %w", operation,
		errors.Join(core.ErrRetryBudgetExhausted, lastErr))
}

// backoff computes the wait before the next attempt. A rate-limit wait
// advertised by the API wins over the computed exponential backoff.
func (e *Executor) backoff(attempt int, err error) time.Duration {
	var apiErr *core.APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter
	}

	backoff := e.config.InitialBackoff << (attempt - 1)
	if backoff > e.config.MaxBackoff || backoff <= 0 {
		backoff = e.config.MaxBackoff
	}

	// Jitter in [0.5, 1.5) spreads out retries from concurrent callers
	jittered := time.Duration(float64(backoff) * (0.5 + rand.Float64()))
	if jittered > e.config.MaxBackoff {
		jittered = e.config.MaxBackoff
	}
	return jittered
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
