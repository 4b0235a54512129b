package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/mo"
)

// RedisQueueRepository reads command envelopes from a Redis list. Producers
// append to the tail; the relay pops from the head so arrival order per
// queue is preserved.
type RedisQueueRepository struct {
	client *redis.Client
}

func NewRedisQueueRepository(client *redis.Client) *RedisQueueRepository {
	return &RedisQueueRepository{
		client: client,
	}
}

// Pop blocks for up to timeout waiting for the next raw envelope on key.
// Returns None when the wait timed out with the queue still empty.
func (r *RedisQueueRepository) Pop(
	ctx context.Context,
	key string,
	timeout time.Duration,
) (mo.Option[string], error) {
	result, err := r.client.BLPop(ctx, timeout, key).Result()
	if errors.Is(err, redis.Nil) {
		return mo.None[string](), nil
	}
	if err != nil {
		return mo.None[string](), fmt.Errorf("failed to pop from queue %s: %w", key, err)
	}

	// result[0] is the key, result[1] is the value
	if len(result) < 2 {
		return mo.None[string](), fmt.Errorf("unexpected BLPOP result shape for queue %s", key)
	}

	return mo.Some(result[1]), nil
}

// Requeue puts a popped entry back at the head of its queue so it is the
// next entry consumed. Used on shutdown for entries popped but not yet
// durably acted upon.
func (r *RedisQueueRepository) Requeue(ctx context.Context, key, payload string) error {
	if err := r.client.LPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("failed to requeue entry on %s: %w", key, err)
	}
	return nil
}
