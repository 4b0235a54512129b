package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/mo"

	"slackrelay/models"
)

// RedisIdempotencyRepository stores idempotency records as plain keys with a
// TTL equal to the idempotency window, so expiry bounds growth without any
// cleanup loop.
type RedisIdempotencyRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisIdempotencyRepository(client *redis.Client, prefix string) *RedisIdempotencyRepository {
	return &RedisIdempotencyRepository{
		client: client,
		prefix: prefix,
	}
}

// Get returns the live record for key, if any
func (r *RedisIdempotencyRepository) Get(
	ctx context.Context,
	key string,
) (mo.Option[*models.IdempotencyRecord], error) {
	raw, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return mo.None[*models.IdempotencyRecord](), nil
	}
	if err != nil {
		return mo.None[*models.IdempotencyRecord](), fmt.Errorf("failed to get idempotency record: %w", err)
	}

	var record models.IdempotencyRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return mo.None[*models.IdempotencyRecord](), fmt.Errorf("failed to unmarshal idempotency record: %w", err)
	}
	return mo.Some(&record), nil
}

// Insert stores the record unless a live one already exists (SET NX EX, a
// single conditional insert). Returns false when a record was already there.
func (r *RedisIdempotencyRepository) Insert(
	ctx context.Context,
	record *models.IdempotencyRecord,
	window time.Duration,
) (bool, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("failed to marshal idempotency record: %w", err)
	}

	inserted, err := r.client.SetNX(ctx, r.prefix+record.Key, string(raw), window).Result()
	if err != nil {
		return false, fmt.Errorf("failed to insert idempotency record: %w", err)
	}
	return inserted, nil
}
