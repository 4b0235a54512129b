package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"slackrelay/models"
)

// DeadLetterRepository retains permanently failed work for manual inspection
// and replay. Nothing is ever dropped silently: every terminal failure ends
// up here.
type DeadLetterRepository interface {
	Record(ctx context.Context, letter *models.DeadLetter) error
	List(ctx context.Context, limit int64) ([]*models.DeadLetter, error)
}

// RedisDeadLetterRepository is the default sink: a Redis list next to the
// queues the dead work arrived on.
type RedisDeadLetterRepository struct {
	client *redis.Client
	key    string
}

func NewRedisDeadLetterRepository(client *redis.Client, key string) *RedisDeadLetterRepository {
	return &RedisDeadLetterRepository{
		client: client,
		key:    key,
	}
}

func (r *RedisDeadLetterRepository) Record(ctx context.Context, letter *models.DeadLetter) error {
	raw, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}
	if err := r.client.RPush(ctx, r.key, string(raw)).Err(); err != nil {
		return fmt.Errorf("failed to record dead letter: %w", err)
	}
	return nil
}

func (r *RedisDeadLetterRepository) List(ctx context.Context, limit int64) ([]*models.DeadLetter, error) {
	raws, err := r.client.LRange(ctx, r.key, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}

	letters := make([]*models.DeadLetter, 0, len(raws))
	for _, raw := range raws {
		var letter models.DeadLetter
		if err := json.Unmarshal([]byte(raw), &letter); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dead letter: %w", err)
		}
		letters = append(letters, &letter)
	}
	return letters, nil
}

// MultiDeadLetterRepository fans records out to every configured sink.
// List reads from the first sink only.
type MultiDeadLetterRepository struct {
	repos []DeadLetterRepository
}

func NewMultiDeadLetterRepository(repos ...DeadLetterRepository) *MultiDeadLetterRepository {
	return &MultiDeadLetterRepository{
		repos: repos,
	}
}

func (r *MultiDeadLetterRepository) Record(ctx context.Context, letter *models.DeadLetter) error {
	for _, repo := range r.repos {
		if err := repo.Record(ctx, letter); err != nil {
			return err
		}
	}
	return nil
}

func (r *MultiDeadLetterRepository) List(ctx context.Context, limit int64) ([]*models.DeadLetter, error) {
	if len(r.repos) == 0 {
		return nil, nil
	}
	return r.repos[0].List(ctx, limit)
}
