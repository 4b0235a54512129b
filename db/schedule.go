package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/mo"

	"slackrelay/models"
)

// ScheduleEntry pairs a scheduled deletion with the raw sorted-set member it
// was decoded from. The member is needed to claim the entry atomically.
type ScheduleEntry struct {
	Member   string
	Deletion models.ScheduledDeletion
}

// RedisScheduleRepository is the durable TimeBomb schedule: a sorted set
// keyed by the absolute delete-at time in unix milliseconds. Because every
// pending entry lives in Redis, a restarted relay recovers the full schedule
// by construction.
type RedisScheduleRepository struct {
	client *redis.Client
	key    string
}

func NewRedisScheduleRepository(client *redis.Client, key string) *RedisScheduleRepository {
	return &RedisScheduleRepository{
		client: client,
		key:    key,
	}
}

// Add inserts (or re-inserts, after a failed attempt) a pending deletion
func (r *RedisScheduleRepository) Add(ctx context.Context, deletion *models.ScheduledDeletion) error {
	member, err := json.Marshal(deletion)
	if err != nil {
		return fmt.Errorf("failed to marshal scheduled deletion: %w", err)
	}

	err = r.client.ZAdd(ctx, r.key, redis.Z{
		Score:  float64(deletion.DeleteAt.UnixMilli()),
		Member: string(member),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to add scheduled deletion: %w", err)
	}
	return nil
}

// DueBefore returns up to limit entries whose delete-at time has passed.
// Entries are returned in due order so a backlog left by an outage is
// drained oldest-first.
func (r *RedisScheduleRepository) DueBefore(
	ctx context.Context,
	now time.Time,
	limit int64,
) ([]ScheduleEntry, error) {
	members, err := r.client.ZRangeByScore(ctx, r.key, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    strconv.FormatInt(now.UnixMilli(), 10),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read due scheduled deletions: %w", err)
	}

	entries := make([]ScheduleEntry, 0, len(members))
	for _, member := range members {
		var deletion models.ScheduledDeletion
		if err := json.Unmarshal([]byte(member), &deletion); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scheduled deletion %q: %w", member, err)
		}
		entries = append(entries, ScheduleEntry{Member: member, Deletion: deletion})
	}
	return entries, nil
}

// NextDueAt returns the delete-at time of the earliest pending entry
func (r *RedisScheduleRepository) NextDueAt(ctx context.Context) (mo.Option[time.Time], error) {
	results, err := r.client.ZRangeWithScores(ctx, r.key, 0, 0).Result()
	if err != nil {
		return mo.None[time.Time](), fmt.Errorf("failed to read next due deletion: %w", err)
	}
	if len(results) == 0 {
		return mo.None[time.Time](), nil
	}
	return mo.Some(time.UnixMilli(int64(results[0].Score))), nil
}

// Claim removes the entry from the schedule, transitioning it to firing.
// ZREM is atomic, so exactly one of any concurrent claimants wins and two
// workers can never double-fire the same deletion.
func (r *RedisScheduleRepository) Claim(ctx context.Context, member string) (bool, error) {
	removed, err := r.client.ZRem(ctx, r.key, member).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim scheduled deletion: %w", err)
	}
	return removed == 1, nil
}
