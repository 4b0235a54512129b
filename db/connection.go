package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	// necessary import to wire up the postgres driver
	_ "github.com/lib/pq"
)

const (
	redisConnectAttempts = 3
	redisConnectInterval = 5 * time.Second
)

// ConnectRedis establishes a connection to the Redis server behind the queue,
// the schedule and the idempotency records. It retries a few times before
// giving up so the relay survives Redis coming up slightly later than it does.
func ConnectRedis(ctx context.Context, connectionURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(connectionURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis connection url: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < redisConnectAttempts; attempt++ {
		client := redis.NewClient(opts)
		err := client.Ping(ctx).Err()
		if err == nil {
			return client, nil
		}
		lastErr = err
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("redis connection cancelled: %w", ctx.Err())
		case <-time.After(redisConnectInterval):
		}
	}

	return nil, fmt.Errorf("failed to connect to redis: %w", lastErr)
}

// NewPostgresConnection opens the optional dead-letter archive database
func NewPostgresConnection(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
