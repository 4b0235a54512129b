package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type SlackConfig struct {
	BotToken string
}

type RedisConfig struct {
	URL               string
	MessagesKey       string
	ReactionsKey      string
	ScheduleKey       string
	DeadLetterKey     string
	IdempotencyPrefix string
}

type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxElapsed     time.Duration
}

type SchedulerConfig struct {
	MaxAttempts  int
	RetryDelay   time.Duration
	MaxInFlight  int
	PollInterval time.Duration
}

type HTTPConfig struct {
	Addr               string
	CORSAllowedOrigins string
}

// IsConfigured returns true if the ingestion HTTP server should be started
func (c HTTPConfig) IsConfigured() bool {
	return c.Addr != ""
}

type DeadLetterArchiveConfig struct {
	DatabaseURL string
	Table       string
}

// IsConfigured returns true if dead letters should also be archived to Postgres
func (c DeadLetterArchiveConfig) IsConfigured() bool {
	return c.DatabaseURL != ""
}

type AppConfig struct {
	SlackConfig       SlackConfig
	RedisConfig       RedisConfig
	RetryConfig       RetryConfig
	SchedulerConfig   SchedulerConfig
	HTTPConfig        HTTPConfig
	DeadLetterArchive DeadLetterArchiveConfig

	IdempotencyWindow time.Duration
}

func LoadConfig() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("⚠️ Could not load .env file, continuing with system env vars")
	}

	slackToken, err := getEnvRequired("SLACK_BOT_TOKEN")
	if err != nil {
		return nil, err
	}

	redisURL, err := getEnvRequired("REDIS_URL")
	if err != nil {
		return nil, err
	}

	idempotencyWindow, err := getEnvDuration("IDEMPOTENCY_WINDOW", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	retryConfig, err := loadRetryConfig()
	if err != nil {
		return nil, err
	}

	schedulerConfig, err := loadSchedulerConfig()
	if err != nil {
		return nil, err
	}

	return &AppConfig{
		SlackConfig: SlackConfig{
			BotToken: slackToken,
		},
		RedisConfig: RedisConfig{
			URL:               redisURL,
			MessagesKey:       getEnvWithDefault("REDIS_MESSAGES_KEY", "slack_messages"),
			ReactionsKey:      getEnvWithDefault("REDIS_REACTIONS_KEY", "slack_reactions"),
			ScheduleKey:       getEnvWithDefault("SCHEDULE_KEY", "timebomb:schedule"),
			DeadLetterKey:     getEnvWithDefault("DEADLETTER_KEY", "timebomb:deadletters"),
			IdempotencyPrefix: getEnvWithDefault("IDEMPOTENCY_PREFIX", "idempotency:"),
		},
		RetryConfig:     retryConfig,
		SchedulerConfig: schedulerConfig,
		HTTPConfig: HTTPConfig{
			Addr:               getEnvWithDefault("HTTP_ADDR", ""),
			CORSAllowedOrigins: getEnvWithDefault("CORS_ALLOWED_ORIGINS", "*"),
		},
		DeadLetterArchive: DeadLetterArchiveConfig{
			DatabaseURL: getEnvWithDefault("DEADLETTER_DB_URL", ""),
			Table:       getEnvWithDefault("DEADLETTER_DB_TABLE", "dead_letters"),
		},
		IdempotencyWindow: idempotencyWindow,
	}, nil
}

func loadRetryConfig() (RetryConfig, error) {
	maxAttempts, err := getEnvInt("RETRY_MAX_ATTEMPTS", 5)
	if err != nil {
		return RetryConfig{}, err
	}
	initialBackoff, err := getEnvDuration("RETRY_INITIAL_BACKOFF", 500*time.Millisecond)
	if err != nil {
		return RetryConfig{}, err
	}
	maxBackoff, err := getEnvDuration("RETRY_MAX_BACKOFF", 30*time.Second)
	if err != nil {
		return RetryConfig{}, err
	}
	maxElapsed, err := getEnvDuration("RETRY_MAX_ELAPSED", 2*time.Minute)
	if err != nil {
		return RetryConfig{}, err
	}
	return RetryConfig{
		MaxAttempts:    maxAttempts,
		InitialBackoff: initialBackoff,
		MaxBackoff:     maxBackoff,
		MaxElapsed:     maxElapsed,
	}, nil
}

func loadSchedulerConfig() (SchedulerConfig, error) {
	maxAttempts, err := getEnvInt("SCHEDULER_MAX_ATTEMPTS", 15)
	if err != nil {
		return SchedulerConfig{}, err
	}
	retryDelay, err := getEnvDuration("SCHEDULER_RETRY_DELAY", 30*time.Second)
	if err != nil {
		return SchedulerConfig{}, err
	}
	maxInFlight, err := getEnvInt("SCHEDULER_MAX_INFLIGHT", 4)
	if err != nil {
		return SchedulerConfig{}, err
	}
	pollInterval, err := getEnvDuration("SCHEDULER_POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return SchedulerConfig{}, err
	}
	return SchedulerConfig{
		MaxAttempts:  maxAttempts,
		RetryDelay:   retryDelay,
		MaxInFlight:  maxInFlight,
		PollInterval: pollInterval,
	}, nil
}

func getEnvRequired(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s environment variable is required", key)
	}
	return value, nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return value, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 30s or 10m: %w", key, err)
	}
	return value, nil
}
