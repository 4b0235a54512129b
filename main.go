package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"slackrelay/clients/slack"
	"slackrelay/config"
	"slackrelay/db"
	"slackrelay/handlers"
	"slackrelay/services/dispatcher"
	"slackrelay/services/envelopes"
	"slackrelay/services/idempotency"
	"slackrelay/services/retry"
	"slackrelay/services/timebomb"
	"slackrelay/usecases/relay"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("🔌 Connecting to Redis...")
	redisClient, err := db.ConnectRedis(ctx, cfg.RedisConfig.URL)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	log.Printf("✅ Connected to Redis")

	slackClient := slack.NewSlackClient(cfg.SlackConfig.BotToken)
	if err := slackClient.AuthTest(ctx); err != nil {
		return err
	}
	log.Printf("✅ Slack authentication successful")

	executor := retry.NewExecutor(retry.Config{
		MaxAttempts:    cfg.RetryConfig.MaxAttempts,
		InitialBackoff: cfg.RetryConfig.InitialBackoff,
		MaxBackoff:     cfg.RetryConfig.MaxBackoff,
		MaxElapsed:     cfg.RetryConfig.MaxElapsed,
	})

	scheduleRepo := db.NewRedisScheduleRepository(redisClient, cfg.RedisConfig.ScheduleKey)
	queueRepo := db.NewRedisQueueRepository(redisClient)
	idempotencyRepo := db.NewRedisIdempotencyRepository(redisClient, cfg.RedisConfig.IdempotencyPrefix)

	var deadLetterRepo db.DeadLetterRepository = db.NewRedisDeadLetterRepository(
		redisClient, cfg.RedisConfig.DeadLetterKey)
	if cfg.DeadLetterArchive.IsConfigured() {
		pgConn, err := db.NewPostgresConnection(cfg.DeadLetterArchive.DatabaseURL)
		if err != nil {
			return err
		}
		defer pgConn.Close()
		log.Printf("✅ Dead-letter archive database connected")
		deadLetterRepo = db.NewMultiDeadLetterRepository(
			deadLetterRepo,
			db.NewPostgresDeadLetterRepository(pgConn, cfg.DeadLetterArchive.Table),
		)
	}

	scheduler := timebomb.NewScheduler(scheduleRepo, deadLetterRepo, slackClient, executor, timebomb.Config{
		MaxAttempts:  cfg.SchedulerConfig.MaxAttempts,
		RetryDelay:   cfg.SchedulerConfig.RetryDelay,
		MaxInFlight:  cfg.SchedulerConfig.MaxInFlight,
		PollInterval: cfg.SchedulerConfig.PollInterval,
	})

	commandDispatcher := dispatcher.NewDispatcher(slackClient, executor, scheduler)
	guard := idempotency.NewGuard(idempotencyRepo, cfg.IdempotencyWindow)
	codec := envelopes.NewCodec()

	// One consumer per queue key, composed into a single process
	queueKeys := []string{cfg.RedisConfig.MessagesKey, cfg.RedisConfig.ReactionsKey}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.Run(ctx)
	}()

	for _, queueKey := range queueKeys {
		poller := relay.NewPoller(queueRepo, codec, guard, commandDispatcher, deadLetterRepo, queueKey)
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(ctx)
		}()
	}

	var server *http.Server
	if cfg.HTTPConfig.IsConfigured() {
		handler := handlers.NewMessagesHandler(codec, guard, commandDispatcher, deadLetterRepo,
			func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			})

		router := mux.NewRouter()
		handler.SetupEndpoints(router)

		corsMiddleware := cors.New(cors.Options{
			AllowedOrigins: []string{cfg.HTTPConfig.CORSAllowedOrigins},
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
		})

		server = &http.Server{
			Addr:              cfg.HTTPConfig.Addr,
			Handler:           corsMiddleware.Handler(router),
			ReadHeaderTimeout: 30 * time.Second,
		}

		go func() {
			log.Printf("🌐 Ingestion server listening on %s", cfg.HTTPConfig.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("❌ HTTP server error: %v", err)
			}
		}()
	}

	log.Printf("🚀 Relay running, consuming queues: %v", queueKeys)
	<-ctx.Done()
	log.Printf("🛑 Shutting down gracefully...")

	// Pollers and scheduler stop at their next safe checkpoint, finishing
	// in-flight work first
	wg.Wait()

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("❌ Error shutting down HTTP server: %v", err)
		}
	}

	log.Printf("👋 Shutdown complete")
	return nil
}
