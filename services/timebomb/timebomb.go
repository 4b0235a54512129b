package timebomb

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/samber/mo"

	"slackrelay/clients"
	"slackrelay/core"
	"slackrelay/db"
	"slackrelay/models"
	"slackrelay/services/retry"
)

const (
	defaultMaxAttempts    = 15
	defaultRetryDelay     = 30 * time.Second
	defaultMaxInFlight    = 4
	defaultPollInterval   = 5 * time.Second
	defaultFailureBackoff = 5 * time.Second
	minWakeInterval       = 25 * time.Millisecond
)

// ScheduleRepository is the durable schedule of pending deletions, ordered
// by due time. Claim must be atomic so two workers never fire the same entry.
type ScheduleRepository interface {
	Add(ctx context.Context, deletion *models.ScheduledDeletion) error
	DueBefore(ctx context.Context, now time.Time, limit int64) ([]db.ScheduleEntry, error)
	NextDueAt(ctx context.Context) (mo.Option[time.Time], error)
	Claim(ctx context.Context, member string) (bool, error)
}

// DeadLetterRecorder retains deletions that exhausted their attempts
type DeadLetterRecorder interface {
	Record(ctx context.Context, letter *models.DeadLetter) error
}

// Config bounds the scheduler's retry bookkeeping and concurrency
type Config struct {
	// MaxAttempts caps the cumulative delete API calls per entry before it
	// is dead-lettered
	MaxAttempts int
	// RetryDelay is the additional delay before a rescheduled entry fires again
	RetryDelay time.Duration
	// MaxInFlight bounds concurrent deletions when draining a backlog
	MaxInFlight int
	// PollInterval caps how long the scheduler sleeps with an empty schedule
	PollInterval time.Duration
	// FailureBackoff is the wait after a schedule store failure
	FailureBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = defaultMaxInFlight
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.FailureBackoff <= 0 {
		c.FailureBackoff = defaultFailureBackoff
	}
	return c
}

// Scheduler is the TimeBomb engine. Each entry moves Pending -> Firing ->
// Completed or DeadLettered: pending entries live in the durable schedule,
// a claimed entry is firing, a fired entry is removed, and exhausted entries
// go to the dead-letter store. Nothing is deleted silently on failure.
type Scheduler struct {
	repo        ScheduleRepository
	deadLetters DeadLetterRecorder
	client      clients.MessagingClient
	executor    *retry.Executor
	config      Config
	clock       func() time.Time
}

func NewScheduler(
	repo ScheduleRepository,
	deadLetters DeadLetterRecorder,
	client clients.MessagingClient,
	executor *retry.Executor,
	config Config,
) *Scheduler {
	return &Scheduler{
		repo:        repo,
		deadLetters: deadLetters,
		client:      client,
		executor:    executor,
		config:      config.withDefaults(),
		clock:       time.Now,
	}
}

// Register arms a TimeBomb for a posted message
func (s *Scheduler) Register(ctx context.Context, deletion *models.ScheduledDeletion) error {
	if deletion.Channel == "" {
		return fmt.Errorf("channel cannot be empty")
	}
	if deletion.MessageTS == "" {
		return fmt.Errorf("message ts cannot be empty")
	}
	if deletion.DeleteAt.IsZero() {
		return fmt.Errorf("delete_at cannot be zero")
	}

	if err := s.repo.Add(ctx, deletion); err != nil {
		return fmt.Errorf("failed to register scheduled deletion: %w", err)
	}

	log.Printf("💣 Armed TimeBomb for message %s in channel %s, fires at %s",
		deletion.MessageTS, deletion.Channel, deletion.DeleteAt.Format(time.RFC3339))
	return nil
}

// Run drives the schedule until ctx is cancelled. It wakes on the next due
// entry, fires everything due with bounded concurrency, and backs off and
// retries when the schedule store is unreachable rather than stopping.
// In-flight deletions are completed, not abandoned, before Run returns.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("💣 TimeBomb scheduler started")

	var wg sync.WaitGroup
	inFlight := make(chan struct{}, s.config.MaxInFlight)

	defer func() {
		wg.Wait()
		log.Printf("💣 TimeBomb scheduler stopped")
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		fired, err := s.fireDue(ctx, &wg, inFlight)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("❌ Schedule store unavailable, backing off: %v", err)
			if !s.sleep(ctx, s.config.FailureBackoff) {
				return
			}
			continue
		}

		// Keep draining while there is a due backlog
		if fired > 0 {
			continue
		}

		if !s.sleep(ctx, s.nextWake(ctx)) {
			return
		}
	}
}

// fireDue claims every due entry (up to the in-flight bound) and fires each
// on its own goroutine. Returns how many entries were claimed.
func (s *Scheduler) fireDue(ctx context.Context, wg *sync.WaitGroup, inFlight chan struct{}) (int, error) {
	entries, err := s.repo.DueBefore(ctx, s.clock(), int64(s.config.MaxInFlight))
	if err != nil {
		return 0, err
	}

	fired := 0
	for _, entry := range entries {
		claimed, err := s.repo.Claim(ctx, entry.Member)
		if err != nil {
			return fired, err
		}
		if !claimed {
			// Another worker got there first
			continue
		}

		log.Printf("💣 TimeBomb %s for message %s in channel %s",
			models.ScheduledDeletionStatusFiring, entry.Deletion.MessageTS, entry.Deletion.Channel)

		select {
		case inFlight <- struct{}{}:
		case <-ctx.Done():
			// Claimed but not fired: put it back so it is not lost
			s.reschedule(ctx, entry.Deletion, s.clock())
			return fired, nil
		}

		wg.Add(1)
		deletion := entry.Deletion
		go func() {
			defer wg.Done()
			defer func() { <-inFlight }()
			s.fire(ctx, deletion)
		}()
		fired++
	}

	return fired, nil
}

// fire issues the delete through the retry executor and settles the entry:
// completed, rescheduled with a short delay, or dead-lettered.
func (s *Scheduler) fire(ctx context.Context, deletion models.ScheduledDeletion) {
	attempts, err := s.executor.Do(ctx, "delete message", func(ctx context.Context) error {
		return s.client.DeleteMessage(ctx, deletion.Channel, deletion.MessageTS)
	})
	deletion.AttemptCount += attempts

	if err == nil {
		log.Printf("✅ TimeBomb %s: deleted message %s in channel %s (attempt_count: %d)",
			models.ScheduledDeletionStatusCompleted, deletion.MessageTS, deletion.Channel, deletion.AttemptCount)
		return
	}

	if ctx.Err() != nil {
		// Shutdown interrupted the attempt: the entry goes back to pending
		// immediately rather than being judged on an aborted call
		s.reschedule(ctx, deletion, s.clock())
		return
	}

	if deletion.AttemptCount >= s.config.MaxAttempts {
		s.deadLetter(ctx, deletion, err)
		return
	}

	log.Printf("⚠️ Delete failed for message %s (attempt_count: %d), rescheduling in %s: %v",
		deletion.MessageTS, deletion.AttemptCount, s.config.RetryDelay, err)
	s.reschedule(ctx, deletion, s.clock().Add(s.config.RetryDelay))
}

// reschedule returns the entry to pending at the given due time. Persistence
// uses a detached context so shutdown cannot drop a claimed entry.
func (s *Scheduler) reschedule(ctx context.Context, deletion models.ScheduledDeletion, dueAt time.Time) {
	deletion.DeleteAt = dueAt
	persistCtx := context.WithoutCancel(ctx)
	if err := s.repo.Add(persistCtx, &deletion); err != nil {
		log.Printf("❌ Failed to reschedule deletion for message %s: %v", deletion.MessageTS, err)
		s.deadLetter(ctx, deletion, fmt.Errorf("failed to reschedule: %w", err))
		return
	}
	log.Printf("💣 TimeBomb %s again for message %s, fires at %s",
		models.ScheduledDeletionStatusPending, deletion.MessageTS, dueAt.Format(time.RFC3339))
}

func (s *Scheduler) deadLetter(ctx context.Context, deletion models.ScheduledDeletion, cause error) {
	payload, err := json.Marshal(deletion)
	if err != nil {
		payload = fmt.Appendf(nil, "channel=%s ts=%s", deletion.Channel, deletion.MessageTS)
	}

	letter := &models.DeadLetter{
		ID:             core.NewID("dl"),
		Kind:           models.DeadLetterKindDeletion,
		Payload:        string(payload),
		Reason:         cause.Error(),
		Classification: string(core.Classification(cause)),
		AttemptCount:   deletion.AttemptCount,
		CreatedAt:      s.clock(),
	}

	persistCtx := context.WithoutCancel(ctx)
	if err := s.deadLetters.Record(persistCtx, letter); err != nil {
		// Last resort: the full identity goes to the log so the deletion is
		// never lost without a trace
		log.Printf("❌ Failed to record dead letter %s for deletion %s: %v", letter.ID, letter.Payload, err)
		return
	}

	log.Printf("💀 TimeBomb %s: deletion for message %s in channel %s dead-lettered as %s after %d attempts",
		models.ScheduledDeletionStatusDeadLettered, deletion.MessageTS, deletion.Channel,
		letter.ID, deletion.AttemptCount)
}

// nextWake computes how long to sleep with nothing due: until the next
// pending entry, capped by the poll interval so schedule additions from
// other processes are noticed.
func (s *Scheduler) nextWake(ctx context.Context) time.Duration {
	maybeNext, err := s.repo.NextDueAt(ctx)
	if err != nil {
		return s.config.FailureBackoff
	}

	wait := s.config.PollInterval
	if next, ok := maybeNext.Get(); ok {
		if until := next.Sub(s.clock()); until < wait {
			wait = until
		}
	}
	if wait < minWakeInterval {
		wait = minWakeInterval
	}
	return wait
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
