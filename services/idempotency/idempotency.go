package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/samber/mo"

	"slackrelay/models"
)

// RecordsRepository is the idempotency record store. Insert is a conditional
// insert: it must fail (return false) when a live record already exists.
type RecordsRepository interface {
	Get(ctx context.Context, key string) (mo.Option[*models.IdempotencyRecord], error)
	Insert(ctx context.Context, record *models.IdempotencyRecord, window time.Duration) (bool, error)
}

// Guard suppresses duplicate execution of equivalent commands within a
// bounded window. This is best-effort deduplication: two identical envelopes
// popped in the same instant may both pass, which is accepted because
// duplicate sends are user-visible but not corrupting.
type Guard struct {
	repo   RecordsRepository
	window time.Duration
	clock  func() time.Time
}

func NewGuard(repo RecordsRepository, window time.Duration) *Guard {
	return &Guard{
		repo:   repo,
		window: window,
		clock:  time.Now,
	}
}

// ShouldProcess reports whether cmd has not been dispatched within the
// window. Source is the queue the command arrived on, so the same payload
// on different queues is treated as distinct work.
func (g *Guard) ShouldProcess(ctx context.Context, source string, cmd models.Command) (bool, error) {
	key := CommandKey(source, cmd)

	maybeRecord, err := g.repo.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency record: %w", err)
	}

	if record, ok := maybeRecord.Get(); ok {
		log.Printf("🔄 Suppressing duplicate command %s (first seen %s, outcome %s)",
			key, record.FirstSeen.Format(time.RFC3339), record.Outcome)
		return false, nil
	}
	return true, nil
}

// MarkProcessed records a successful dispatch of cmd. Call it only after the
// dispatch succeeded.
func (g *Guard) MarkProcessed(ctx context.Context, source string, cmd models.Command, outcome string) error {
	record := &models.IdempotencyRecord{
		Key:       CommandKey(source, cmd),
		FirstSeen: g.clock(),
		Outcome:   outcome,
	}

	if _, err := g.repo.Insert(ctx, record, g.window); err != nil {
		return fmt.Errorf("failed to mark command processed: %w", err)
	}
	return nil
}

// CommandKey derives a deterministic key from the semantically significant
// fields of cmd.
func CommandKey(source string, cmd models.Command) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(cmd.Type()))
	h.Write([]byte{0})

	switch c := cmd.(type) {
	case *models.PostMessageCommand:
		writeField(h, c.Channel)
		writeField(h, c.Text)
		writeField(h, c.ThreadTS)
		writeField(h, strconv.Itoa(c.TTL))
		if c.Metadata != nil {
			// Deterministic: encoding/json sorts map keys
			raw, _ := json.Marshal(c.Metadata)
			writeField(h, string(raw))
		}
	case *models.RemoveReactionCommand:
		writeField(h, c.Channel)
		writeField(h, c.Reaction)
		writeField(h, c.TS)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h io.Writer, field string) {
	_, _ = h.Write([]byte(field))
	_, _ = h.Write([]byte{0})
}
