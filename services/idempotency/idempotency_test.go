package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slackrelay/models"
	"slackrelay/testutils"
)

func postCommand() *models.PostMessageCommand {
	return &models.PostMessageCommand{
		Channel: "#general",
		Text:    "hi",
		TTL:     300,
	}
}

func TestGuard(t *testing.T) {
	ctx := context.Background()

	t.Run("DuplicateSuppressedWithinWindow", func(t *testing.T) {
		repo := testutils.NewFakeIdempotencyRepository()
		guard := NewGuard(repo, 10*time.Minute)

		shouldProcess, err := guard.ShouldProcess(ctx, "slack_messages", postCommand())
		require.NoError(t, err)
		assert.True(t, shouldProcess)

		require.NoError(t, guard.MarkProcessed(ctx, "slack_messages", postCommand(), "dispatched"))

		shouldProcess, err = guard.ShouldProcess(ctx, "slack_messages", postCommand())
		require.NoError(t, err)
		assert.False(t, shouldProcess)
	})

	t.Run("DuplicateOutsideWindowProcessedAgain", func(t *testing.T) {
		repo := testutils.NewFakeIdempotencyRepository()
		now := time.Now()
		repo.Clock = func() time.Time { return now }
		guard := NewGuard(repo, 10*time.Minute)

		require.NoError(t, guard.MarkProcessed(ctx, "slack_messages", postCommand(), "dispatched"))

		// Still inside the window
		shouldProcess, err := guard.ShouldProcess(ctx, "slack_messages", postCommand())
		require.NoError(t, err)
		assert.False(t, shouldProcess)

		// Past the window the record has expired and the duplicate is new work
		now = now.Add(11 * time.Minute)
		shouldProcess, err = guard.ShouldProcess(ctx, "slack_messages", postCommand())
		require.NoError(t, err)
		assert.True(t, shouldProcess)
	})

	t.Run("DifferentSourcesAreDistinct", func(t *testing.T) {
		repo := testutils.NewFakeIdempotencyRepository()
		guard := NewGuard(repo, 10*time.Minute)

		require.NoError(t, guard.MarkProcessed(ctx, "slack_messages", postCommand(), "dispatched"))

		shouldProcess, err := guard.ShouldProcess(ctx, "other_queue", postCommand())
		require.NoError(t, err)
		assert.True(t, shouldProcess)
	})
}

func TestCommandKey(t *testing.T) {
	t.Run("Deterministic", func(t *testing.T) {
		assert.Equal(t,
			CommandKey("q", postCommand()),
			CommandKey("q", postCommand()))
	})

	t.Run("SensitiveToSignificantFields", func(t *testing.T) {
		base := CommandKey("q", postCommand())

		changedText := postCommand()
		changedText.Text = "bye"
		assert.NotEqual(t, base, CommandKey("q", changedText))

		changedTTL := postCommand()
		changedTTL.TTL = 60
		assert.NotEqual(t, base, CommandKey("q", changedTTL))

		withMetadata := postCommand()
		withMetadata.Metadata = &models.MessageMetadata{
			EventType:    "deploy",
			EventPayload: map[string]any{"service": "api"},
		}
		assert.NotEqual(t, base, CommandKey("q", withMetadata))
	})

	t.Run("VariantsNeverCollide", func(t *testing.T) {
		post := &models.PostMessageCommand{Channel: "C1", Text: "x"}
		reaction := &models.RemoveReactionCommand{Channel: "C1", Reaction: "x", TS: "1.2"}
		assert.NotEqual(t, CommandKey("q", post), CommandKey("q", reaction))
	})

	t.Run("ReactionFieldsSignificant", func(t *testing.T) {
		a := &models.RemoveReactionCommand{Channel: "C1", Reaction: "tada", TS: "1.2"}
		b := &models.RemoveReactionCommand{Channel: "C1", Reaction: "tada", TS: "1.3"}
		assert.NotEqual(t, CommandKey("q", a), CommandKey("q", b))
	})
}
