package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slackrelay/core"
	"slackrelay/models"
	"slackrelay/services/envelopes"
	"slackrelay/services/idempotency"
	"slackrelay/testutils"
)

type recordingDispatcher struct {
	mu       sync.Mutex
	commands []models.Command
	errFor   func(cmd models.Command) error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, cmd models.Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands = append(d.commands, cmd)
	if d.errFor != nil {
		return d.errFor(cmd)
	}
	return nil
}

func (d *recordingDispatcher) Commands() []models.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	commands := make([]models.Command, len(d.commands))
	copy(commands, d.commands)
	return commands
}

func setupTestPoller(t *testing.T, dispatch *recordingDispatcher) (*Poller, *testutils.FakeQueue, *testutils.FakeDeadLetterRepository) {
	t.Helper()
	queue := testutils.NewFakeQueue()
	deadLetters := testutils.NewFakeDeadLetterRepository()
	guard := idempotency.NewGuard(testutils.NewFakeIdempotencyRepository(), 10*time.Minute)
	poller := NewPoller(queue, envelopes.NewCodec(), guard, dispatch, deadLetters, "slack_messages")
	poller.popTimeout = 20 * time.Millisecond
	return poller, queue, deadLetters
}

func TestProcessEntry(t *testing.T) {
	ctx := context.Background()

	t.Run("ValidEnvelopeDispatched", func(t *testing.T) {
		dispatch := &recordingDispatcher{}
		poller, _, deadLetters := setupTestPoller(t, dispatch)

		poller.ProcessEntry(ctx, `{"channel":"#general","text":"hi","ttl":5}`)

		commands := dispatch.Commands()
		require.Len(t, commands, 1)
		postCmd := commands[0].(*models.PostMessageCommand)
		assert.Equal(t, "#general", postCmd.Channel)
		assert.Equal(t, 5, postCmd.TTL)
		assert.Equal(t, int64(1), poller.ProcessedCount())
		assert.Empty(t, deadLetters.Letters())
	})

	t.Run("MalformedEnvelopeDeadLetteredAndCounted", func(t *testing.T) {
		dispatch := &recordingDispatcher{}
		poller, _, deadLetters := setupTestPoller(t, dispatch)

		poller.ProcessEntry(ctx, `{"text":"no channel"}`)
		// The poller keeps going: the next valid entry still dispatches
		poller.ProcessEntry(ctx, `{"channel":"#general","text":"hi"}`)

		assert.Len(t, dispatch.Commands(), 1)
		assert.Equal(t, int64(1), poller.MalformedCount())

		letters := deadLetters.Letters()
		require.Len(t, letters, 1)
		assert.Equal(t, models.DeadLetterKindEnvelope, letters[0].Kind)
		assert.Equal(t, `{"text":"no channel"}`, letters[0].Payload)
		assert.Equal(t, string(core.FailureKindPermanent), letters[0].Classification)
	})

	t.Run("DuplicateSuppressedWithinWindow", func(t *testing.T) {
		dispatch := &recordingDispatcher{}
		poller, _, _ := setupTestPoller(t, dispatch)

		payload := `{"channel":"#general","text":"hi","ttl":5}`
		poller.ProcessEntry(ctx, payload)
		poller.ProcessEntry(ctx, payload)

		assert.Len(t, dispatch.Commands(), 1)
		assert.Equal(t, int64(1), poller.ProcessedCount())
	})

	t.Run("TerminalDispatchFailureDeadLettered", func(t *testing.T) {
		dispatch := &recordingDispatcher{
			errFor: func(cmd models.Command) error {
				return core.NewPermanentError(errors.New("channel_not_found"))
			},
		}
		poller, _, deadLetters := setupTestPoller(t, dispatch)

		payload := `{"channel":"#nope","text":"hi"}`
		poller.ProcessEntry(ctx, payload)

		letters := deadLetters.Letters()
		require.Len(t, letters, 1)
		assert.Equal(t, payload, letters[0].Payload)
		assert.Equal(t, string(core.FailureKindPermanent), letters[0].Classification)
		assert.Contains(t, letters[0].Reason, "channel_not_found")
		assert.Equal(t, int64(0), poller.ProcessedCount())
	})

	t.Run("FailedDispatchNotMarkedProcessed", func(t *testing.T) {
		failing := true
		dispatch := &recordingDispatcher{
			errFor: func(cmd models.Command) error {
				if failing {
					return core.NewPermanentError(errors.New("boom"))
				}
				return nil
			},
		}
		poller, _, _ := setupTestPoller(t, dispatch)

		payload := `{"channel":"#general","text":"hi"}`
		poller.ProcessEntry(ctx, payload)

		// The failure must not have seeded an idempotency record
		failing = false
		poller.ProcessEntry(ctx, payload)

		assert.Len(t, dispatch.Commands(), 2)
		assert.Equal(t, int64(1), poller.ProcessedCount())
	})

	t.Run("ShutdownMidDispatchRequeuesEntry", func(t *testing.T) {
		cancelCtx, cancel := context.WithCancel(ctx)
		dispatch := &recordingDispatcher{
			errFor: func(cmd models.Command) error {
				cancel()
				return cancelCtx.Err()
			},
		}
		poller, queue, deadLetters := setupTestPoller(t, dispatch)

		payload := `{"channel":"#general","text":"hi"}`
		poller.ProcessEntry(cancelCtx, payload)

		// Back at the head of the queue, not dead-lettered
		assert.Equal(t, 1, queue.Len("slack_messages"))
		assert.Empty(t, deadLetters.Letters())
	})
}

func TestRun(t *testing.T) {
	t.Run("ConsumesInArrivalOrder", func(t *testing.T) {
		dispatch := &recordingDispatcher{}
		poller, queue, _ := setupTestPoller(t, dispatch)

		queue.Push("slack_messages", `{"channel":"#general","text":"first"}`)
		queue.Push("slack_messages", `{"channel":"#general","text":"second"}`)
		queue.Push("slack_messages", `{"channel":"#general","text":"third"}`)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			poller.Run(ctx)
			close(done)
		}()

		require.Eventually(t, func() bool {
			return len(dispatch.Commands()) == 3
		}, 2*time.Second, 5*time.Millisecond)

		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("poller did not stop after cancellation")
		}

		commands := dispatch.Commands()
		assert.Equal(t, "first", commands[0].(*models.PostMessageCommand).Text)
		assert.Equal(t, "second", commands[1].(*models.PostMessageCommand).Text)
		assert.Equal(t, "third", commands[2].(*models.PostMessageCommand).Text)
	})

	t.Run("StopsPromptlyWhenIdle", func(t *testing.T) {
		dispatch := &recordingDispatcher{}
		poller, _, _ := setupTestPoller(t, dispatch)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			poller.Run(ctx)
			close(done)
		}()

		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("poller did not stop after cancellation")
		}
	})
}
