package relay

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/samber/mo"

	"slackrelay/core"
	"slackrelay/models"
	"slackrelay/services/envelopes"
	"slackrelay/services/idempotency"
)

const (
	defaultPopTimeout   = 5 * time.Second
	queueFailureBackoff = time.Second
)

// Queue is the external FIFO the producers append to
type Queue interface {
	Pop(ctx context.Context, key string, timeout time.Duration) (mo.Option[string], error)
	Requeue(ctx context.Context, key, payload string) error
}

// Dispatcher executes a decoded command against the messaging API
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd models.Command) error
}

// DeadLetterRecorder retains envelopes that failed terminally
type DeadLetterRecorder interface {
	Record(ctx context.Context, letter *models.DeadLetter) error
}

// Poller is one consumer for one queue key. It processes entries strictly
// one at a time, in arrival order: Codec -> Guard -> Dispatcher. Terminal
// failures are dead-lettered and the poller advances; retries for transient
// failures happen inside the dispatcher's retry executor, never here.
type Poller struct {
	queue       Queue
	codec       *envelopes.Codec
	guard       *idempotency.Guard
	dispatcher  Dispatcher
	deadLetters DeadLetterRecorder
	queueKey    string
	popTimeout  time.Duration
	clock       func() time.Time

	processedCount  atomic.Int64
	malformedCount  atomic.Int64
	deadLetterCount atomic.Int64
}

func NewPoller(
	queue Queue,
	codec *envelopes.Codec,
	guard *idempotency.Guard,
	dispatcher Dispatcher,
	deadLetters DeadLetterRecorder,
	queueKey string,
) *Poller {
	return &Poller{
		queue:       queue,
		codec:       codec,
		guard:       guard,
		dispatcher:  dispatcher,
		deadLetters: deadLetters,
		queueKey:    queueKey,
		popTimeout:  defaultPopTimeout,
		clock:       time.Now,
	}
}

// Run consumes the queue until ctx is cancelled. The bounded pop timeout is
// the shutdown checkpoint: cancellation is honored between entries, and an
// entry already popped is finished (or requeued) before Run returns.
func (p *Poller) Run(ctx context.Context) {
	log.Printf("📨 Poller started for queue %s", p.queueKey)

	for {
		if ctx.Err() != nil {
			log.Printf("📨 Poller stopped for queue %s", p.queueKey)
			return
		}

		maybeEntry, err := p.queue.Pop(ctx, p.queueKey, p.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("📨 Poller stopped for queue %s", p.queueKey)
				return
			}
			log.Printf("❌ Failed to read from queue %s: %v", p.queueKey, err)
			p.sleep(ctx, queueFailureBackoff)
			continue
		}

		entry, ok := maybeEntry.Get()
		if !ok {
			// Pop timed out with the queue empty
			continue
		}

		p.ProcessEntry(ctx, entry)
	}
}

// ProcessEntry runs one raw queue entry through the full pipeline
func (p *Poller) ProcessEntry(ctx context.Context, raw string) {
	cmd, err := p.codec.Decode(raw)
	if err != nil {
		p.malformedCount.Add(1)
		log.Printf("⚠️ Dropping malformed envelope from queue %s: %v", p.queueKey, err)
		p.deadLetter(ctx, raw, err, 0)
		return
	}

	shouldProcess, err := p.guard.ShouldProcess(ctx, p.queueKey, cmd)
	if err != nil {
		// Availability beats deduplication: a broken record store must not
		// stop the relay
		log.Printf("⚠️ Idempotency check failed for queue %s, processing anyway: %v", p.queueKey, err)
		shouldProcess = true
	}
	if !shouldProcess {
		return
	}

	if err := p.dispatcher.Dispatch(ctx, cmd); err != nil {
		if ctx.Err() != nil {
			// Shutdown interrupted the dispatch: the entry goes back to the
			// head of the queue instead of being judged on an aborted call
			p.requeue(ctx, raw)
			return
		}
		log.Printf("❌ Terminal failure dispatching envelope from queue %s: %v", p.queueKey, err)
		p.deadLetter(ctx, raw, err, 0)
		return
	}

	p.processedCount.Add(1)

	markCtx := context.WithoutCancel(ctx)
	if err := p.guard.MarkProcessed(markCtx, p.queueKey, cmd, "dispatched"); err != nil {
		log.Printf("⚠️ Failed to mark envelope processed for queue %s: %v", p.queueKey, err)
	}
}

func (p *Poller) deadLetter(ctx context.Context, raw string, cause error, attempts int) {
	classification := string(core.Classification(cause))
	var malformed *core.MalformedEnvelopeError
	if errors.As(cause, &malformed) {
		classification = string(core.FailureKindPermanent)
	}

	letter := &models.DeadLetter{
		ID:             core.NewID("dl"),
		Kind:           models.DeadLetterKindEnvelope,
		Payload:        raw,
		Reason:         cause.Error(),
		Classification: classification,
		AttemptCount:   attempts,
		CreatedAt:      p.clock(),
	}

	persistCtx := context.WithoutCancel(ctx)
	if err := p.deadLetters.Record(persistCtx, letter); err != nil {
		log.Printf("❌ Failed to record dead letter %s for envelope %q: %v", letter.ID, raw, err)
		return
	}

	p.deadLetterCount.Add(1)
	log.Printf("💀 Envelope from queue %s dead-lettered as %s", p.queueKey, letter.ID)
}

func (p *Poller) requeue(ctx context.Context, raw string) {
	persistCtx := context.WithoutCancel(ctx)
	if err := p.queue.Requeue(persistCtx, p.queueKey, raw); err != nil {
		// Requeue failed on top of shutdown: dead-letter so the entry
		// leaves a trace instead of vanishing
		log.Printf("❌ Failed to requeue entry on %s during shutdown: %v", p.queueKey, err)
		p.deadLetter(ctx, raw, err, 0)
		return
	}
	log.Printf("↩️ Requeued in-flight entry on %s for the next run", p.queueKey)
}

func (p *Poller) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// ProcessedCount returns how many envelopes dispatched successfully
func (p *Poller) ProcessedCount() int64 {
	return p.processedCount.Load()
}

// MalformedCount returns how many envelopes failed decoding
func (p *Poller) MalformedCount() int64 {
	return p.malformedCount.Load()
}

// DeadLetterCount returns how many envelopes were dead-lettered
func (p *Poller) DeadLetterCount() int64 {
	return p.deadLetterCount.Load()
}
