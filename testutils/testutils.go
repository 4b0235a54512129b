package testutils

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/samber/mo"

	"slackrelay/db"
	"slackrelay/models"
)

// FakeScheduleRepository is an in-memory stand-in for the Redis schedule,
// safe for concurrent use. SetError simulates the schedule store being
// unreachable.
type FakeScheduleRepository struct {
	mu      sync.Mutex
	entries map[string]models.ScheduledDeletion
	err     error
}

func NewFakeScheduleRepository() *FakeScheduleRepository {
	return &FakeScheduleRepository{
		entries: make(map[string]models.ScheduledDeletion),
	}
}

func (r *FakeScheduleRepository) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *FakeScheduleRepository) Add(ctx context.Context, deletion *models.ScheduledDeletion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	member, err := json.Marshal(deletion)
	if err != nil {
		return err
	}
	r.entries[string(member)] = *deletion
	return nil
}

func (r *FakeScheduleRepository) DueBefore(
	ctx context.Context,
	now time.Time,
	limit int64,
) ([]db.ScheduleEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}

	due := []db.ScheduleEntry{}
	for member, deletion := range r.entries {
		if !deletion.DeleteAt.After(now) {
			due = append(due, db.ScheduleEntry{Member: member, Deletion: deletion})
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].Deletion.DeleteAt.Before(due[j].Deletion.DeleteAt)
	})
	if int64(len(due)) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *FakeScheduleRepository) NextDueAt(ctx context.Context) (mo.Option[time.Time], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return mo.None[time.Time](), r.err
	}

	var next time.Time
	found := false
	for _, deletion := range r.entries {
		if !found || deletion.DeleteAt.Before(next) {
			next = deletion.DeleteAt
			found = true
		}
	}
	if !found {
		return mo.None[time.Time](), nil
	}
	return mo.Some(next), nil
}

func (r *FakeScheduleRepository) Claim(ctx context.Context, member string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	if _, ok := r.entries[member]; !ok {
		return false, nil
	}
	delete(r.entries, member)
	return true, nil
}

// Pending returns all pending deletions, ordered by due time
func (r *FakeScheduleRepository) Pending() []models.ScheduledDeletion {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending := make([]models.ScheduledDeletion, 0, len(r.entries))
	for _, deletion := range r.entries {
		pending = append(pending, deletion)
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].DeleteAt.Before(pending[j].DeleteAt)
	})
	return pending
}

// FakeDeadLetterRepository captures recorded dead letters in memory
type FakeDeadLetterRepository struct {
	mu      sync.Mutex
	letters []*models.DeadLetter
}

func NewFakeDeadLetterRepository() *FakeDeadLetterRepository {
	return &FakeDeadLetterRepository{}
}

func (r *FakeDeadLetterRepository) Record(ctx context.Context, letter *models.DeadLetter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.letters = append(r.letters, letter)
	return nil
}

func (r *FakeDeadLetterRepository) List(ctx context.Context, limit int64) ([]*models.DeadLetter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	letters := make([]*models.DeadLetter, len(r.letters))
	copy(letters, r.letters)
	if int64(len(letters)) > limit {
		letters = letters[:limit]
	}
	return letters, nil
}

// Letters returns everything recorded so far
func (r *FakeDeadLetterRepository) Letters() []*models.DeadLetter {
	r.mu.Lock()
	defer r.mu.Unlock()
	letters := make([]*models.DeadLetter, len(r.letters))
	copy(letters, r.letters)
	return letters
}

// FakeIdempotencyRepository is an in-memory record store honoring the
// expiry window. Clock is injectable so tests can move past the window.
type FakeIdempotencyRepository struct {
	mu      sync.Mutex
	records map[string]fakeIdempotencyEntry
	Clock   func() time.Time
}

type fakeIdempotencyEntry struct {
	record    *models.IdempotencyRecord
	expiresAt time.Time
}

func NewFakeIdempotencyRepository() *FakeIdempotencyRepository {
	return &FakeIdempotencyRepository{
		records: make(map[string]fakeIdempotencyEntry),
		Clock:   time.Now,
	}
}

func (r *FakeIdempotencyRepository) Get(
	ctx context.Context,
	key string,
) (mo.Option[*models.IdempotencyRecord], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.records[key]
	if !ok || r.Clock().After(entry.expiresAt) {
		delete(r.records, key)
		return mo.None[*models.IdempotencyRecord](), nil
	}
	return mo.Some(entry.record), nil
}

func (r *FakeIdempotencyRepository) Insert(
	ctx context.Context,
	record *models.IdempotencyRecord,
	window time.Duration,
) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.records[record.Key]; ok && r.Clock().Before(entry.expiresAt) {
		return false, nil
	}
	r.records[record.Key] = fakeIdempotencyEntry{
		record:    record,
		expiresAt: r.Clock().Add(window),
	}
	return true, nil
}

// FakeQueue is an in-memory FIFO per key implementing the poller's queue
// interface
type FakeQueue struct {
	mu    sync.Mutex
	items map[string][]string
}

func NewFakeQueue() *FakeQueue {
	return &FakeQueue{
		items: make(map[string][]string),
	}
}

// Push appends a payload to the tail of the queue, like a producer would
func (q *FakeQueue) Push(key, payload string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items[key] = append(q.items[key], payload)
}

func (q *FakeQueue) Pop(
	ctx context.Context,
	key string,
	timeout time.Duration,
) (mo.Option[string], error) {
	deadline := time.Now().Add(timeout)
	for {
		q.mu.Lock()
		if items := q.items[key]; len(items) > 0 {
			head := items[0]
			q.items[key] = items[1:]
			q.mu.Unlock()
			return mo.Some(head), nil
		}
		q.mu.Unlock()

		if time.Now().After(deadline) {
			return mo.None[string](), nil
		}
		select {
		case <-ctx.Done():
			return mo.None[string](), ctx.Err()
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func (q *FakeQueue) Requeue(ctx context.Context, key, payload string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items[key] = append([]string{payload}, q.items[key]...)
	return nil
}

// Len returns how many entries remain on the queue
func (q *FakeQueue) Len(key string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items[key])
}

// FakeTimeBombRegistrar captures deletions the dispatcher tried to arm
type FakeTimeBombRegistrar struct {
	mu        sync.Mutex
	deletions []*models.ScheduledDeletion
	err       error
}

func NewFakeTimeBombRegistrar() *FakeTimeBombRegistrar {
	return &FakeTimeBombRegistrar{}
}

func (r *FakeTimeBombRegistrar) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *FakeTimeBombRegistrar) Register(ctx context.Context, deletion *models.ScheduledDeletion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.deletions = append(r.deletions, deletion)
	return nil
}

// Registered returns every deletion armed so far
func (r *FakeTimeBombRegistrar) Registered() []*models.ScheduledDeletion {
	r.mu.Lock()
	defer r.mu.Unlock()
	deletions := make([]*models.ScheduledDeletion, len(r.deletions))
	copy(deletions, r.deletions)
	return deletions
}
