package models

import (
	"time"
)

// IdempotencyRecord marks a command as already dispatched. Records expire
// after the configured idempotency window; duplicates arriving outside the
// window are treated as new work.
type IdempotencyRecord struct {
	Key       string    `json:"key"`
	FirstSeen time.Time `json:"first_seen"`
	Outcome   string    `json:"outcome"`
}
