package models

import (
	"time"
)

// DeadLetterKind distinguishes what kind of work a dead letter was created from
type DeadLetterKind string

const (
	DeadLetterKindEnvelope DeadLetterKind = "envelope"
	DeadLetterKindDeletion DeadLetterKind = "deletion"
)

// DeadLetter records a command or scheduled deletion that permanently failed.
// Payload carries the raw envelope (or the scheduled deletion identity as JSON)
// so the entry can be replayed manually.
type DeadLetter struct {
	ID             string         `db:"id"             json:"id"`
	Kind           DeadLetterKind `db:"kind"           json:"kind"`
	Payload        string         `db:"payload"        json:"payload"`
	Reason         string         `db:"reason"         json:"reason"`
	Classification string         `db:"classification" json:"classification"`
	AttemptCount   int            `db:"attempt_count"  json:"attempt_count"`
	CreatedAt      time.Time      `db:"created_at"     json:"created_at"`
}
