package models

import (
	"time"
)

// ScheduledDeletionStatus represents the lifecycle state of a scheduled deletion
type ScheduledDeletionStatus string

const (
	ScheduledDeletionStatusPending      ScheduledDeletionStatus = "PENDING"
	ScheduledDeletionStatusFiring       ScheduledDeletionStatus = "FIRING"
	ScheduledDeletionStatusCompleted    ScheduledDeletionStatus = "COMPLETED"
	ScheduledDeletionStatusDeadLettered ScheduledDeletionStatus = "DEAD_LETTERED"
)

// ScheduledDeletion represents a TimeBomb entry: a message that must be
// deleted once DeleteAt has passed. AttemptCount accumulates every delete
// API call made for this entry, across reschedules.
type ScheduledDeletion struct {
	Channel      string    `json:"channel"`
	MessageTS    string    `json:"ts"`
	DeleteAt     time.Time `json:"delete_at"`
	AttemptCount int       `json:"attempt_count"`
}
