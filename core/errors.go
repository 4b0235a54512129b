package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrRetryBudgetExhausted is a sentinel error wrapped into the terminal
// failure returned when a transient error survives every allowed retry.
// For disposition purposes it is treated like a permanent failure.
var ErrRetryBudgetExhausted = errors.New("retry budget exhausted")

// FailureKind classifies an outbound API failure as retry-worthy or not
type FailureKind string

const (
	FailureKindTransient FailureKind = "TRANSIENT"
	FailureKindPermanent FailureKind = "PERMANENT"
)

// MalformedEnvelopeError is returned by the envelope codec when a raw queue
// entry cannot be decoded into a command. It carries the offending payload
// so it can be dead-lettered for manual inspection.
type MalformedEnvelopeError struct {
	Payload string
	Reason  string
}

func (e *MalformedEnvelopeError) Error() string {
	return fmt.Sprintf("malformed envelope: %s", e.Reason)
}

// APIError wraps an outbound messaging API failure with its classification.
// RetryAfter is non-zero only for rate-limit responses that advertise how
// long to wait; that wait takes precedence over computed backoff.
type APIError struct {
	Kind       FailureKind
	RetryAfter time.Duration
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api failure: %v", e.Kind, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewTransientError classifies err as retry-worthy
func NewTransientError(err error) *APIError {
	return &APIError{Kind: FailureKindTransient, Err: err}
}

// NewPermanentError classifies err as not retry-worthy
func NewPermanentError(err error) *APIError {
	return &APIError{Kind: FailureKindPermanent, Err: err}
}

// NewRateLimitedError classifies err as transient with an exact wait to honor
func NewRateLimitedError(err error, retryAfter time.Duration) *APIError {
	return &APIError{Kind: FailureKindTransient, RetryAfter: retryAfter, Err: err}
}

// IsTransient reports whether err is classified as transient. Unclassified
// errors are treated as transient so plain network failures get retried.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind == FailureKindTransient
	}
	return true
}

// Classification returns the failure kind recorded on dead letters.
// Exhausted retry budgets count as permanent: they are not retried again.
func Classification(err error) FailureKind {
	if errors.Is(err, ErrRetryBudgetExhausted) {
		return FailureKindPermanent
	}
	if IsTransient(err) {
		return FailureKindTransient
	}
	return FailureKindPermanent
}
