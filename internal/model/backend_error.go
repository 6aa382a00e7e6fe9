package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a backend failure for the retry policy.
type ErrorKind int

const (
	// KindTransient covers network errors, timeouts and 5xx-class responses.
	// Transient failures are retried with exponential backoff and count
	// against the retry budget.
	KindTransient ErrorKind = iota

	// KindRateLimited means the backend signalled throttling.
	// It never counts against the retry budget.
	KindRateLimited

	// KindFatal means a permanent condition such as a deleted folder or
	// denied access. Fatal failures are never retried.
	KindFatal
)

// String returns a human-readable kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate-limited"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// BackendError is the error type returned by backend adapters.
//
// Design decision: Adapters classify their own failures because only they
// know what a response means (e.g. HTTP 403 with "userRateLimitExceeded" is
// throttling on Google Drive but a permanent denial on an HTML index).
// The engine never branches on backend identity.
type BackendError struct {
	// Kind is the classification of the failure.
	Kind ErrorKind

	// RetryAfter is the cooldown the backend asked for, if any.
	RetryAfter time.Duration

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	if e.Err == nil {
		return e.Kind.String() + " backend error"
	}
	return fmt.Sprintf("%s backend error: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable failure.
func Transient(err error) error {
	return &BackendError{Kind: KindTransient, Err: err}
}

// RateLimited wraps err as a throttling signal with an optional cooldown.
func RateLimited(err error, retryAfter time.Duration) error {
	return &BackendError{Kind: KindRateLimited, RetryAfter: retryAfter, Err: err}
}

// Fatal wraps err as a permanent failure.
func Fatal(err error) error {
	return &BackendError{Kind: KindFatal, Err: err}
}

// AsBackendError extracts a *BackendError from an error chain.
func AsBackendError(err error) (*BackendError, bool) {
	var be *BackendError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
