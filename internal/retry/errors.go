package retry

import "errors"

var (
	// ErrRetriesExhausted is returned when transient failures reached
	// Policy.MaxRetries. It wraps the last failure.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrBudgetExceeded is returned when the overall time budget
	// Policy.MaxElapsed ran out, typically after repeated throttling.
	ErrBudgetExceeded = errors.New("retry time budget exceeded")

	// ErrInvalidPolicy is returned by Policy.Validate.
	ErrInvalidPolicy = errors.New("invalid retry policy")
)
