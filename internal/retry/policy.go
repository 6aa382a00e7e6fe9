package retry

import (
	"fmt"
	"math"
	"time"
)

// Default policy values.
const (
	DefaultMaxRetries       = 5
	DefaultBackoffBase      = 2.0
	DefaultBackoffUnit      = time.Second
	DefaultBackoffCap       = 16 * time.Second
	DefaultRateLimitPenalty = 5 * time.Second
	DefaultRequestTimeout   = 100 * time.Second
	DefaultMaxElapsed       = 30 * time.Minute
)

// Policy controls how Do retries.
type Policy struct {
	// MaxRetries is the number of transient failures after which the
	// operation is given up.
	MaxRetries int

	// BackoffBase, BackoffUnit and BackoffCap define the delay after the
	// n-th transient failure: min(BackoffCap, BackoffUnit * BackoffBase^n).
	BackoffBase float64
	BackoffUnit time.Duration
	BackoffCap  time.Duration

	// RateLimitPenalty is the cooldown applied to the limiter on throttling
	// when the backend did not say how long to wait.
	RateLimitPenalty time.Duration

	// RequestTimeout bounds every single attempt. Zero means no bound.
	RequestTimeout time.Duration

	// MaxElapsed bounds the whole operation including waits.
	// Zero means no bound.
	MaxElapsed time.Duration

	// Notify is called before every retry wait. It may be nil.
	Notify func(attempt int, kind Kind, err error, wait time.Duration)
}

// DefaultPolicy returns the default policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:       DefaultMaxRetries,
		BackoffBase:      DefaultBackoffBase,
		BackoffUnit:      DefaultBackoffUnit,
		BackoffCap:       DefaultBackoffCap,
		RateLimitPenalty: DefaultRateLimitPenalty,
		RequestTimeout:   DefaultRequestTimeout,
		MaxElapsed:       DefaultMaxElapsed,
	}
}

// Validate checks the policy.
func (p Policy) Validate() error {
	if p.MaxRetries < 1 {
		return fmt.Errorf("%w: max retries must be at least 1, got %d", ErrInvalidPolicy, p.MaxRetries)
	}
	if p.BackoffBase < 1 {
		return fmt.Errorf("%w: backoff base must be at least 1, got %g", ErrInvalidPolicy, p.BackoffBase)
	}
	if p.BackoffUnit < 0 || p.BackoffCap < 0 || p.RateLimitPenalty < 0 || p.RequestTimeout < 0 || p.MaxElapsed < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidPolicy)
	}
	return nil
}

// Backoff returns the delay after the given number of transient failures.
func (p Policy) Backoff(failures int) time.Duration {
	d := float64(p.BackoffUnit) * math.Pow(p.BackoffBase, float64(failures))
	if p.BackoffCap > 0 && (d > float64(p.BackoffCap) || math.IsInf(d, 1)) {
		return p.BackoffCap
	}
	return time.Duration(d)
}
