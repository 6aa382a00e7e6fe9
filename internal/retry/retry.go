package retry

import (
	"context"
	"fmt"
	"time"
)

// Limiter is the subset of ratelimit.Limiter used by Do.
type Limiter interface {
	Acquire(ctx context.Context) error
	Penalize(extra time.Duration)
}

// Op is one attempt of an operation. ctx is the per-request context.
type Op[T any] func(ctx context.Context) (T, error)

// Do runs op until it succeeds, fails fatally, or the policy gives up.
//
// lim may be nil. If ctx is cancelled while Do is waiting, ctx.Err() is
// returned; an attempt already in flight is allowed to finish and its
// result is returned if it succeeded.
func Do[T any](ctx context.Context, p Policy, lim Limiter, op Op[T]) (T, error) {
	var zero T

	waitCtx := ctx
	if p.MaxElapsed > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.MaxElapsed)
		defer cancel()
	}

	var (
		failures int
		attempt  int
		lastErr  error
	)
	for {
		if err := waitErr(ctx, waitCtx.Err(), lastErr); err != nil {
			return zero, err
		}
		if lim != nil {
			if err := lim.Acquire(waitCtx); err != nil {
				return zero, waitErr(ctx, err, lastErr)
			}
		}

		attempt++
		v, err := runAttempt(ctx, p.RequestTimeout, op)

		switch Classify(err) {
		case KindOK:
			return v, nil

		case KindFatal:
			return zero, err

		case KindRateLimited:
			lastErr = err
			cooldown, ok := retryAfter(err)
			if !ok {
				cooldown = p.RateLimitPenalty
			}
			notify(p, attempt, KindRateLimited, err, cooldown)
			if lim != nil {
				lim.Penalize(cooldown)
				continue
			}
			if err := sleep(waitCtx, cooldown); err != nil {
				return zero, waitErr(ctx, err, lastErr)
			}

		case KindTransient:
			lastErr = err
			failures++
			if failures >= p.MaxRetries {
				return zero, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, failures, err)
			}
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			backoff := p.Backoff(failures)
			notify(p, attempt, KindTransient, err, backoff)
			if err := sleep(waitCtx, backoff); err != nil {
				return zero, waitErr(ctx, err, lastErr)
			}
		}
	}
}

// runAttempt runs op on a context that survives crawl cancellation but is
// bounded by timeout.
func runAttempt[T any](ctx context.Context, timeout time.Duration, op Op[T]) (T, error) {
	reqCtx := context.WithoutCancel(ctx)
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(reqCtx, timeout)
		defer cancel()
	}
	return op(reqCtx)
}

// waitErr turns a failed wait into the error Do returns: the crawl
// context's error if the crawl was cancelled, ErrBudgetExceeded if only the
// time budget ran out.
func waitErr(ctx context.Context, err, lastErr error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %w", ErrBudgetExceeded, lastErr)
	}
	return ErrBudgetExceeded
}

func notify(p Policy, attempt int, kind Kind, err error, wait time.Duration) {
	if p.Notify != nil {
		p.Notify(attempt, kind, err, wait)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
