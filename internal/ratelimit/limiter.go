package ratelimit

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/nao1215/odindexer/internal/model"
)

// Limiter is a FIFO token-bucket rate limiter with cooldown support.
type Limiter struct {
	// turn is a one-slot semaphore. Blocked senders on a channel are
	// released in arrival order, which makes waiters FIFO.
	turn chan struct{}

	bucket *rate.Limiter // nil means no quota

	permits int
	window  time.Duration

	minInterval time.Duration
	lastGrant   time.Time // guarded by turn

	mu            sync.Mutex
	cooldownUntil time.Time

	granted   atomic.Int64
	penalties atomic.Int64
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithMinInterval enforces a fixed minimum spacing between permits.
// This is the sequential "wait between calls" mode.
func WithMinInterval(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.minInterval = d
		}
	}
}

// New creates a limiter that grants floor(maxRequests*fraction) permits per
// window, at least one. A non-positive maxRequests or window creates a
// limiter without quota (only cooldowns and WithMinInterval apply).
func New(maxRequests int, window time.Duration, fraction float64, opts ...Option) *Limiter {
	l := &Limiter{turn: make(chan struct{}, 1)}

	if maxRequests > 0 && window > 0 {
		if fraction <= 0 || fraction > 1 {
			fraction = 1
		}
		n := int(math.Floor(float64(maxRequests) * fraction))
		if n < 1 {
			n = 1
		}
		l.permits = n
		l.window = window
		l.bucket = rate.NewLimiter(rate.Limit(float64(n)/window.Seconds()), n)
	}

	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FromLimits creates a limiter from a backend's documented quota.
func FromLimits(limits model.Limits, opts ...Option) *Limiter {
	return New(limits.MaxRequests, limits.Window.Std(), limits.Fraction, opts...)
}

// Unlimited creates a limiter without quota.
func Unlimited(opts ...Option) *Limiter {
	return New(0, 0, 0, opts...)
}

// Permits returns N, the effective number of permits per window.
// It is zero for a limiter without quota.
func (l *Limiter) Permits() int {
	return l.permits
}

// Window returns the quota window.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Acquire blocks until one request may be issued.
// It returns ctx.Err() if the context ends first; a reservation that was
// not used is returned to the bucket.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.turn <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.turn }()

	if err := l.waitCooldown(ctx); err != nil {
		return err
	}
	if l.bucket != nil {
		if err := l.bucket.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
	}
	// A penalty may have arrived while we were waiting for the bucket.
	if err := l.waitCooldown(ctx); err != nil {
		return err
	}
	if l.minInterval > 0 && !l.lastGrant.IsZero() {
		if err := sleep(ctx, time.Until(l.lastGrant.Add(l.minInterval))); err != nil {
			return err
		}
	}

	l.lastGrant = time.Now()
	l.granted.Add(1)
	return nil
}

// waitCooldown sleeps until no cooldown is active.
func (l *Limiter) waitCooldown(ctx context.Context) error {
	for {
		l.mu.Lock()
		until := l.cooldownUntil
		l.mu.Unlock()

		d := time.Until(until)
		if d <= 0 {
			return nil
		}
		if err := sleep(ctx, d); err != nil {
			return err
		}
	}
}

// Penalize delays every following permit by at least extra from now.
// A shorter penalty never shortens an active cooldown.
func (l *Limiter) Penalize(extra time.Duration) {
	if extra <= 0 {
		return
	}
	until := time.Now().Add(extra)

	l.mu.Lock()
	defer l.mu.Unlock()
	if until.After(l.cooldownUntil) {
		l.cooldownUntil = until
	}
	l.penalties.Add(1)
}

// CooldownRemaining returns how long the active cooldown still lasts.
func (l *Limiter) CooldownRemaining() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d := time.Until(l.cooldownUntil); d > 0 {
		return d
	}
	return 0
}

// Granted returns the number of permits granted so far.
func (l *Limiter) Granted() int64 {
	return l.granted.Load()
}

// Penalties returns the number of Penalize calls so far.
func (l *Limiter) Penalties() int64 {
	return l.penalties.Load()
}

// sleep waits for d or until ctx is done.
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
