package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/odindexer/internal/model"
	"github.com/nao1215/odindexer/internal/ratelimit"
)

func fastPolicy() Policy {
	p := DefaultPolicy()
	p.BackoffUnit = time.Millisecond
	p.BackoffCap = 4 * time.Millisecond
	p.RateLimitPenalty = 5 * time.Millisecond
	p.RequestTimeout = time.Second
	p.MaxElapsed = 5 * time.Second
	return p
}

// fakeLimiter counts permits and penalties.
type fakeLimiter struct {
	mu        sync.Mutex
	acquired  int
	penalties []time.Duration
}

func (f *fakeLimiter) Acquire(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquired++
	return ctx.Err()
}

func (f *fakeLimiter) Penalize(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.penalties = append(f.penalties, d)
}

// scripted returns the errors in order, then succeeds with "ok".
func scripted(errs ...error) (Op[string], *int) {
	calls := 0
	return func(context.Context) (string, error) {
		calls++
		if calls <= len(errs) {
			return "", errs[calls-1]
		}
		return "ok", nil
	}, &calls
}

// TestClassify tests error classification.
func TestClassify(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		err      error
		expected Kind
	}{
		{"nil", nil, KindOK},
		{"rate limited", model.RateLimited(errors.New("429"), 0), KindRateLimited},
		{"fatal", model.Fatal(errors.New("404")), KindFatal},
		{"transient", model.Transient(errors.New("503")), KindTransient},
		{"timeout", context.DeadlineExceeded, KindTransient},
		{"unknown", errors.New("connection reset"), KindTransient},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tc.err); got != tc.expected {
				t.Errorf("Classify() = %v, expected %v", got, tc.expected)
			}
		})
	}
}

// TestBackoff tests the capped exponential delays.
func TestBackoff(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	expected := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 16 * time.Second}
	for n, want := range expected {
		if got := p.Backoff(n); got != want {
			t.Errorf("Backoff(%d) = %v, expected %v", n, got, want)
		}
	}
	if got := p.Backoff(10000); got != p.BackoffCap {
		t.Errorf("Backoff(10000) = %v, expected cap", got)
	}
}

// TestPolicyValidate tests policy validation.
func TestPolicyValidate(t *testing.T) {
	t.Parallel()

	if err := DefaultPolicy().Validate(); err != nil {
		t.Errorf("default policy invalid: %v", err)
	}
	p := DefaultPolicy()
	p.MaxRetries = 0
	if err := p.Validate(); !errors.Is(err, ErrInvalidPolicy) {
		t.Errorf("expected ErrInvalidPolicy, got %v", err)
	}
	p = DefaultPolicy()
	p.RequestTimeout = -1
	if err := p.Validate(); !errors.Is(err, ErrInvalidPolicy) {
		t.Errorf("expected ErrInvalidPolicy, got %v", err)
	}
}

// TestDoRetryBudget tests that MaxRetries-1 transient failures still
// succeed and MaxRetries failures give up.
func TestDoRetryBudget(t *testing.T) {
	t.Parallel()

	p := fastPolicy()
	transient := model.Transient(errors.New("503"))

	t.Run("one short of the budget", func(t *testing.T) {
		t.Parallel()
		errs := make([]error, p.MaxRetries-1)
		for i := range errs {
			errs[i] = transient
		}
		op, calls := scripted(errs...)

		v, err := Do(context.Background(), p, nil, op)
		if err != nil || v != "ok" {
			t.Fatalf("got %q, %v; expected ok", v, err)
		}
		if *calls != p.MaxRetries {
			t.Errorf("calls = %d, expected %d", *calls, p.MaxRetries)
		}
	})

	t.Run("budget reached", func(t *testing.T) {
		t.Parallel()
		errs := make([]error, p.MaxRetries)
		for i := range errs {
			errs[i] = transient
		}
		op, calls := scripted(errs...)

		_, err := Do(context.Background(), p, nil, op)
		if !errors.Is(err, ErrRetriesExhausted) {
			t.Fatalf("expected ErrRetriesExhausted, got %v", err)
		}
		if !errors.Is(err, transient) {
			t.Error("expected last error to be wrapped")
		}
		if *calls != p.MaxRetries {
			t.Errorf("calls = %d, expected %d", *calls, p.MaxRetries)
		}
	})
}

// TestDoFatal tests that fatal errors are not retried.
func TestDoFatal(t *testing.T) {
	t.Parallel()

	fatal := model.Fatal(errors.New("403 forbidden"))
	op, calls := scripted(fatal, fatal)

	_, err := Do(context.Background(), fastPolicy(), nil, op)
	if !errors.Is(err, fatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if *calls != 1 {
		t.Errorf("calls = %d, expected 1", *calls)
	}
}

// TestDoRateLimitedNotCounted tests that throttling never consumes the
// retry budget and penalizes the limiter.
func TestDoRateLimitedNotCounted(t *testing.T) {
	t.Parallel()

	p := fastPolicy()
	p.MaxRetries = 2

	throttled := model.RateLimited(errors.New("userRateLimitExceeded"), 0)
	hinted := model.RateLimited(errors.New("429"), 3*time.Millisecond)
	errs := []error{throttled, throttled, hinted, throttled, model.Transient(errors.New("reset"))}
	op, calls := scripted(errs...)
	lim := &fakeLimiter{}

	v, err := Do(context.Background(), p, lim, op)
	if err != nil || v != "ok" {
		t.Fatalf("got %q, %v; expected ok", v, err)
	}
	if *calls != len(errs)+1 {
		t.Errorf("calls = %d, expected %d", *calls, len(errs)+1)
	}
	if len(lim.penalties) != 4 {
		t.Fatalf("penalties = %v, expected 4", lim.penalties)
	}
	if lim.penalties[0] != p.RateLimitPenalty || lim.penalties[2] != 3*time.Millisecond {
		t.Errorf("unexpected penalties %v", lim.penalties)
	}
	if lim.acquired != *calls {
		t.Errorf("acquired = %d, expected one permit per call (%d)", lim.acquired, *calls)
	}
}

// TestDoBudgetExceeded tests that endless throttling is bounded by
// MaxElapsed.
func TestDoBudgetExceeded(t *testing.T) {
	t.Parallel()

	p := fastPolicy()
	p.MaxElapsed = 50 * time.Millisecond

	op := func(context.Context) (string, error) {
		return "", model.RateLimited(errors.New("slow down"), 0)
	}
	lim := ratelimit.Unlimited()

	_, err := Do(context.Background(), p, lim, op)
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
}

// TestDoCancelledWhileWaiting tests that crawl cancellation during a wait
// returns the context error instead of a failure.
func TestDoCancelledWhileWaiting(t *testing.T) {
	t.Parallel()

	p := fastPolicy()
	p.BackoffUnit = time.Hour
	p.BackoffCap = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	op := func(context.Context) (string, error) {
		cancel()
		return "", model.Transient(errors.New("reset"))
	}

	_, err := Do(ctx, p, nil, op)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// TestDoInFlightSurvivesCancel tests that an attempt in flight is not
// abandoned when the crawl is cancelled.
func TestDoInFlightSurvivesCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	op := func(reqCtx context.Context) (string, error) {
		cancel()
		select {
		case <-reqCtx.Done():
			return "", reqCtx.Err()
		case <-time.After(20 * time.Millisecond):
			return "page", nil
		}
	}

	v, err := Do(ctx, fastPolicy(), nil, op)
	if err != nil || v != "page" {
		t.Fatalf("got %q, %v; expected the in-flight result", v, err)
	}
}

// TestDoRequestTimeout tests that a hung attempt times out and is retried.
func TestDoRequestTimeout(t *testing.T) {
	t.Parallel()

	p := fastPolicy()
	p.RequestTimeout = 10 * time.Millisecond

	calls := 0
	op := func(reqCtx context.Context) (string, error) {
		calls++
		if calls == 1 {
			<-reqCtx.Done()
			return "", reqCtx.Err()
		}
		return "ok", nil
	}

	var notified []Kind
	p.Notify = func(_ int, kind Kind, _ error, _ time.Duration) {
		notified = append(notified, kind)
	}

	v, err := Do(context.Background(), p, nil, op)
	if err != nil || v != "ok" {
		t.Fatalf("got %q, %v; expected ok", v, err)
	}
	if len(notified) != 1 || notified[0] != KindTransient {
		t.Errorf("notified %v, expected one transient retry", notified)
	}
}
