package crawler

import (
	"log/slog"

	"github.com/nao1215/odindexer/internal/ratelimit"
	"github.com/nao1215/odindexer/internal/retry"
)

// Thread count bounds.
const (
	MinThreads     = 1
	MaxThreads     = 100
	DefaultThreads = 5
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithThreads sets the number of concurrent workers (1-100).
func WithThreads(n int) Option {
	return func(s *Scheduler) {
		s.threads = n
	}
}

// WithLimiter sets the rate limiter shared by every worker.
// The default is derived from the adapter's documented limits.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(s *Scheduler) {
		s.limiter = l
	}
}

// WithPolicy sets the retry policy applied to every page request.
func WithPolicy(p retry.Policy) Option {
	return func(s *Scheduler) {
		s.policy = p
	}
}

// WithLogger sets the logger used for folder failures and retries.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIgnorePatterns sets folder path patterns to skip.
// Patterns use glob syntax (e.g., "/pub/old/*", "*backup*").
func WithIgnorePatterns(patterns []string) Option {
	return func(s *Scheduler) {
		s.filter.ignore = patterns
	}
}

// WithFollowPatterns sets folder path patterns to crawl.
// If set, only folders matching at least one pattern (and the folders
// leading to them) are crawled.
func WithFollowPatterns(patterns []string) Option {
	return func(s *Scheduler) {
		s.filter.follow = patterns
	}
}

// WithProgress sets a callback invoked each time a folder settles.
// The callback runs on a worker goroutine and must not block.
func WithProgress(fn func(Progress)) Option {
	return func(s *Scheduler) {
		s.onProgress = fn
	}
}
