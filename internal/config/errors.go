package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoTarget is returned when no URL to index is specified.
	ErrNoTarget = errors.New("no target specified: provide at least one url")

	// ErrInvalidThreads is returned when the thread count is outside 1-100.
	// Zero is accepted and means "choose per backend".
	ErrInvalidThreads = errors.New("invalid threads: must be between 1 and 100")

	// ErrDelayWithThreads is returned when a fixed delay between calls is
	// combined with more than one thread. A delay only makes sense when
	// requests are issued one after another.
	ErrDelayWithThreads = errors.New("a delay between calls requires a single thread")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidWait is returned when the delay between calls is negative.
	ErrInvalidWait = errors.New("invalid wait: must be non-negative")

	// ErrInvalidMaxRetries is returned when the retry budget is below one.
	ErrInvalidMaxRetries = errors.New("invalid max retries: must be at least 1")

	// ErrInvalidFraction is returned when the rate limit fraction is not in (0, 1].
	ErrInvalidFraction = errors.New("invalid rate fraction: must be greater than 0 and at most 1")

	// ErrInvalidRateLimit is returned when a custom rate limit has no window
	// or a negative request count.
	ErrInvalidRateLimit = errors.New("invalid rate limit: requests must be non-negative and the window positive")

	// ErrInvalidBatchSize is returned when the number of concurrent roots is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// A negative body size is invalid; use 0 to use the default limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")
)
