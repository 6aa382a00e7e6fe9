package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/odindexer/internal/model"
	"github.com/nao1215/odindexer/internal/retry"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "odindexer"

	// DefaultThreads is the worker count for HTTP-based backends.
	DefaultThreads = 5

	// DefaultFTPThreads is the worker count for FTP servers. Most servers
	// cap concurrent logins per client, so FTP gets its own default.
	DefaultFTPThreads = 6

	// MaxThreads is the largest accepted worker count.
	MaxThreads = 100

	// DefaultTimeout bounds every single listing request.
	DefaultTimeout = 100 * time.Second

	// DefaultMaxRetries is the number of transient failures after which a
	// folder is given up.
	DefaultMaxRetries = retry.DefaultMaxRetries

	// DefaultMaxElapsed bounds the total time spent on one folder page,
	// rate limit waits included.
	DefaultMaxElapsed = retry.DefaultMaxElapsed

	// DefaultRateFraction is the share of a backend's documented quota that
	// is used. Staying at 1.0 is fine for most hosts; Google Drive applies
	// its own fraction on top.
	DefaultRateFraction = 1.0

	// DefaultBatchSize is the number of roots indexed concurrently.
	// Every root gets its own limiter, so this multiplies the request rate
	// against hosts that appear more than once.
	DefaultBatchSize = 3

	// DefaultTorProxyAddress is the standard Tor SOCKS5 proxy address.
	// We use 127.0.0.1 instead of localhost to avoid DNS resolution overhead
	// and potential issues with IPv6 resolution on some systems.
	DefaultTorProxyAddress = "127.0.0.1:9050"

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultUserAgent is sent with every HTTP request. Many directory
	// listings refuse obvious bot user agents, so a browser string is used.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

	// DefaultMaxBodySize limits the size of one listing response.
	// Huge Apache indexes can reach tens of megabytes.
	DefaultMaxBodySize = 64 * 1024 * 1024 // 64MB

	// APIKeyEnv is the environment variable read for the Google Drive API key.
	APIKeyEnv = "ODINDEXER_GOOGLE_API_KEY"
)

// Config holds all configuration options for odindexer.
// This struct is populated from CLI flags and the site configuration file,
// and passed through the application via dependency injection rather than
// global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., CrawlConfig, ReportConfig) for simplicity. The number of options
// is manageable, and nesting would add complexity without significant benefit.
type Config struct {
	// Targets is the list of root URLs to index.
	Targets []string

	// Backend forces a backend by name. Empty means detect from the URL.
	Backend string

	// Threads is the number of concurrent workers per root.
	// Zero means DefaultThreads, or DefaultFTPThreads for FTP servers.
	Threads int

	// Timeout bounds every single listing request.
	Timeout time.Duration

	// Wait is a fixed delay between two listing requests.
	// Only valid with a single thread.
	Wait time.Duration

	// MaxRetries is the number of transient failures after which a folder
	// is marked as failed. Rate limited responses are not counted.
	MaxRetries int

	// MaxElapsed bounds the total time spent on one page request including
	// retries and rate limit waits. Zero means no bound.
	MaxElapsed time.Duration

	// RateRequests and RateWindow override the documented quota of the
	// backend. Zero RateRequests keeps the backend's own limits.
	RateRequests int
	RateWindow   time.Duration

	// RateFraction is the share of the quota that is used, in (0, 1].
	RateFraction float64

	// BatchSize is the number of roots indexed concurrently.
	BatchSize int

	// IgnorePatterns are folder path patterns to skip (glob syntax).
	IgnorePatterns []string

	// FollowPatterns restrict the crawl to matching folders when set.
	FollowPatterns []string

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// Quiet disables the progress line on stderr.
	Quiet bool

	// ConfigFilePath is the path to the site configuration file.
	// If empty, the tool searches for .odindexer in the current directory,
	// the user's home directory and the XDG config directory.
	ConfigFilePath string

	// SiteConfigs holds site-specific configurations loaded from the config file.
	SiteConfigs *File

	// JSONReport enables JSON report output instead of human-readable format.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport enables Markdown report output instead of human-readable format.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file instead of stdout.
	// With several targets, the file name gets a per-root suffix.
	ReportFile string

	// URLListDir is the directory where the list of every discovered file
	// URL is written, one file per root. Empty disables the list.
	URLListDir string

	// SnapshotDir is where session snapshots are written.
	// Defaults to the XDG data directory.
	SnapshotDir string

	// NoSnapshot disables writing a session snapshot.
	NoSnapshot bool

	// DBDir is the directory path for storing the SQLite session database.
	// When empty, sessions are not recorded.
	DBDir string

	// SaveToDB indicates whether to record sessions in the database.
	SaveToDB bool

	// UseTor starts an embedded Tor daemon and routes every request through it.
	UseTor bool

	// ProxyAddress is an external SOCKS5 proxy ("host:port"), e.g. a local
	// Tor daemon. Empty means direct connections unless UseTor is set.
	ProxyAddress string

	// TorStartupTimeout is the maximum time to wait for the embedded Tor
	// daemon to start and bootstrap.
	TorStartupTimeout time.Duration

	// APIKey is the Google Drive API key.
	APIKey string

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// MaxBodySize is the maximum listing response size in bytes to read.
	// Set to 0 to use the default.
	MaxBodySize int64
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (e.g., timeout, retries).
// This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		Timeout:           DefaultTimeout,
		MaxRetries:        DefaultMaxRetries,
		MaxElapsed:        DefaultMaxElapsed,
		RateFraction:      DefaultRateFraction,
		BatchSize:         DefaultBatchSize,
		TorStartupTimeout: DefaultTorStartupTimeout,
		UserAgent:         DefaultUserAgent,
		MaxBodySize:       DefaultMaxBodySize,
		SnapshotDir:       XDGSnapshotDir(),
	}
}

// XDGDataDir returns the XDG data directory for odindexer.
// On Linux: ~/.local/share/odindexer
// On macOS: ~/Library/Application Support/odindexer
// On Windows: %LOCALAPPDATA%\odindexer
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGSnapshotDir returns the default directory for session snapshots.
func XDGSnapshotDir() string {
	return filepath.Join(XDGDataDir(), "sessions")
}

// XDGConfigDir returns the XDG config directory for odindexer.
// On Linux: ~/.config/odindexer
// On macOS: ~/Library/Application Support/odindexer
// On Windows: %APPDATA%\odindexer
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// This is called once after CLI parsing, before any crawl begins.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	if err := c.ValidateCrawl(); err != nil {
		return err
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	// JSONReport and MarkdownReport are mutually exclusive
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	return nil
}

// ValidateCrawl checks only the options that control one crawl. It is used
// when resuming a snapshot, which has no targets of its own.
func (c *Config) ValidateCrawl() error {
	if c.Threads < 0 || c.Threads > MaxThreads {
		return ErrInvalidThreads
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Wait < 0 {
		return ErrInvalidWait
	}
	if c.Wait > 0 && c.Threads > 1 {
		return ErrDelayWithThreads
	}
	if c.MaxRetries < 1 {
		return ErrInvalidMaxRetries
	}
	if c.RateFraction <= 0 || c.RateFraction > 1 {
		return ErrInvalidFraction
	}
	if c.RateRequests < 0 || (c.RateRequests > 0 && c.RateWindow <= 0) {
		return ErrInvalidRateLimit
	}
	return nil
}

// ThreadsFor returns the worker count for a backend.
// A fixed delay always runs on a single thread.
func (c *Config) ThreadsFor(backendName string) int {
	switch {
	case c.Wait > 0:
		return 1
	case c.Threads > 0:
		return c.Threads
	case backendName == "ftp":
		return DefaultFTPThreads
	default:
		return DefaultThreads
	}
}

// RetryPolicy returns the retry policy for listing requests.
func (c *Config) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxRetries = c.MaxRetries
	p.RequestTimeout = c.Timeout
	p.MaxElapsed = c.MaxElapsed
	return p
}

// RateLimits returns the quota to enforce, starting from the backend's
// documented limits.
func (c *Config) RateLimits(documented model.Limits) model.Limits {
	limits := documented
	if c.RateRequests > 0 {
		limits.MaxRequests = c.RateRequests
		limits.Window = model.Duration(c.RateWindow)
		limits.Fraction = 1
	}
	if limits.Unlimited() {
		return limits
	}
	if limits.Fraction <= 0 {
		limits.Fraction = 1
	}
	limits.Fraction *= c.RateFraction
	return limits
}
