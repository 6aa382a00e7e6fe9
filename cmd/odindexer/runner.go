package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"slices"

	"github.com/nao1215/odindexer/internal/backend"
	"github.com/nao1215/odindexer/internal/config"
	"github.com/nao1215/odindexer/internal/crawler"
	"github.com/nao1215/odindexer/internal/database"
	applog "github.com/nao1215/odindexer/internal/log"
	"github.com/nao1215/odindexer/internal/model"
	"github.com/nao1215/odindexer/internal/pipeline"
	"github.com/nao1215/odindexer/internal/ratelimit"
	"github.com/nao1215/odindexer/internal/snapshot"
	"github.com/nao1215/odindexer/internal/tor"
	"github.com/nao1215/odindexer/internal/tree"
)

var (
	// errInterrupted is returned when the run was stopped by a signal.
	errInterrupted = errors.New("interrupted")

	// errTorRequired is returned for onion targets without --tor or --proxy.
	errTorRequired = errors.New("onion services require --tor or --proxy")
)

// runner holds what every root of one invocation shares: configuration,
// transport, history database and output streams.
type runner struct {
	cfg       *config.Config
	logger    *slog.Logger
	transport *transport
	db        *database.SessionDB
	out       io.Writer
	status    io.Writer
	progress  *progressPrinter
	multiRoot bool
}

// newRunner opens the history database and the transport. Close releases
// both.
func newRunner(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout, stderr io.Writer) (*runner, error) {
	r := &runner{
		cfg:    cfg,
		logger: logger,
		out:    pipeline.NewLockedWriter(stdout),
		status: pipeline.NewLockedWriter(stderr),
	}

	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		logger.Info("database opened", "path", db.Path())
		r.db = db
	}

	tr, err := setupTransport(ctx, cfg, logger, r.status)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.transport = tr

	if !cfg.Quiet {
		r.progress = newProgressPrinter(r.status)
	}
	return r, nil
}

// Close stops the transport and closes the database.
func (r *runner) Close() {
	if r.transport != nil {
		r.transport.Close()
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			r.logger.Error("failed to close database", "error", err)
		}
		r.db = nil
	}
}

// checkTargets rejects malformed onion addresses and onion targets that
// would otherwise be dialed directly.
func checkTargets(cfg *config.Config, targets []string) error {
	for _, target := range targets {
		if err := tor.ValidateOnionURL(target); err != nil {
			return fmt.Errorf("invalid target %q: %w", applog.RedactURL(target), err)
		}
		if tor.RequiresTor(target) && !cfg.UseTor && cfg.ProxyAddress == "" {
			return fmt.Errorf("%w: %s", errTorRequired, applog.RedactURL(target))
		}
	}
	return nil
}

// newAdapter creates the adapter for rawURL. Credentials embedded in the URL
// take precedence over the site configuration. The returned URL has them
// removed.
func (r *runner) newAdapter(ctx context.Context, rawURL, recordedBackend string) (backend.Adapter, string, config.SiteConfig, error) {
	clean, username, password, _ := backend.Credentials(rawURL)
	site := r.cfg.SiteConfigs.ForURL(clean)

	o := backend.Options{
		Backend:     firstNonEmpty(r.cfg.Backend, recordedBackend, site.Backend),
		UserAgent:   r.cfg.UserAgent,
		Header:      site.Header(),
		Username:    site.Username,
		Password:    site.Password,
		APIKey:      firstNonEmpty(r.cfg.APIKey, site.APIKey),
		Timeout:     r.cfg.Timeout,
		MaxBodySize: r.cfg.MaxBodySize,
	}
	if username != "" {
		o.Username, o.Password = username, password
	}
	r.transport.apply(&o)

	a, err := backend.ForURL(ctx, clean, o)
	if err != nil {
		return nil, "", site, err
	}
	return a, clean, site, nil
}

// crawlOptions returns the scheduler options of one root. Every root gets
// its own limiter because quotas are per host.
func (r *runner) crawlOptions(a backend.Adapter, site config.SiteConfig) []crawler.Option {
	threads := r.cfg.ThreadsFor(a.Name())
	if site.Threads > 0 && r.cfg.Threads == 0 && r.cfg.Wait == 0 {
		threads = site.Threads
	}
	limiter := ratelimit.FromLimits(r.cfg.RateLimits(a.Limits()), ratelimit.WithMinInterval(r.cfg.Wait))

	return []crawler.Option{
		crawler.WithThreads(threads),
		crawler.WithLimiter(limiter),
		crawler.WithPolicy(r.cfg.RetryPolicy()),
		crawler.WithIgnorePatterns(append(slices.Clone(r.cfg.IgnorePatterns), site.IgnorePatterns...)),
		crawler.WithFollowPatterns(append(slices.Clone(r.cfg.FollowPatterns), site.FollowPatterns...)),
	}
}

// indexJob prepares a fresh crawl of rawURL.
func (r *runner) indexJob(ctx context.Context, rawURL string) (*pipeline.Job, error) {
	a, clean, site, err := r.newAdapter(ctx, rawURL, "")
	if err != nil {
		return nil, err
	}
	t, err := tree.New(clean, rootName(clean))
	if err != nil {
		return nil, err
	}
	return &pipeline.Job{
		RootURL:      clean,
		Adapter:      a,
		Tree:         t,
		CrawlOptions: r.crawlOptions(a, site),
	}, nil
}

// resumeJob prepares the continuation of the crawl saved at snapshotPath.
// The snapshot is updated in place when the run ends.
func (r *runner) resumeJob(ctx context.Context, snapshotPath string, retryErrors bool) (*pipeline.Job, error) {
	header, err := snapshot.LoadHeader(snapshotPath)
	if err != nil {
		return nil, err
	}
	var opts []snapshot.Option
	if retryErrors {
		opts = append(opts, snapshot.WithRetryErrors())
	}
	t, pending, err := snapshot.Load(snapshotPath, opts...)
	if err != nil {
		return nil, err
	}

	a, _, site, err := r.newAdapter(ctx, header.RootURL, header.Backend)
	if err != nil {
		return nil, err
	}
	r.logger.Info("snapshot restored",
		"root", applog.RedactURL(header.RootURL),
		"savedAt", header.SavedAt,
		"folders", t.Len(),
		"pending", len(pending),
	)
	return &pipeline.Job{
		RootURL:      header.RootURL,
		Adapter:      a,
		Tree:         t,
		Resumed:      true,
		Pending:      pending,
		CrawlOptions: r.crawlOptions(a, site),
		SnapshotPath: snapshotPath,
	}, nil
}

// newPipeline creates the pipeline of one root.
func (r *runner) newPipeline() *pipeline.Pipeline {
	pcfg := pipeline.DefaultPipelineConfig{
		DB:            r.db,
		ReportOptions: r.reportOptions(),
		Output:        r.out,
	}
	if r.progress != nil {
		pcfg.Progress = r.progress.update
	}
	if !r.cfg.NoSnapshot {
		pcfg.SnapshotDir = r.cfg.SnapshotDir
	}
	return pipeline.DefaultPipeline(pcfg, pipeline.WithLogger(r.logger))
}

func (r *runner) reportOptions() []pipeline.ReportStepOption {
	format := pipeline.FormatText
	switch {
	case r.cfg.JSONReport:
		format = pipeline.FormatJSON
	case r.cfg.MarkdownReport:
		format = pipeline.FormatMarkdown
	}

	opts := []pipeline.ReportStepOption{
		pipeline.WithReportFormat(format),
		pipeline.WithReportVersion(getVersion()),
		pipeline.WithReportVerbose(r.cfg.Verbose),
	}
	if r.cfg.ReportFile != "" {
		opts = append(opts, pipeline.WithReportFile(r.cfg.ReportFile, r.multiRoot))
	}
	if r.cfg.URLListDir != "" {
		opts = append(opts, pipeline.WithURLListDir(r.cfg.URLListDir))
	}
	return opts
}

// run crawls every job and summarizes the outcome on the status stream.
func (r *runner) run(ctx context.Context, jobs []*pipeline.Job) error {
	r.multiRoot = len(jobs) > 1
	bp := pipeline.NewBatchProcessor(r.newPipeline,
		pipeline.WithConcurrency(r.cfg.BatchSize),
		pipeline.WithBatchLogger(r.logger),
	)
	return r.finish(jobs, bp.ProcessBatch(ctx, jobs))
}

func (r *runner) finish(jobs []*pipeline.Job, batchErr error) error {
	failed := 0
	for _, job := range jobs {
		root := applog.RedactURL(job.RootURL)
		if job.Report != nil && job.Report.Outcome == model.OutcomeCancelled && job.SnapshotPath != "" {
			fmt.Fprintf(r.status, "Crawl of %s interrupted. Resume with:\n  odindexer resume %s\n", root, job.SnapshotPath)
		}
		if job.Err != nil && !errors.Is(job.Err, context.Canceled) {
			failed++
			fmt.Fprintf(r.status, "Error: %s: %v\n", root, job.Err)
		}
	}

	switch {
	case batchErr != nil:
		return fmt.Errorf("%w: %w", errInterrupted, batchErr)
	case failed > 0:
		return fmt.Errorf("%d of %d roots failed", failed, len(jobs))
	default:
		return nil
	}
}

// rootName is the display name of a root folder: the last path segment,
// or the host for a site root.
func rootName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." || name == "" {
		return u.Hostname()
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		return unescaped
	}
	return name
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
