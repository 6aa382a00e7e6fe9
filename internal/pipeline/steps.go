package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nao1215/odindexer/internal/crawler"
	"github.com/nao1215/odindexer/internal/database"
	"github.com/nao1215/odindexer/internal/report"
	"github.com/nao1215/odindexer/internal/snapshot"
)

// Step errors.
var (
	// ErrNoReport is returned by steps that need the crawl report when the
	// crawl step did not run.
	ErrNoReport = errors.New("no crawl report")

	// ErrIncompleteJob is returned when a job lacks its tree or adapter.
	ErrIncompleteJob = errors.New("job needs a tree and an adapter")
)

// CrawlStep runs the crawl scheduler over the job's tree.
//
// Design decision: Crawling is a step rather than the pipeline itself
// because:
// 1. Resume and fresh crawls share every step after it
// 2. Tests can replace it with a step that builds a canned report
type CrawlStep struct {
	// options apply to every job, before the job's own options.
	options []crawler.Option

	// progress receives counters of the job's scheduler.
	progress func(rootURL string, p crawler.Progress)

	// logger for structured logging.
	logger *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithCrawlOptions adds scheduler options shared by every job.
func WithCrawlOptions(opts ...crawler.Option) CrawlStepOption {
	return func(s *CrawlStep) {
		s.options = append(s.options, opts...)
	}
}

// WithCrawlProgress sets a callback invoked each time a folder settles.
// It runs on scheduler worker goroutines and must not block.
func WithCrawlProgress(fn func(rootURL string, p crawler.Progress)) CrawlStepOption {
	return func(s *CrawlStep) {
		s.progress = fn
	}
}

// WithCrawlLogger sets a custom logger for the crawl step.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		s.logger = logger
	}
}

// NewCrawlStep creates a new crawling step.
func NewCrawlStep(opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do executes the crawl step. Cancelling ctx drains the scheduler; the
// job still receives the report of the partial crawl.
func (s *CrawlStep) Do(ctx context.Context, job *Job) error {
	if job.Tree == nil || job.Adapter == nil {
		return ErrIncompleteJob
	}

	opts := make([]crawler.Option, 0, len(s.options)+len(job.CrawlOptions)+2)
	opts = append(opts, crawler.WithLogger(s.logger))
	opts = append(opts, s.options...)
	opts = append(opts, job.CrawlOptions...)
	if s.progress != nil {
		root := job.RootURL
		opts = append(opts, crawler.WithProgress(func(p crawler.Progress) {
			s.progress(root, p)
		}))
	}

	sched, err := crawler.NewScheduler(job.Tree, job.Adapter, opts...)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if job.Resumed {
		sched.Seed(job.Pending...)
	}

	r, err := sched.Run(ctx)
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}
	job.Report = r

	s.logger.Info("crawl finished",
		"root", job.RootURL,
		"outcome", string(r.Outcome),
		"folders", r.Folders,
		"files", r.Files,
		"bytes", r.Bytes,
		"errors", len(r.Errors),
		"elapsed", r.Elapsed(),
	)
	return nil
}

// SnapshotStep saves the job's tree so the crawl can be resumed.
type SnapshotStep struct {
	// dir is where snapshots without an explicit path are written.
	dir string

	logger *slog.Logger
}

// NewSnapshotStep creates a step that writes snapshots into dir.
func NewSnapshotStep(dir string, logger *slog.Logger) *SnapshotStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotStep{dir: dir, logger: logger}
}

// Name returns the step name.
func (s *SnapshotStep) Name() string {
	return "snapshot"
}

// Do saves the snapshot and records its path in the report.
func (s *SnapshotStep) Do(_ context.Context, job *Job) error {
	if job.Report == nil {
		return ErrNoReport
	}

	path := job.SnapshotPath
	if path == "" {
		path = filepath.Join(s.dir, report.FileName(job.RootURL, ".json"))
	}

	if err := snapshot.Save(path, job.Tree, snapshot.WithBackend(job.Adapter.Name())); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	job.SnapshotPath = path
	job.Report.SnapshotPath = path

	s.logger.Info("snapshot saved", "root", job.RootURL, "path", path)
	return nil
}

// DatabaseStep records the crawl report in the session database.
type DatabaseStep struct {
	db     *database.SessionDB
	logger *slog.Logger
}

// NewDatabaseStep creates a step that records sessions in db.
func NewDatabaseStep(db *database.SessionDB, logger *slog.Logger) *DatabaseStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &DatabaseStep{db: db, logger: logger}
}

// Name returns the step name.
func (s *DatabaseStep) Name() string {
	return "database"
}

// Do saves the report as a new session.
func (s *DatabaseStep) Do(ctx context.Context, job *Job) error {
	if job.Report == nil {
		return ErrNoReport
	}

	id, err := s.db.SaveSession(ctx, job.Report)
	if err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	job.SessionID = id

	s.logger.Debug("session recorded", "root", job.RootURL, "id", id)
	return nil
}

// Format is a report output format.
type Format string

// Supported report formats.
const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ReportStep renders the job's report and writes the URL list.
type ReportStep struct {
	// output receives the report when no report file is set.
	output io.Writer

	// format selects the writer.
	format Format

	// file is the report file path. Empty writes to output.
	file string

	// perRoot suffixes file with the root name, for batches.
	perRoot bool

	// urlListDir is where the URL list is written. Empty disables it.
	urlListDir string

	// version is embedded in JSON reports.
	version string

	// verbose enables the verbose text report.
	verbose bool

	logger *slog.Logger
}

// ReportStepOption configures a ReportStep.
type ReportStepOption func(*ReportStep)

// WithReportFormat selects the output format. The default is FormatText.
func WithReportFormat(f Format) ReportStepOption {
	return func(s *ReportStep) {
		s.format = f
	}
}

// WithReportFile writes the report to path instead of the output writer.
// With perRoot set, the root name is appended to the file name so that
// jobs of one batch do not overwrite each other.
func WithReportFile(path string, perRoot bool) ReportStepOption {
	return func(s *ReportStep) {
		s.file = path
		s.perRoot = perRoot
	}
}

// WithURLListDir writes the URL list of every job into dir.
func WithURLListDir(dir string) ReportStepOption {
	return func(s *ReportStep) {
		s.urlListDir = dir
	}
}

// WithReportVersion sets the version embedded in JSON reports.
func WithReportVersion(version string) ReportStepOption {
	return func(s *ReportStep) {
		s.version = version
	}
}

// WithReportVerbose enables the verbose text report.
func WithReportVerbose(verbose bool) ReportStepOption {
	return func(s *ReportStep) {
		s.verbose = verbose
	}
}

// WithReportLogger sets a custom logger for the report step.
func WithReportLogger(logger *slog.Logger) ReportStepOption {
	return func(s *ReportStep) {
		s.logger = logger
	}
}

// NewReportStep creates a report step writing to output. Concurrent jobs
// share output, so pass a writer from NewLockedWriter when batching.
func NewReportStep(output io.Writer, opts ...ReportStepOption) *ReportStep {
	s := &ReportStep{
		output: output,
		format: FormatText,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *ReportStep) Name() string {
	return "report"
}

// Do writes the report and the URL list.
func (s *ReportStep) Do(_ context.Context, job *Job) error {
	if job.Report == nil {
		return ErrNoReport
	}

	job.Summary = report.Summarize(job.Report, job.Tree, report.DefaultSummaryLimit)

	var buf bytes.Buffer
	if _, err := s.writer(&buf).WriteSummary(job.Summary); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	if s.file != "" {
		path := s.reportPath(job.RootURL)
		if err := writeFile(path, buf.Bytes()); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		s.logger.Info("report written", "root", job.RootURL, "path", path)
	} else if _, err := s.output.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if s.urlListDir != "" && job.Tree != nil {
		if err := s.writeURLList(job); err != nil {
			return err
		}
	}
	return nil
}

func (s *ReportStep) writer(w io.Writer) report.Writer {
	switch s.format {
	case FormatJSON:
		return report.NewFullJSONWriter(w, s.version, report.WithPrettyPrint())
	case FormatMarkdown:
		return report.NewMarkdownWriter(w)
	default:
		return report.NewSimpleWriter(w, report.WithVerbose(s.verbose))
	}
}

// reportPath returns the report file of one root.
func (s *ReportStep) reportPath(rootURL string) string {
	if !s.perRoot {
		return s.file
	}
	ext := filepath.Ext(s.file)
	base := strings.TrimSuffix(s.file, ext)
	return base + "_" + report.FileName(rootURL, ext)
}

func (s *ReportStep) writeURLList(job *Job) error {
	if err := os.MkdirAll(s.urlListDir, 0o750); err != nil {
		return fmt.Errorf("failed to create url list directory: %w", err)
	}
	path := filepath.Join(s.urlListDir, report.FileName(job.RootURL, ".txt"))

	f, err := os.Create(path) //nolint:gosec // path is built from a sanitized name
	if err != nil {
		return fmt.Errorf("failed to create url list: %w", err)
	}
	n, err := report.WriteURLList(f, job.Tree)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write url list: %w", err)
	}

	s.logger.Info("url list written", "root", job.RootURL, "path", path, "bytes", n)
	return nil
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o600)
}

// lockedWriter serializes writes from concurrent jobs.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLockedWriter returns a writer that is safe for concurrent use.
// Each Write call reaches w whole.
func NewLockedWriter(w io.Writer) io.Writer {
	return &lockedWriter{w: w}
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// DefaultPipelineConfig holds configuration for the default pipeline.
type DefaultPipelineConfig struct {
	// CrawlOptions are scheduler options shared by every job.
	CrawlOptions []crawler.Option

	// Progress receives scheduler counters per root.
	Progress func(rootURL string, p crawler.Progress)

	// SnapshotDir is where snapshots are written. Empty disables snapshots.
	SnapshotDir string

	// DB records sessions. Nil disables the database step.
	DB *database.SessionDB

	// ReportOptions configure the report step.
	ReportOptions []ReportStepOption

	// Output receives the rendered report.
	Output io.Writer
}

// DefaultPipeline creates a pipeline that crawls, then saves the snapshot,
// records the session and writes the report.
//
// Design decision: Snapshot, database and report run as final steps so
// that an interrupted crawl is persisted and reported like a finished
// one. The snapshot goes first because the report shows its path.
func DefaultPipeline(cfg DefaultPipelineConfig, opts ...Option) *Pipeline {
	p := New(opts...)
	logger := p.logger

	p.AddStep(NewCrawlStep(
		WithCrawlOptions(cfg.CrawlOptions...),
		WithCrawlProgress(cfg.Progress),
		WithCrawlLogger(logger),
	))

	if cfg.SnapshotDir != "" {
		p.AddFinally(NewSnapshotStep(cfg.SnapshotDir, logger))
	}
	if cfg.DB != nil {
		p.AddFinally(NewDatabaseStep(cfg.DB, logger))
	}

	output := cfg.Output
	if output == nil {
		output = io.Discard
	}
	reportOpts := append([]ReportStepOption{WithReportLogger(logger)}, cfg.ReportOptions...)
	p.AddFinally(NewReportStep(output, reportOpts...))

	return p
}
