package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/odindexer/internal/backend"
	"github.com/nao1215/odindexer/internal/crawler"
	"github.com/nao1215/odindexer/internal/model"
	"github.com/nao1215/odindexer/internal/report"
	"github.com/nao1215/odindexer/internal/tree"
)

// Job is the state of one root URL flowing through a pipeline.
// Steps read and fill in its fields.
type Job struct {
	// RootURL is the URL the crawl starts from.
	RootURL string

	// Adapter lists the folders of this root.
	Adapter backend.Adapter

	// Tree is the directory tree being built. For a resumed crawl it is the
	// tree restored from the snapshot.
	Tree *tree.Tree

	// Resumed marks a job restored from a snapshot. Pending then holds the
	// folders to crawl and the root is not queued again.
	Resumed bool

	// Pending are the folders restored from a snapshot.
	Pending []tree.NodeID

	// CrawlOptions are scheduler options specific to this root, such as its
	// limiter and thread count.
	CrawlOptions []crawler.Option

	// SnapshotPath is where the snapshot is saved. Empty means a name
	// derived from RootURL inside the snapshot directory.
	SnapshotPath string

	// SessionID is the database row of the recorded session, if any.
	SessionID int64

	// Report is set by the crawl step.
	Report *model.Report

	// Summary is set by the report step.
	Summary *report.Summary

	// PerformedSteps lists the steps that ran, in order.
	PerformedSteps []string

	// Err is the first step error.
	Err error
}

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence, with each step receiving the job
// filled in by previous steps.
//
// Design decision: We use an interface rather than function types because:
// 1. It allows steps to carry configuration state
// 2. It provides a Name() method for logging and debugging
type Step interface {
	// Do executes the pipeline step.
	// Returns an error if the step fails; the pipeline records it in the job.
	Do(ctx context.Context, job *Job) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline orchestrates the execution of multiple steps.
// Regular steps run in order until one fails or the context is cancelled.
// Final steps always run afterwards, so a cancelled crawl is still
// snapshotted and reported.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// finally contains the steps that run after steps, even on cancellation.
	finally []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// continueOnError determines whether to continue executing steps
	// after one fails. If false, the pipeline stops on first error.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
// This follows the functional options pattern for clean API design.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
// If not set, a default logger is created.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a regular step fails. Failed steps are logged and the first
// error is recorded in the job, but subsequent steps still execute.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps:   make([]Step, 0),
		finally: make([]Step, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// AddFinally appends steps that run after the regular steps regardless of
// failures or cancellation. They receive a context that is never cancelled.
func (p *Pipeline) AddFinally(steps ...Step) {
	p.finally = append(p.finally, steps...)
}

// Execute runs all pipeline steps in sequence.
//
// Design decision: We check the context before each regular step rather
// than during, because steps handle their own cancellation (the crawl step
// drains its scheduler). This allows graceful cleanup between steps while
// still respecting cancellation.
//
// Returns the first error encountered, which is also stored in job.Err.
func (p *Pipeline) Execute(ctx context.Context, job *Job) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"root", job.RootURL,
				"reason", err,
			)
			p.record(job, err)
			break
		}

		if !p.run(ctx, step, job) && !p.continueOnError {
			break
		}
	}

	final := context.WithoutCancel(ctx)
	for _, step := range p.finally {
		p.run(final, step, job)
	}

	return job.Err
}

// run executes one step and reports whether it succeeded.
func (p *Pipeline) run(ctx context.Context, step Step, job *Job) bool {
	p.logger.Debug("executing step",
		"step", step.Name(),
		"root", job.RootURL,
	)

	job.PerformedSteps = append(job.PerformedSteps, step.Name())
	if err := step.Do(ctx, job); err != nil {
		p.logger.Error("step failed",
			"step", step.Name(),
			"root", job.RootURL,
			"error", err,
		)
		p.record(job, err)
		return false
	}

	p.logger.Debug("step completed",
		"step", step.Name(),
		"root", job.RootURL,
	)
	return true
}

func (p *Pipeline) record(job *Job, err error) {
	if job.Err == nil {
		job.Err = err
	}
}

// StepCount returns the number of steps in the pipeline, final steps
// included.
func (p *Pipeline) StepCount() int {
	return len(p.steps) + len(p.finally)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, 0, p.StepCount())
	for _, step := range p.steps {
		names = append(names, step.Name())
	}
	for _, step := range p.finally {
		names = append(names, step.Name())
	}
	return names
}
