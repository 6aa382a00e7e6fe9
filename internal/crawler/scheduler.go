package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/odindexer/internal/backend"
	"github.com/nao1215/odindexer/internal/model"
	"github.com/nao1215/odindexer/internal/ratelimit"
	"github.com/nao1215/odindexer/internal/retry"
	"github.com/nao1215/odindexer/internal/tree"
)

// State is the global state of a Scheduler.
type State int32

const (
	// StateStopped means no worker is running. A new scheduler starts here.
	StateStopped State = iota

	// StateRunning means workers are dequeuing folders.
	StateRunning

	// StateDraining means workers are finishing their current request and
	// parking their folders.
	StateDraining
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Scheduler crawls a tree with a bounded pool of workers.
type Scheduler struct {
	tree    *tree.Tree
	adapter backend.Adapter

	threads    int
	limiter    *ratelimit.Limiter
	policy     retry.Policy
	logger     *slog.Logger
	filter     folderFilter
	onProgress func(Progress)

	queue    *workQueue
	counters counters
	state    atomic.Int32

	// mu protects the fields below.
	mu      sync.Mutex
	cancel  context.CancelFunc
	seeded  bool
	drained bool
	started time.Time
}

// NewScheduler creates a scheduler that lists the folders of t with a.
// Without WithLimiter the limiter is derived from a.Limits().
func NewScheduler(t *tree.Tree, a backend.Adapter, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		tree:    t,
		adapter: a,
		threads: DefaultThreads,
		policy:  retry.DefaultPolicy(),
		logger:  slog.New(slog.DiscardHandler),
		queue:   newWorkQueue(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.threads < MinThreads || s.threads > MaxThreads {
		return nil, fmt.Errorf("%w: %d", ErrInvalidThreads, s.threads)
	}
	if err := s.policy.Validate(); err != nil {
		return nil, err
	}
	if s.limiter == nil {
		s.limiter = ratelimit.FromLimits(a.Limits())
	}
	return s, nil
}

// State returns the current global state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Progress returns the current counters. It never blocks.
func (s *Scheduler) Progress() Progress {
	return s.counters.snapshot(s.queue.len())
}

// Pending returns the folders waiting in the queue, parked folders first.
func (s *Scheduler) Pending() []tree.NodeID {
	return s.queue.pending()
}

// Seed queues folders restored from a snapshot. Once seeded, Run does not
// queue the root by itself.
func (s *Scheduler) Seed(ids ...tree.NodeID) {
	s.mu.Lock()
	s.seeded = true
	s.mu.Unlock()
	s.queue.push(ids...)
}

// Drain asks a running crawl to stop. Workers finish the request they are
// waiting on, park their folders and exit. Drain is a no-op unless the
// scheduler is running.
func (s *Scheduler) Drain() {
	if !s.state.CompareAndSwap(int32(StateRunning), int32(StateDraining)) {
		return
	}
	s.mu.Lock()
	s.drained = true
	cancel := s.cancel
	s.mu.Unlock()

	s.queue.close()
	if cancel != nil {
		cancel()
	}
}

// Run crawls until the queue is quiescent or the crawl is drained, and
// returns the report. Cancelling ctx drains the crawl. Calling Run again
// after a drain resumes with the parked folders.
func (s *Scheduler) Run(ctx context.Context) (*model.Report, error) {
	if !s.state.CompareAndSwap(int32(StateStopped), int32(StateRunning)) {
		return nil, ErrAlreadyRunning
	}
	defer s.state.Store(int32(StateStopped))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancel = cancel
	s.drained = false
	if s.started.IsZero() {
		s.started = time.Now()
	}
	first := !s.seeded
	s.seeded = true
	s.mu.Unlock()

	if first {
		if s.probeRoot(runCtx) {
			return s.report(false), nil
		}
		if !s.tree.Root().Status().Terminal() {
			s.queue.push(s.tree.Root().ID())
		}
	}

	s.queue.reopen()
	if runCtx.Err() != nil {
		s.Drain()
	}
	stop := context.AfterFunc(runCtx, s.Drain)
	defer stop()

	var g errgroup.Group
	for range s.threads {
		g.Go(func() error {
			s.work(runCtx)
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	drained := s.drained
	s.cancel = nil
	s.mu.Unlock()

	return s.report(drained), nil
}

// probeRoot handles a root URL that is a single file. It reports whether
// the crawl is already complete.
func (s *Scheduler) probeRoot(ctx context.Context) bool {
	prober, ok := s.adapter.(backend.FileProber)
	root := s.tree.Root()
	if !ok || root.Status() != model.StatusPending {
		return false
	}

	file, err := retry.Do(ctx, s.nodePolicy(root.Folder()), s.limiter, func(rctx context.Context) (*model.File, error) {
		s.counters.requests.Add(1)
		return prober.Probe(rctx, root.URL())
	})
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Debug("probe failed, listing root as a folder", "url", redact(root.URL()), "error", err)
		}
		return false
	}
	if file == nil {
		return false
	}

	id := root.ID()
	if err := s.tree.Start(id); err != nil {
		s.logger.Error("failed to start root", "error", err)
		return false
	}
	page := &model.Page{Files: []model.File{*file}}
	if _, err := s.tree.MergePage(id, page); err != nil {
		s.fail(root, err, nil)
		return true
	}
	s.count(page)
	if err := s.tree.Finish(id); err != nil {
		s.logger.Error("failed to finish root", "error", err)
	}
	s.counters.foldersCompleted.Add(1)
	s.notifyProgress()
	return true
}

func (s *Scheduler) work(ctx context.Context) {
	for {
		id, ok := s.queue.pop()
		if !ok {
			return
		}
		s.process(ctx, id)
		s.queue.done()
		s.notifyProgress()
	}
}

// process pages through one folder. Discovered subfolders are queued before
// the caller marks the folder settled.
func (s *Scheduler) process(ctx context.Context, id tree.NodeID) {
	n, ok := s.tree.Node(id)
	if !ok {
		s.logger.Error("queued folder is not in the tree", "id", uint64(id))
		return
	}
	if n.Status().Terminal() {
		return
	}
	if err := s.tree.Start(id); err != nil {
		s.logger.Error("failed to start folder", "path", n.Path(), "error", err)
		return
	}

	folder := n.Folder()
	policy := s.nodePolicy(folder)
	cursor := n.Cursor()
	var discovered []tree.NodeID

	for {
		page, err := retry.Do(ctx, policy, s.limiter, func(rctx context.Context) (*model.Page, error) {
			s.counters.requests.Add(1)
			return s.adapter.ListPage(rctx, folder, cursor)
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				s.park(id, discovered)
				return
			}
			s.fail(n, err, discovered)
			return
		}

		page = s.filter.apply(folder.Path, page)
		created, err := s.tree.MergePage(id, page)
		if err != nil {
			s.logger.Warn("folder listing conflicts with the tree", "path", folder.Path, "error", err)
		}
		discovered = append(discovered, created...)
		s.count(page)

		next := page.NextCursor
		if next != "" && next == cursor {
			s.fail(n, fmt.Errorf("%w: %q", ErrCursorLoop, next), discovered)
			return
		}
		if err := s.tree.SetCursor(id, next); err != nil {
			s.logger.Error("failed to store cursor", "path", folder.Path, "error", err)
		}
		cursor = next
		if cursor == "" {
			break
		}
		if s.State() == StateDraining {
			s.park(id, discovered)
			return
		}
	}

	if err := s.tree.Finish(id); err != nil {
		s.logger.Error("failed to finish folder", "path", folder.Path, "error", err)
		return
	}
	s.counters.foldersCompleted.Add(1)
	s.queue.push(discovered...)
}

// park puts a folder interrupted by a drain back at the front of the queue.
// Subfolders found on the pages already merged are queued behind it.
func (s *Scheduler) park(id tree.NodeID, discovered []tree.NodeID) {
	s.queue.pushFront(id)
	s.queue.push(discovered...)
}

// fail marks a folder Error. The subfolders it discovered in this run were
// never queued, so they are removed instead of staying Pending.
func (s *Scheduler) fail(n *tree.Node, err error, discovered []tree.NodeID) {
	if ferr := s.tree.Fail(n.ID(), err.Error()); ferr != nil {
		s.logger.Error("failed to mark folder as failed", "path", n.Path(), "error", ferr)
		return
	}
	if _, perr := s.tree.Prune(n.ID(), discovered); perr != nil {
		s.logger.Error("failed to prune unlisted folders", "path", n.Path(), "error", perr)
	}
	s.counters.foldersErrored.Add(1)
	s.logger.Warn("folder failed", "url", redact(n.URL()), "path", n.Path(), "error", err)
}

func (s *Scheduler) count(page *model.Page) {
	var size int64
	for _, f := range page.Files {
		size += f.Size
	}
	s.counters.filesDiscovered.Add(int64(len(page.Files)))
	s.counters.bytesDiscovered.Add(size)
}

func (s *Scheduler) notifyProgress() {
	if s.onProgress != nil {
		s.onProgress(s.Progress())
	}
}

// nodePolicy returns the retry policy for one folder, logging every retry.
func (s *Scheduler) nodePolicy(folder model.Folder) retry.Policy {
	p := s.policy
	next := p.Notify
	p.Notify = func(attempt int, kind retry.Kind, err error, wait time.Duration) {
		s.logger.Debug("retrying folder",
			"path", folder.Path,
			"attempt", attempt,
			"kind", kind.String(),
			"wait", wait,
			"error", err,
		)
		if next != nil {
			next(attempt, kind, err, wait)
		}
	}
	return p
}

// report builds the run report from a consistent view of the tree.
func (s *Scheduler) report(drained bool) *model.Report {
	root := s.tree.Root()
	r := model.NewReport(root.URL())
	r.Backend = s.adapter.Name()

	s.mu.Lock()
	r.Started = s.started
	s.mu.Unlock()

	_ = s.tree.Consistent(func() error {
		st := root.Stats()
		r.Files = st.Files
		r.Bytes = st.Bytes
		r.Folders = s.tree.Len()
		return nil
	})
	counts := s.tree.CountStatus()
	r.FoldersCompleted = int64(counts[model.StatusDone])
	r.Errors = s.tree.ErrorNodes()

	switch {
	case drained && s.queue.len() > 0:
		r.Outcome = model.OutcomeCancelled
	case r.HasErrors():
		r.Outcome = model.OutcomeCompletedWithErrors
	default:
		r.Outcome = model.OutcomeCompleted
	}
	r.Finished = time.Now()
	return r
}

// redact removes credentials from a URL before it is logged.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Redacted()
}
