package main

import (
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nao1215/odindexer/internal/crawler"
)

// progressInterval is the minimum time between two progress lines.
const progressInterval = time.Second

// progressPrinter prints one status line per root at most once per
// interval. It is called from scheduler workers and must not block them
// for long.
type progressPrinter struct {
	w        io.Writer
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{
		w:        w,
		interval: progressInterval,
		now:      time.Now,
		last:     make(map[string]time.Time),
	}
}

// update prints the counters of rootURL unless a line was printed for it
// within the interval.
func (p *progressPrinter) update(rootURL string, pr crawler.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if last, ok := p.last[rootURL]; ok && now.Sub(last) < p.interval {
		return
	}
	p.last[rootURL] = now
	fmt.Fprintln(p.w, formatProgress(rootURL, pr))
}

// formatProgress renders one status line such as
// "[example.com] 12 folders done, 3 queued, 1,204 files, 4.1 GiB".
func formatProgress(rootURL string, pr crawler.Progress) string {
	line := fmt.Sprintf("[%s] %s folders done, %d queued, %s files, %s",
		progressLabel(rootURL),
		humanize.Comma(pr.FoldersCompleted),
		pr.Queued,
		humanize.Comma(pr.FilesDiscovered),
		humanize.IBytes(nonNegative(pr.BytesDiscovered)),
	)
	if pr.FoldersErrored > 0 {
		line += fmt.Sprintf(", %d failed", pr.FoldersErrored)
	}
	return line
}

// progressLabel shortens a root URL to its host.
func progressLabel(rootURL string) string {
	u, err := url.Parse(rootURL)
	if err != nil || u.Host == "" {
		return rootURL
	}
	return u.Host
}

func nonNegative(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}
