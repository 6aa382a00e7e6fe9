package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/nao1215/odindexer/internal/crawler"
	"github.com/nao1215/odindexer/internal/database"
	"github.com/nao1215/odindexer/internal/model"
	"github.com/nao1215/odindexer/internal/snapshot"
	"github.com/nao1215/odindexer/internal/tree"
)

const rootURL = "http://example.com/pub/"

// crawledJob returns a job whose crawl already ran to completion.
func crawledJob(t *testing.T) *Job {
	t.Helper()
	job := newJob(t, rootURL, &fakeAdapter{pages: sitePages("example.com")})
	if err := NewCrawlStep(WithCrawlLogger(discardLogger())).Do(context.Background(), job); err != nil {
		t.Fatalf("crawl error: %v", err)
	}
	return job
}

func TestCrawlStep(t *testing.T) {
	t.Parallel()

	t.Run("crawls the tree", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		var updates []string
		step := NewCrawlStep(
			WithCrawlLogger(discardLogger()),
			WithCrawlOptions(crawler.WithThreads(2)),
			WithCrawlProgress(func(root string, _ crawler.Progress) {
				mu.Lock()
				updates = append(updates, root)
				mu.Unlock()
			}),
		)
		job := newJob(t, rootURL, &fakeAdapter{pages: sitePages("example.com")})

		if err := step.Do(context.Background(), job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		r := job.Report
		if r == nil {
			t.Fatal("expected report")
		}
		if r.Outcome != model.OutcomeCompleted || r.Files != 3 || r.Bytes != 310 || r.Folders != 2 {
			t.Errorf("unexpected report: %+v", r)
		}
		if r.Backend != "fake" {
			t.Errorf("Backend = %q, want fake", r.Backend)
		}
		mu.Lock()
		defer mu.Unlock()
		if len(updates) == 0 || updates[0] != rootURL {
			t.Errorf("progress should carry the root URL, got %v", updates)
		}
	})

	t.Run("resumed job lists only pending folders", func(t *testing.T) {
		t.Parallel()

		pages := sitePages("example.com")
		tr, err := tree.New(rootURL, "pub")
		if err != nil {
			t.Fatalf("tree.New error: %v", err)
		}
		root := tr.Root().ID()
		if err := tr.Start(root); err != nil {
			t.Fatal(err)
		}
		created, err := tr.MergePage(root, pages[rootURL])
		if err != nil {
			t.Fatal(err)
		}
		if err := tr.Finish(root); err != nil {
			t.Fatal(err)
		}

		a := &fakeAdapter{pages: pages}
		job := &Job{RootURL: rootURL, Adapter: a, Tree: tr, Resumed: true, Pending: created}
		if err := NewCrawlStep(WithCrawlLogger(discardLogger())).Do(context.Background(), job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got := a.listedURLs(); !slices.Equal(got, []string{rootURL + "iso/"}) {
			t.Errorf("listed = %v", got)
		}
		if job.Report.Files != 3 || job.Report.Outcome != model.OutcomeCompleted {
			t.Errorf("unexpected report: %+v", job.Report)
		}
	})

	t.Run("failed folder is reported", func(t *testing.T) {
		t.Parallel()

		pages := sitePages("example.com")
		delete(pages, rootURL+"iso/")
		job := newJob(t, rootURL, &fakeAdapter{pages: pages})

		if err := NewCrawlStep(WithCrawlLogger(discardLogger())).Do(context.Background(), job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if job.Report.Outcome != model.OutcomeCompletedWithErrors {
			t.Errorf("Outcome = %q", job.Report.Outcome)
		}
		if len(job.Report.Errors) != 1 || job.Report.Errors[0].Path != "/iso" {
			t.Errorf("Errors = %+v", job.Report.Errors)
		}
	})

	t.Run("incomplete job", func(t *testing.T) {
		t.Parallel()

		err := NewCrawlStep().Do(context.Background(), &Job{RootURL: rootURL})
		if !errors.Is(err, ErrIncompleteJob) {
			t.Errorf("err = %v, want ErrIncompleteJob", err)
		}
	})

	t.Run("invalid scheduler options", func(t *testing.T) {
		t.Parallel()

		job := newJob(t, rootURL, &fakeAdapter{pages: sitePages("example.com")})
		job.CrawlOptions = []crawler.Option{crawler.WithThreads(0)}
		err := NewCrawlStep(WithCrawlLogger(discardLogger())).Do(context.Background(), job)
		if !errors.Is(err, crawler.ErrInvalidThreads) {
			t.Errorf("err = %v, want ErrInvalidThreads", err)
		}
	})
}

func TestSnapshotStep(t *testing.T) {
	t.Parallel()

	t.Run("saves under the snapshot directory", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		job := crawledJob(t)

		if err := NewSnapshotStep(dir, discardLogger()).Do(context.Background(), job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := filepath.Join(dir, "example.com_pub.json")
		if job.SnapshotPath != want || job.Report.SnapshotPath != want {
			t.Errorf("paths = %q, %q, want %q", job.SnapshotPath, job.Report.SnapshotPath, want)
		}
		header, err := snapshot.LoadHeader(want)
		if err != nil {
			t.Fatalf("LoadHeader error: %v", err)
		}
		if header.RootURL != rootURL || header.Backend != "fake" {
			t.Errorf("unexpected header: %+v", header)
		}
	})

	t.Run("explicit path wins", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "nested", "session.json")
		job := crawledJob(t)
		job.SnapshotPath = path

		if err := NewSnapshotStep(t.TempDir(), nil).Do(context.Background(), job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("snapshot missing: %v", err)
		}
	})

	t.Run("no report", func(t *testing.T) {
		t.Parallel()

		err := NewSnapshotStep(t.TempDir(), nil).Do(context.Background(), &Job{})
		if !errors.Is(err, ErrNoReport) {
			t.Errorf("err = %v, want ErrNoReport", err)
		}
	})
}

func TestDatabaseStep(t *testing.T) {
	t.Parallel()

	db, err := database.Open(t.TempDir(), database.DefaultOptions())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	job := crawledJob(t)
	step := NewDatabaseStep(db, discardLogger())
	if err := step.Do(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.SessionID == 0 {
		t.Error("expected session id")
	}

	sessions, err := db.ListSessions(context.Background(), rootURL, 10)
	if err != nil {
		t.Fatalf("ListSessions error: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Files != 3 {
		t.Errorf("sessions = %+v", sessions)
	}

	if err := step.Do(context.Background(), &Job{}); !errors.Is(err, ErrNoReport) {
		t.Errorf("err = %v, want ErrNoReport", err)
	}
}

func TestReportStep(t *testing.T) {
	t.Parallel()

	t.Run("writes text to the output", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		job := crawledJob(t)
		if err := NewReportStep(&buf, WithReportLogger(discardLogger())).Do(context.Background(), job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "ODINDEXER REPORT") {
			t.Error("expected text report")
		}
		if job.Summary == nil || len(job.Summary.TopFolders) != 1 {
			t.Errorf("unexpected summary: %+v", job.Summary)
		}
	})

	t.Run("writes markdown", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		step := NewReportStep(&buf, WithReportFormat(FormatMarkdown), WithReportLogger(discardLogger()))
		if err := step.Do(context.Background(), crawledJob(t)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "# odindexer Report") {
			t.Error("expected markdown report")
		}
	})

	t.Run("writes json per root file", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		var buf bytes.Buffer
		step := NewReportStep(&buf,
			WithReportFormat(FormatJSON),
			WithReportFile(filepath.Join(dir, "report.json"), true),
			WithReportVersion("0.1.0"),
			WithReportLogger(discardLogger()),
		)
		if err := step.Do(context.Background(), crawledJob(t)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if buf.Len() != 0 {
			t.Error("report file should replace the output")
		}

		data, err := os.ReadFile(filepath.Join(dir, "report_example.com_pub.json"))
		if err != nil {
			t.Fatalf("ReadFile error: %v", err)
		}
		var decoded struct {
			Version string        `json:"version"`
			Report  *model.Report `json:"report"`
		}
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.Version != "0.1.0" || decoded.Report.Files != 3 {
			t.Errorf("unexpected report: %+v", decoded)
		}
	})

	t.Run("writes the url list", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "urls")
		step := NewReportStep(&bytes.Buffer{}, WithURLListDir(dir), WithReportLogger(discardLogger()))
		if err := step.Do(context.Background(), crawledJob(t)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		data, err := os.ReadFile(filepath.Join(dir, "example.com_pub.txt"))
		if err != nil {
			t.Fatalf("ReadFile error: %v", err)
		}
		want := rootURL + "readme.txt\n" + rootURL + "iso/a.iso\n" + rootURL + "iso/b.iso\n"
		if string(data) != want {
			t.Errorf("url list = %q, want %q", data, want)
		}
	})

	t.Run("no report", func(t *testing.T) {
		t.Parallel()

		err := NewReportStep(&bytes.Buffer{}).Do(context.Background(), &Job{})
		if !errors.Is(err, ErrNoReport) {
			t.Errorf("err = %v, want ErrNoReport", err)
		}
	})
}

func TestReportPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		perRoot bool
		want    string
	}{
		{"single root", "out/report.md", false, "out/report.md"},
		{"per root", "out/report.md", true, "out/report_example.com_pub.md"},
		{"per root without extension", "report", true, "report_example.com_pub"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := NewReportStep(nil, WithReportFile(tt.file, tt.perRoot))
			if got := s.reportPath(rootURL); got != tt.want {
				t.Errorf("reportPath = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDefaultPipeline(t *testing.T) {
	t.Parallel()

	t.Run("step order", func(t *testing.T) {
		t.Parallel()

		db, err := database.Open(t.TempDir(), database.DefaultOptions())
		if err != nil {
			t.Fatalf("Open error: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })

		p := DefaultPipeline(DefaultPipelineConfig{SnapshotDir: t.TempDir(), DB: db})
		if got := p.StepNames(); !slices.Equal(got, []string{"crawl", "snapshot", "database", "report"}) {
			t.Errorf("StepNames = %v", got)
		}

		bare := DefaultPipeline(DefaultPipelineConfig{})
		if got := bare.StepNames(); !slices.Equal(got, []string{"crawl", "report"}) {
			t.Errorf("StepNames = %v", got)
		}
	})

	t.Run("cancelled crawl is saved and reported", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		snapDir := t.TempDir()
		db, err := database.Open(t.TempDir(), database.DefaultOptions())
		if err != nil {
			t.Fatalf("Open error: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })

		var out bytes.Buffer
		p := DefaultPipeline(DefaultPipelineConfig{
			SnapshotDir: snapDir,
			DB:          db,
			Output:      &out,
		}, WithLogger(discardLogger()))

		a := &fakeAdapter{pages: sitePages("example.com"), block: rootURL + "iso/", cancel: cancel}
		job := newJob(t, rootURL, a)

		if err := p.Execute(ctx, job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if job.Report.Outcome != model.OutcomeCancelled {
			t.Fatalf("Outcome = %q, want cancelled", job.Report.Outcome)
		}
		if !strings.Contains(out.String(), "CANCELLED") {
			t.Error("expected the report to show the cancellation")
		}

		_, pending, err := snapshot.Load(filepath.Join(snapDir, "example.com_pub.json"))
		if err != nil {
			t.Fatalf("Load error: %v", err)
		}
		if len(pending) != 1 {
			t.Errorf("pending = %v, want the interrupted folder", pending)
		}

		sessions, err := db.ListSessions(context.Background(), rootURL, 10)
		if err != nil {
			t.Fatalf("ListSessions error: %v", err)
		}
		if len(sessions) != 1 || sessions[0].Outcome != model.OutcomeCancelled {
			t.Errorf("sessions = %+v", sessions)
		}
	})
}

func TestLockedWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewLockedWriter(&buf)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = w.Write([]byte("line\n"))
		}()
	}
	wg.Wait()

	if got := strings.Count(buf.String(), "line\n"); got != 20 {
		t.Errorf("got %d lines, want 20", got)
	}
}
