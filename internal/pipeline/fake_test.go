package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/nao1215/odindexer/internal/model"
	"github.com/nao1215/odindexer/internal/tree"
)

// fakeAdapter serves fixed pages keyed by folder URL. Listing the folder
// named by block cancels the crawl and fails transiently, as an
// interrupted request would.
type fakeAdapter struct {
	pages  map[string]*model.Page
	block  string
	cancel context.CancelFunc

	mu     sync.Mutex
	listed []string
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) Limits() model.Limits { return model.Limits{} }

func (f *fakeAdapter) ListPage(_ context.Context, folder model.Folder, _ string) (*model.Page, error) {
	f.mu.Lock()
	f.listed = append(f.listed, folder.URL)
	f.mu.Unlock()

	if folder.URL == f.block && f.cancel != nil {
		f.cancel()
		return nil, model.Transient(errors.New("interrupted"))
	}
	page, ok := f.pages[folder.URL]
	if !ok {
		return nil, model.Fatal(fmt.Errorf("no listing for %s", folder.URL))
	}
	return page, nil
}

func (f *fakeAdapter) listedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.listed...)
}

// sitePages is example.com/pub/ with one subfolder and three files.
func sitePages(host string) map[string]*model.Page {
	root := "http://" + host + "/pub/"
	return map[string]*model.Page{
		root: {
			Folders: []model.FolderEntry{{Name: "iso", URL: root + "iso/"}},
			Files:   []model.File{{URL: root + "readme.txt", Name: "readme.txt", Size: 10}},
		},
		root + "iso/": {
			Files: []model.File{
				{URL: root + "iso/a.iso", Name: "a.iso", Size: 100},
				{URL: root + "iso/b.iso", Name: "b.iso", Size: 200},
			},
		},
	}
}

func newJob(t *testing.T, rootURL string, a *fakeAdapter) *Job {
	t.Helper()
	tr, err := tree.New(rootURL, "pub")
	if err != nil {
		t.Fatalf("tree.New error: %v", err)
	}
	return &Job{RootURL: rootURL, Adapter: a, Tree: tr}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
