package tree

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/nao1215/odindexer/internal/model"
)

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	tr, err := New("http://example.com/A/", "A")
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return tr
}

func names(files []model.File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Name
	}
	return out
}

// TestCanonical tests URL normalization for identity.
func TestCanonical(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in       string
		expected string
	}{
		{"HTTP://Example.COM/Dir/", "http://example.com/Dir/"},
		{"http://example.com/dir/#top", "http://example.com/dir/"},
		{"http://example.com", "http://example.com/"},
		{"ftp://host/pub/", "ftp://host/pub/"},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			if got := Canonical(tc.in); got != tc.expected {
				t.Errorf("Canonical(%q) = %q, expected %q", tc.in, got, tc.expected)
			}
		})
	}
}

// TestNewRequiresURL tests that an empty root is rejected.
func TestNewRequiresURL(t *testing.T) {
	t.Parallel()

	if _, err := New("", "root"); !errors.Is(err, ErrEmptyURL) {
		t.Errorf("expected ErrEmptyURL, got %v", err)
	}
}

// TestMergePageOrdering tests folders-first ordinal ordering.
func TestMergePageOrdering(t *testing.T) {
	t.Parallel()

	tr := newTestTree(t)
	root := tr.Root()

	page := &model.Page{
		Files: []model.File{
			{URL: "http://example.com/A/z.txt", Name: "z.txt", Size: 5},
			{URL: "http://example.com/A/b", Name: "b", Size: 10},
			{URL: "http://example.com/A/B", Name: "B", Size: 0},
		},
		Folders: []model.FolderEntry{
			{Name: "zeta", URL: "http://example.com/A/zeta/"},
			{Name: "Alpha", URL: "http://example.com/A/Alpha/"},
		},
	}
	created, err := tr.MergePage(root.ID(), page)
	if err != nil {
		t.Fatalf("MergePage error: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 created folders, got %d", len(created))
	}

	got := names(root.Files())
	expected := []string{"B", "b", "z.txt"}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("file order = %v, expected %v", got, expected)
		}
	}

	folders := root.Folders()
	first, _ := tr.Node(folders[0])
	if first.Name() != "Alpha" {
		t.Errorf("expected Alpha first, got %s", first.Name())
	}
	if first.Path() != "/Alpha" {
		t.Errorf("expected path /Alpha, got %s", first.Path())
	}

	stats := root.Stats()
	if stats.Files != 3 || stats.Bytes != 15 {
		t.Errorf("got %+v, expected 3 files and 15 bytes", stats)
	}
}

// TestMergePageNormalizesNames tests that NFC and NFD names collate alike.
func TestMergePageNormalizesNames(t *testing.T) {
	t.Parallel()

	tr := newTestTree(t)
	root := tr.Root()

	// "é" precomposed vs "e" + combining acute.
	_, err := tr.MergePage(root.ID(), &model.Page{Files: []model.File{
		{URL: "http://example.com/A/2", Name: "e\u0301b"},
		{URL: "http://example.com/A/1", Name: "\u00e9a"},
	}})
	if err != nil {
		t.Fatalf("MergePage error: %v", err)
	}

	got := root.Files()
	if got[0].URL != "http://example.com/A/1" {
		t.Errorf("expected normalized names to sort together, got %v", names(got))
	}
}

// TestMergePageIdempotent tests that repeated merges change nothing.
func TestMergePageIdempotent(t *testing.T) {
	t.Parallel()

	tr := newTestTree(t)
	root := tr.Root()
	page := &model.Page{
		Files:   []model.File{{URL: "http://example.com/A/f", Name: "f", Size: 7}},
		Folders: []model.FolderEntry{{Name: "sub", URL: "http://example.com/A/sub/"}},
	}

	for i := 0; i < 3; i++ {
		created, err := tr.MergePage(root.ID(), page)
		if err != nil {
			t.Fatalf("MergePage error: %v", err)
		}
		if i > 0 && len(created) != 0 {
			t.Errorf("merge %d created %d folders, expected 0", i, len(created))
		}
	}

	if len(root.Files()) != 1 || len(root.Folders()) != 1 {
		t.Errorf("expected 1 file and 1 folder, got %d and %d", len(root.Files()), len(root.Folders()))
	}
	if s := root.Stats(); s.Files != 1 || s.Bytes != 7 {
		t.Errorf("got %+v, expected 1 file and 7 bytes", s)
	}
	if tr.Len() != 2 {
		t.Errorf("Len() = %d, expected 2", tr.Len())
	}
}

// TestMergePageUpdatesInPlace tests that a changed file replaces the old one.
func TestMergePageUpdatesInPlace(t *testing.T) {
	t.Parallel()

	tr := newTestTree(t)
	root := tr.Root()

	mustMerge(t, tr, root.ID(), &model.Page{Files: []model.File{{URL: "http://example.com/A/f", Name: "f", Size: 7}}})
	mustMerge(t, tr, root.ID(), &model.Page{Files: []model.File{{URL: "http://example.com/A/f", Name: "f", Size: 9}}})

	if s := root.Stats(); s.Files != 1 || s.Bytes != 9 {
		t.Errorf("got %+v, expected 1 file and 9 bytes", s)
	}
}

// TestMergePagePropagatesStats tests that deltas reach every ancestor.
func TestMergePagePropagatesStats(t *testing.T) {
	t.Parallel()

	tr := newTestTree(t)
	root := tr.Root()

	created := mustMerge(t, tr, root.ID(), &model.Page{
		Folders: []model.FolderEntry{{Name: "b", URL: "http://example.com/A/b/"}},
	})
	b := created[0]
	created = mustMerge(t, tr, b, &model.Page{
		Folders: []model.FolderEntry{{Name: "c", URL: "http://example.com/A/b/c/"}},
		Files:   []model.File{{URL: "http://example.com/A/b/x", Name: "x", Size: 1}},
	})
	c := created[0]
	mustMerge(t, tr, c, &model.Page{Files: []model.File{
		{URL: "http://example.com/A/b/c/y", Name: "y", Size: 100},
		{URL: "http://example.com/A/b/c/z", Name: "z"},
	}})

	if s := root.Stats(); s.Files != 3 || s.Bytes != 101 {
		t.Errorf("root stats %+v, expected 3 files and 101 bytes", s)
	}
	bs, _ := tr.Stats(b)
	if bs.Files != 3 || bs.Bytes != 101 {
		t.Errorf("b stats %+v, expected 3 files and 101 bytes", bs)
	}
	cn, _ := tr.Node(c)
	if cn.Depth() != 2 || cn.Path() != "/b/c" {
		t.Errorf("unexpected depth %d or path %s", cn.Depth(), cn.Path())
	}
	if d := cn.DirectStats(); d.Files != 2 {
		t.Errorf("direct stats %+v, expected 2 files", d)
	}
}

// TestMergePageUnknownNode tests the not-found error.
func TestMergePageUnknownNode(t *testing.T) {
	t.Parallel()

	tr := newTestTree(t)
	if _, err := tr.MergePage(NodeID(1), &model.Page{}); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}
}

// TestMergePageSharedFolder tests that a folder reachable from two parents
// is attached only once.
func TestMergePageSharedFolder(t *testing.T) {
	t.Parallel()

	tr := newTestTree(t)
	root := tr.Root()
	created := mustMerge(t, tr, root.ID(), &model.Page{Folders: []model.FolderEntry{
		{Name: "a", URL: "http://example.com/A/a/"},
		{Name: "b", URL: "http://example.com/A/b/"},
	}})

	shared := model.FolderEntry{Name: "s", URL: "http://example.com/shared/"}
	first := mustMerge(t, tr, created[0], &model.Page{Folders: []model.FolderEntry{shared}})
	second := mustMerge(t, tr, created[1], &model.Page{Folders: []model.FolderEntry{shared}})

	if len(first) != 1 || len(second) != 0 {
		t.Errorf("expected shared folder created once, got %d and %d", len(first), len(second))
	}
	if tr.Len() != 4 {
		t.Errorf("Len() = %d, expected 4", tr.Len())
	}
}

// TestLookup tests URL lookup through canonicalization.
func TestLookup(t *testing.T) {
	t.Parallel()

	tr := newTestTree(t)
	n, ok := tr.Lookup("HTTP://EXAMPLE.com/A/#x")
	if !ok || n != tr.Root() {
		t.Error("expected root to be found by equivalent URL")
	}
	if _, ok := tr.Lookup("http://example.com/other/"); ok {
		t.Error("unexpected lookup hit")
	}
}

// TestTransitions tests the forward-only status machine.
func TestTransitions(t *testing.T) {
	t.Parallel()

	t.Run("happy path", func(t *testing.T) {
		t.Parallel()
		tr := newTestTree(t)
		id := tr.Root().ID()

		if err := tr.Start(id); err != nil {
			t.Fatalf("Start error: %v", err)
		}
		if err := tr.Start(id); err != nil {
			t.Fatalf("reclaiming an in-progress node must succeed: %v", err)
		}
		if err := tr.SetCursor(id, "page-2"); err != nil {
			t.Fatalf("SetCursor error: %v", err)
		}
		if err := tr.Finish(id); err != nil {
			t.Fatalf("Finish error: %v", err)
		}
		if tr.Root().Status() != model.StatusDone {
			t.Errorf("expected done, got %s", tr.Root().Status())
		}
		if tr.Root().Cursor() != "" {
			t.Error("expected cursor to be cleared on finish")
		}
	})

	t.Run("backwards", func(t *testing.T) {
		t.Parallel()
		tr := newTestTree(t)
		id := tr.Root().ID()

		if err := tr.Finish(id); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Finish on pending: expected ErrInvalidTransition, got %v", err)
		}
		_ = tr.Start(id)
		_ = tr.Finish(id)
		if err := tr.Start(id); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Start on done: expected ErrInvalidTransition, got %v", err)
		}
		if err := tr.Fail(id, "x"); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Fail on done: expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("fail", func(t *testing.T) {
		t.Parallel()
		tr := newTestTree(t)
		id := tr.Root().ID()

		_ = tr.Start(id)
		if err := tr.Fail(id, "404 not found"); err != nil {
			t.Fatalf("Fail error: %v", err)
		}
		errs := tr.ErrorNodes()
		if len(errs) != 1 || errs[0].Reason != "404 not found" || errs[0].Path != "/" {
			t.Errorf("unexpected error nodes %+v", errs)
		}
	})
}

// TestWalkOrder tests pre-order and breadth-first traversal.
func TestWalkOrder(t *testing.T) {
	t.Parallel()

	tr := newTestTree(t)
	root := tr.Root()
	top := mustMerge(t, tr, root.ID(), &model.Page{Folders: []model.FolderEntry{
		{Name: "y", URL: "http://example.com/A/y/"},
		{Name: "x", URL: "http://example.com/A/x/"},
	}})
	// top is in discovery order: y, x.
	mustMerge(t, tr, top[1], &model.Page{Folders: []model.FolderEntry{
		{Name: "x1", URL: "http://example.com/A/x/x1/"},
	}})

	var pre []string
	_ = tr.Walk(func(n *Node) error {
		pre = append(pre, n.Path())
		return nil
	})
	expectedPre := "[/ /x /x/x1 /y]"
	if fmt.Sprint(pre) != expectedPre {
		t.Errorf("pre-order %v, expected %s", pre, expectedPre)
	}

	var bfs []string
	_ = tr.WalkBreadthFirst(func(n *Node) error {
		bfs = append(bfs, n.Path())
		return nil
	})
	expectedBFS := "[/ /x /y /x/x1]"
	if fmt.Sprint(bfs) != expectedBFS {
		t.Errorf("breadth-first %v, expected %s", bfs, expectedBFS)
	}

	stop := errors.New("stop")
	if err := tr.Walk(func(*Node) error { return stop }); !errors.Is(err, stop) {
		t.Errorf("expected walk to return callback error, got %v", err)
	}
}

// TestUnfinished tests that pending and in-progress nodes are listed.
func TestUnfinished(t *testing.T) {
	t.Parallel()

	tr := newTestTree(t)
	root := tr.Root()
	_ = tr.Start(root.ID())
	created := mustMerge(t, tr, root.ID(), &model.Page{Folders: []model.FolderEntry{
		{Name: "a", URL: "http://example.com/A/a/"},
		{Name: "b", URL: "http://example.com/A/b/"},
	}})
	_ = tr.Finish(root.ID())
	_ = tr.Start(created[0])
	_ = tr.Fail(created[0], "gone")

	pending := tr.Unfinished()
	if len(pending) != 1 || pending[0] != created[1] {
		t.Errorf("Unfinished() = %v, expected [%d]", pending, created[1])
	}

	counts := tr.CountStatus()
	if counts[model.StatusDone] != 1 || counts[model.StatusError] != 1 || counts[model.StatusPending] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}
}

// TestRecalculate tests bottom-up recomputation.
func TestRecalculate(t *testing.T) {
	t.Parallel()

	tr := newTestTree(t)
	root := tr.Root()
	created := mustMerge(t, tr, root.ID(), &model.Page{
		Folders: []model.FolderEntry{{Name: "s", URL: "http://example.com/A/s/"}},
		Files:   []model.File{{URL: "http://example.com/A/1", Name: "1", Size: 1}},
	})
	mustMerge(t, tr, created[0], &model.Page{Files: []model.File{{URL: "http://example.com/A/s/2", Name: "2", Size: 2}}})

	// Corrupt the aggregate to prove Recalculate rebuilds it.
	root.mu.Lock()
	root.agg = Stats{}
	root.mu.Unlock()

	tr.Recalculate()
	if s := root.Stats(); s.Files != 2 || s.Bytes != 3 {
		t.Errorf("got %+v, expected 2 files and 3 bytes", s)
	}

	var seen Stats
	err := tr.Consistent(func() error {
		seen = root.Stats()
		return nil
	})
	if err != nil || seen != root.Stats() {
		t.Errorf("Consistent returned %v with %+v", err, seen)
	}
}

// TestConcurrentMerge tests that parallel merges in sibling subtrees keep
// the root aggregate exact.
func TestConcurrentMerge(t *testing.T) {
	t.Parallel()

	tr := newTestTree(t)
	root := tr.Root()

	var entries []model.FolderEntry
	for i := 0; i < 20; i++ {
		entries = append(entries, model.FolderEntry{
			Name: fmt.Sprintf("d%02d", i),
			URL:  fmt.Sprintf("http://example.com/A/d%02d/", i),
		})
	}
	folders := mustMerge(t, tr, root.ID(), &model.Page{Folders: entries})

	var wg sync.WaitGroup
	for _, id := range folders {
		wg.Add(1)
		go func(id NodeID) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				n, _ := tr.Node(id)
				_, _ = tr.MergePage(id, &model.Page{Files: []model.File{{
					URL:  fmt.Sprintf("%sf%d", n.URL(), j),
					Name: fmt.Sprintf("f%d", j),
					Size: 2,
				}}})
			}
		}(id)
	}
	wg.Wait()

	if s := root.Stats(); s.Files != 1000 || s.Bytes != 2000 {
		t.Errorf("got %+v, expected 1000 files and 2000 bytes", s)
	}
}

// TestAttach tests rebuilding a tree from persisted state.
func TestAttach(t *testing.T) {
	t.Parallel()

	tr, err := NewFromState(NodeState{
		URL:    "http://example.com/A/",
		Name:   "A",
		Status: model.StatusDone,
		Files:  []model.File{{URL: "http://example.com/A/f", Name: "f", Size: 4}},
	})
	if err != nil {
		t.Fatalf("NewFromState error: %v", err)
	}

	child := NodeState{URL: "http://example.com/A/s/", Name: "s", Status: model.StatusPending, Cursor: "tok"}
	id, err := tr.Attach(tr.Root().ID(), child)
	if err != nil {
		t.Fatalf("Attach error: %v", err)
	}
	if _, err := tr.Attach(tr.Root().ID(), child); err == nil {
		t.Error("expected error for duplicate folder")
	}
	if _, err := tr.Attach(NodeID(7), child); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}

	tr.Recalculate()
	n, _ := tr.Node(id)
	if n.Cursor() != "tok" || n.Path() != "/s" {
		t.Errorf("unexpected restored node cursor %q path %q", n.Cursor(), n.Path())
	}
	if s := tr.Root().Stats(); s.Files != 1 || s.Bytes != 4 {
		t.Errorf("got %+v, expected 1 file and 4 bytes", s)
	}
}

func mustMerge(t *testing.T, tr *Tree, id NodeID, page *model.Page) []NodeID {
	t.Helper()
	created, err := tr.MergePage(id, page)
	if err != nil {
		t.Fatalf("MergePage error: %v", err)
	}
	return created
}

// TestChildPath tests that folder names never change the path structure.
func TestChildPath(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		parent   string
		name     string
		expected string
	}{
		{"/", "pub", "/pub"},
		{"", "pub", "/pub"},
		{"/pub", "linux", "/pub/linux"},
		{"/pub", "a/b", "/pub/a%2Fb"},
		{"/pub", "..", "/pub/.."},
		{"/pub", ".", "/pub/."},
		{"/", "..", "/.."},
		{"/pub", "/", "/pub/%2F"},
	}

	for _, tc := range testCases {
		t.Run(tc.parent+"|"+tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ChildPath(tc.parent, tc.name); got != tc.expected {
				t.Errorf("ChildPath(%q, %q) = %q, expected %q", tc.parent, tc.name, got, tc.expected)
			}
		})
	}
}

// TestMergePageOddNames tests folders whose names contain "/" or are dots.
func TestMergePageOddNames(t *testing.T) {
	t.Parallel()

	tr := newTestTree(t)
	created := mustMerge(t, tr, tr.Root().ID(), &model.Page{Folders: []model.FolderEntry{
		{Name: "..", URL: "http://example.com/A/id-dotdot/"},
		{Name: "a/b", URL: "http://example.com/A/id-slash/"},
	}})
	if len(created) != 2 {
		t.Fatalf("expected 2 folders, got %d", len(created))
	}

	paths := make(map[string]bool)
	for _, id := range created {
		n, _ := tr.Node(id)
		paths[n.Path()] = true
		if n.Depth() != 1 {
			t.Errorf("%q has depth %d, expected 1", n.Path(), n.Depth())
		}
	}
	for _, want := range []string{"/..", "/a%2Fb"} {
		if !paths[want] {
			t.Errorf("expected path %q, got %v", want, paths)
		}
	}
}

// TestPrune tests removing subfolders of a failed folder that were never
// listed.
func TestPrune(t *testing.T) {
	t.Parallel()

	tr := newTestTree(t)
	root := tr.Root()
	created := mustMerge(t, tr, root.ID(), &model.Page{Folders: []model.FolderEntry{
		{Name: "done", URL: "http://example.com/A/done/"},
		{Name: "listed", URL: "http://example.com/A/listed/"},
		{Name: "new", URL: "http://example.com/A/new/"},
	}})
	if len(created) != 3 {
		t.Fatalf("expected 3 folders, got %d", len(created))
	}

	done, _ := tr.Lookup("http://example.com/A/done/")
	if err := tr.Start(done.ID()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if err := tr.Finish(done.ID()); err != nil {
		t.Fatalf("Finish error: %v", err)
	}
	listed, _ := tr.Lookup("http://example.com/A/listed/")
	mustMerge(t, tr, listed.ID(), &model.Page{Files: []model.File{{URL: "http://example.com/A/listed/f", Name: "f", Size: 2}}})

	removed, err := tr.Prune(root.ID(), created)
	if err != nil {
		t.Fatalf("Prune error: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed %d folders, expected 1", removed)
	}
	if _, ok := tr.Lookup("http://example.com/A/new/"); ok {
		t.Error("expected unlisted folder to be removed")
	}
	if len(root.Folders()) != 2 || tr.Len() != 3 {
		t.Errorf("expected 2 children and 3 nodes, got %d and %d", len(root.Folders()), tr.Len())
	}
	if s := root.Stats(); s.Files != 1 || s.Bytes != 2 {
		t.Errorf("got %+v, expected 1 file and 2 bytes", s)
	}
	if tr.CountStatus()[model.StatusPending] != 1 {
		t.Errorf("expected only the listed folder pending, got %v", tr.CountStatus())
	}

	if _, err := tr.Prune(NodeID(7), created); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}
}
