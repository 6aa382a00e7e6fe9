package tree

import (
	"sort"
	"sync"

	"github.com/nao1215/odindexer/internal/model"
)

// Stats is a file count and byte size pair.
type Stats struct {
	// Files is the number of files.
	Files int64 `json:"files"`

	// Bytes is the total size in bytes. Files of unknown size count as zero.
	Bytes int64 `json:"bytes"`
}

// Add returns s + o.
func (s Stats) Add(o Stats) Stats {
	return Stats{Files: s.Files + o.Files, Bytes: s.Bytes + o.Bytes}
}

// Sub returns s - o.
func (s Stats) Sub(o Stats) Stats {
	return Stats{Files: s.Files - o.Files, Bytes: s.Bytes - o.Bytes}
}

// IsZero reports whether both counters are zero.
func (s Stats) IsZero() bool {
	return s.Files == 0 && s.Bytes == 0
}

// childRef is a sorted reference to a child folder.
type childRef struct {
	key string
	url string
	id  NodeID
}

// Node is a directory in the tree.
//
// Identity fields (id, url, name, path, parent) never change after creation
// and are read without locking. Everything else is guarded by mu.
type Node struct {
	id        NodeID
	url       string
	name      string
	path      string
	parent    NodeID
	hasParent bool
	depth     int

	mu      sync.Mutex
	folders []childRef
	files   []model.File
	fileIdx map[string]int
	cursor  string
	status  model.Status
	reason  string
	direct  Stats
	agg     Stats
}

func newNode(id NodeID, url, name, path string) *Node {
	return &Node{
		id:      id,
		url:     url,
		name:    name,
		path:    path,
		fileIdx: make(map[string]int),
		status:  model.StatusPending,
	}
}

// ID returns the node identifier.
func (n *Node) ID() NodeID { return n.id }

// URL returns the canonical URL of the folder.
func (n *Node) URL() string { return n.url }

// Name returns the display name of the folder.
func (n *Node) Name() string { return n.name }

// Path returns the slash-separated path from the root.
func (n *Node) Path() string { return n.path }

// Depth returns the distance from the root (root is 0).
func (n *Node) Depth() int { return n.depth }

// Parent returns the parent ID. The second value is false for the root.
func (n *Node) Parent() (NodeID, bool) { return n.parent, n.hasParent }

// Folder returns the adapter view of the node.
func (n *Node) Folder() model.Folder {
	return model.Folder{URL: n.url, Name: n.name, Path: n.path}
}

// Status returns the crawl status.
func (n *Node) Status() model.Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

// Cursor returns the stored pagination cursor (empty means none).
func (n *Node) Cursor() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cursor
}

// Reason returns the error reason of a failed node.
func (n *Node) Reason() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reason
}

// Stats returns the aggregate statistics of the subtree rooted here.
func (n *Node) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.agg
}

// DirectStats returns the statistics of the files directly in this folder.
func (n *Node) DirectStats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.direct
}

// Folders returns the child folder IDs in canonical order.
func (n *Node) Folders() []NodeID {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]NodeID, len(n.folders))
	for i, c := range n.folders {
		ids[i] = c.id
	}
	return ids
}

// Files returns a copy of the files in canonical order.
func (n *Node) Files() []model.File {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]model.File, len(n.files))
	copy(out, n.files)
	return out
}

// hasChild reports whether id is already a child folder. mu must be held.
func (n *Node) hasChild(id NodeID) bool {
	for _, c := range n.folders {
		if c.id == id {
			return true
		}
	}
	return false
}

// insertFolder adds a child reference at its sorted position. mu must be held.
func (n *Node) insertFolder(ref childRef) {
	i := sort.Search(len(n.folders), func(i int) bool {
		return !lessRef(n.folders[i].key, n.folders[i].url, ref.key, ref.url)
	})
	n.folders = append(n.folders, childRef{})
	copy(n.folders[i+1:], n.folders[i:])
	n.folders[i] = ref
}

// removeFolder drops a child reference. mu must be held.
func (n *Node) removeFolder(id NodeID) {
	for i, c := range n.folders {
		if c.id == id {
			n.folders = append(n.folders[:i], n.folders[i+1:]...)
			return
		}
	}
}

// mergeFiles stores files, replacing entries with the same URL, and keeps
// the file list sorted. It returns the change of the direct statistics.
// mu must be held.
func (n *Node) mergeFiles(files []model.File) Stats {
	var delta Stats
	changed := false
	for _, f := range files {
		if i, ok := n.fileIdx[f.URL]; ok {
			old := n.files[i]
			if old == f {
				continue
			}
			n.files[i] = f
			delta = delta.Add(Stats{Bytes: f.Size - old.Size})
			changed = true
			continue
		}
		n.fileIdx[f.URL] = len(n.files)
		n.files = append(n.files, f)
		delta = delta.Add(Stats{Files: 1, Bytes: f.Size})
		changed = true
	}
	if !changed {
		return delta
	}

	sort.SliceStable(n.files, func(i, j int) bool {
		return lessRef(sortKey(n.files[i].Name), n.files[i].URL, sortKey(n.files[j].Name), n.files[j].URL)
	})
	for i, f := range n.files {
		n.fileIdx[f.URL] = i
	}
	return delta
}

// lessRef orders by collation key, then by URL so that equal names still
// sort deterministically.
func lessRef(aKey, aURL, bKey, bURL string) bool {
	if aKey != bKey {
		return aKey < bKey
	}
	return aURL < bURL
}
