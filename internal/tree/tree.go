package tree

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nao1215/odindexer/internal/model"
)

// Tree is the in-memory directory tree of one crawl.
type Tree struct {
	root  *Node
	nodes sync.Map // NodeID -> *Node
	count atomic.Int64

	// statsMu is held shared by every mutation and exclusively by
	// Consistent.
	statsMu sync.RWMutex
}

// New creates a tree whose root folder is rootURL.
// The root starts Pending.
func New(rootURL, name string) (*Tree, error) {
	if rootURL == "" {
		return nil, ErrEmptyURL
	}
	canonical := Canonical(rootURL)
	root := newNode(IDFor(canonical), canonical, name, "/")

	t := &Tree{root: root}
	t.nodes.Store(root.id, root)
	t.count.Store(1)
	return t, nil
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	return t.root
}

// Node returns the node with the given ID.
func (t *Tree) Node(id NodeID) (*Node, bool) {
	v, ok := t.nodes.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Node), true
}

// Lookup returns the node whose canonical URL equals Canonical(rawURL).
func (t *Tree) Lookup(rawURL string) (*Node, bool) {
	canonical := Canonical(rawURL)
	n, ok := t.Node(IDFor(canonical))
	if !ok || n.url != canonical {
		return nil, false
	}
	return n, true
}

// Len returns the number of folders in the tree, including the root.
func (t *Tree) Len() int {
	return int(t.count.Load())
}

// Stats returns the aggregate statistics of the node with the given ID.
func (t *Tree) Stats(id NodeID) (Stats, error) {
	n, ok := t.Node(id)
	if !ok {
		return Stats{}, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	return n.Stats(), nil
}

// MergePage merges one listing page into the node.
//
// Merging is idempotent by identity: a file or folder URL already present is
// updated in place, never inserted twice. The returned IDs are the folders
// created by this call; they start Pending and become the caller's work.
// A folder already attached elsewhere in the tree (e.g. reachable through
// two parents) is not attached again.
func (t *Tree) MergePage(id NodeID, page *model.Page) ([]NodeID, error) {
	n, ok := t.Node(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	if page == nil {
		return nil, nil
	}

	t.statsMu.RLock()
	defer t.statsMu.RUnlock()

	created := make([]NodeID, 0, len(page.Folders))
	var collision error

	n.mu.Lock()
	for _, entry := range page.Folders {
		if entry.URL == "" {
			continue
		}
		canonical := Canonical(entry.URL)
		childID := IDFor(canonical)
		if childID == n.id || n.hasChild(childID) {
			continue
		}

		child := newNode(childID, canonical, entry.Name, ChildPath(n.path, entry.Name))
		child.parent = n.id
		child.hasParent = true
		child.depth = n.depth + 1

		existing, loaded := t.nodes.LoadOrStore(childID, child)
		if loaded {
			if existing.(*Node).url != canonical && collision == nil {
				collision = fmt.Errorf("%w: %q and %q", ErrIDCollision, existing.(*Node).url, canonical)
			}
			continue
		}
		t.count.Add(1)
		n.insertFolder(childRef{key: sortKey(entry.Name), url: canonical, id: childID})
		created = append(created, childID)
	}

	delta := n.mergeFiles(page.Files)
	n.direct = n.direct.Add(delta)
	n.agg = n.agg.Add(delta)
	parent, hasParent := n.parent, n.hasParent
	n.mu.Unlock()

	if !delta.IsZero() && hasParent {
		t.propagate(parent, delta)
	}
	return created, collision
}

// Prune removes child folders of parent that were never listed. It is used
// when a folder fails after some of its pages were merged, so that folders
// nobody will crawl do not stay Pending in the tree. Children that are no
// longer Pending, or already hold entries, are kept. Prune returns the
// number of folders removed.
func (t *Tree) Prune(parent NodeID, children []NodeID) (int, error) {
	n, ok := t.Node(parent)
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrNodeNotFound, parent)
	}
	if len(children) == 0 {
		return 0, nil
	}

	t.statsMu.RLock()
	defer t.statsMu.RUnlock()

	n.mu.Lock()
	defer n.mu.Unlock()

	removed := 0
	for _, id := range children {
		child, ok := t.Node(id)
		if !ok || !n.hasChild(id) {
			continue
		}
		child.mu.Lock()
		unlisted := child.status == model.StatusPending && len(child.folders) == 0 && len(child.files) == 0
		child.mu.Unlock()
		if !unlisted {
			continue
		}
		n.removeFolder(id)
		t.nodes.Delete(id)
		t.count.Add(-1)
		removed++
	}
	return removed, nil
}

// propagate adds delta to every ancestor starting at id, one lock at a time.
func (t *Tree) propagate(id NodeID, delta Stats) {
	for {
		n, ok := t.Node(id)
		if !ok {
			return
		}
		n.mu.Lock()
		n.agg = n.agg.Add(delta)
		parent, hasParent := n.parent, n.hasParent
		n.mu.Unlock()
		if !hasParent {
			return
		}
		id = parent
	}
}

// SetCursor stores the pagination cursor of a node.
// An empty cursor clears it.
func (t *Tree) SetCursor(id NodeID, cursor string) error {
	n, ok := t.Node(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	t.statsMu.RLock()
	defer t.statsMu.RUnlock()

	n.mu.Lock()
	n.cursor = cursor
	n.mu.Unlock()
	return nil
}

// Start moves a node from Pending to InProgress.
// Starting a node that is already InProgress is allowed so that a worker can
// reclaim a node parked by a drain.
func (t *Tree) Start(id NodeID) error {
	return t.transition(id, model.StatusInProgress, "")
}

// Finish moves an InProgress node to Done and clears its cursor.
func (t *Tree) Finish(id NodeID) error {
	return t.transition(id, model.StatusDone, "")
}

// Fail moves a Pending or InProgress node to Error with the given reason.
func (t *Tree) Fail(id NodeID, reason string) error {
	return t.transition(id, model.StatusError, reason)
}

func (t *Tree) transition(id NodeID, to model.Status, reason string) error {
	n, ok := t.Node(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	t.statsMu.RLock()
	defer t.statsMu.RUnlock()

	n.mu.Lock()
	defer n.mu.Unlock()

	if !allowed(n.status, to) {
		return fmt.Errorf("%w: %s -> %s (%s)", ErrInvalidTransition, n.status, to, n.url)
	}
	n.status = to
	switch to {
	case model.StatusDone:
		n.cursor = ""
	case model.StatusError:
		n.reason = reason
	}
	return nil
}

func allowed(from, to model.Status) bool {
	switch to {
	case model.StatusInProgress:
		return from == model.StatusPending || from == model.StatusInProgress
	case model.StatusDone:
		return from == model.StatusInProgress
	case model.StatusError:
		return from == model.StatusPending || from == model.StatusInProgress
	default:
		return false
	}
}

// Walk visits every node in canonical pre-order (parent before children,
// children in sorted order). Returning a non-nil error stops the walk.
func (t *Tree) Walk(fn func(n *Node) error) error {
	stack := []*Node{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if err := fn(n); err != nil {
			return err
		}
		children := n.Folders()
		for i := len(children) - 1; i >= 0; i-- {
			if c, ok := t.Node(children[i]); ok {
				stack = append(stack, c)
			}
		}
	}
	return nil
}

// WalkBreadthFirst visits every node level by level in canonical order.
func (t *Tree) WalkBreadthFirst(fn func(n *Node) error) error {
	queue := []*Node{t.root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if err := fn(n); err != nil {
			return err
		}
		for _, id := range n.Folders() {
			if c, ok := t.Node(id); ok {
				queue = append(queue, c)
			}
		}
	}
	return nil
}

// Recalculate recomputes direct and aggregate statistics of every node
// bottom-up from the stored files.
func (t *Tree) Recalculate() {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	t.recalculate()
}

func (t *Tree) recalculate() {
	var order []*Node
	_ = t.Walk(func(n *Node) error {
		order = append(order, n)
		return nil
	})

	aggs := make(map[NodeID]Stats, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]

		n.mu.Lock()
		var direct Stats
		for _, f := range n.files {
			direct = direct.Add(Stats{Files: 1, Bytes: f.Size})
		}
		children := make([]NodeID, len(n.folders))
		for j, c := range n.folders {
			children[j] = c.id
		}
		n.mu.Unlock()

		sum := direct
		for _, c := range children {
			sum = sum.Add(aggs[c])
		}

		n.mu.Lock()
		n.direct = direct
		n.agg = sum
		n.mu.Unlock()
		aggs[n.id] = sum
	}
}

// Consistent recalculates every aggregate and runs fn while no mutation can
// happen, so fn observes a tree whose sums are exact.
func (t *Tree) Consistent(fn func() error) error {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	t.recalculate()
	return fn()
}

// ErrorNodes lists every node in the Error state in canonical order.
func (t *Tree) ErrorNodes() []model.NodeError {
	errs := make([]model.NodeError, 0)
	_ = t.Walk(func(n *Node) error {
		n.mu.Lock()
		if n.status == model.StatusError {
			errs = append(errs, model.NodeError{URL: n.url, Path: n.path, Reason: n.reason})
		}
		n.mu.Unlock()
		return nil
	})
	return errs
}

// Unfinished returns the Pending and InProgress nodes in breadth-first
// canonical order.
func (t *Tree) Unfinished() []NodeID {
	ids := make([]NodeID, 0)
	_ = t.WalkBreadthFirst(func(n *Node) error {
		switch n.Status() {
		case model.StatusPending, model.StatusInProgress:
			ids = append(ids, n.id)
		}
		return nil
	})
	return ids
}

// CountStatus returns the number of nodes in each status.
func (t *Tree) CountStatus() map[model.Status]int {
	counts := make(map[model.Status]int)
	_ = t.Walk(func(n *Node) error {
		counts[n.Status()]++
		return nil
	})
	return counts
}
