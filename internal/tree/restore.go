package tree

import (
	"fmt"

	"github.com/nao1215/odindexer/internal/model"
)

// NodeState is the persisted state of one folder, used to rebuild a tree
// from a snapshot.
type NodeState struct {
	URL    string
	Name   string
	Status model.Status
	Cursor string
	Reason string
	Files  []model.File
}

// NewFromState creates a tree whose root carries the given state.
// Call Attach for the descendants and Recalculate once the tree is complete.
func NewFromState(root NodeState) (*Tree, error) {
	t, err := New(root.URL, root.Name)
	if err != nil {
		return nil, err
	}
	t.root.apply(root)
	return t, nil
}

// Attach adds a restored folder below parent and returns its ID.
// Children must be attached in canonical order for ordering to be
// reproduced exactly; Attach still inserts at the sorted position.
func (t *Tree) Attach(parent NodeID, st NodeState) (NodeID, error) {
	if st.URL == "" {
		return 0, ErrEmptyURL
	}
	p, ok := t.Node(parent)
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrNodeNotFound, parent)
	}

	canonical := Canonical(st.URL)
	id := IDFor(canonical)

	child := newNode(id, canonical, st.Name, ChildPath(p.path, st.Name))
	child.parent = p.id
	child.hasParent = true
	child.depth = p.depth + 1
	child.apply(st)

	if existing, loaded := t.nodes.LoadOrStore(id, child); loaded {
		if existing.(*Node).url != canonical {
			return 0, fmt.Errorf("%w: %q and %q", ErrIDCollision, existing.(*Node).url, canonical)
		}
		return 0, fmt.Errorf("duplicate folder %q in snapshot", canonical)
	}
	t.count.Add(1)

	p.mu.Lock()
	p.insertFolder(childRef{key: sortKey(st.Name), url: canonical, id: id})
	p.mu.Unlock()
	return id, nil
}

// apply copies persisted state into a fresh node.
func (n *Node) apply(st NodeState) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status = st.Status
	n.cursor = st.Cursor
	n.reason = st.Reason
	n.direct = n.direct.Add(n.mergeFiles(st.Files))
	n.agg = n.direct
}
