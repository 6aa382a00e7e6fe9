package snapshot

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/nao1215/odindexer/internal/model"
	"github.com/nao1215/odindexer/internal/tree"
)

// SchemaVersion is the version written by Serialize and accepted by Restore.
const SchemaVersion = 1

// Header is the metadata of a snapshot, readable without rebuilding the tree.
type Header struct {
	// SchemaVersion is the format version.
	SchemaVersion int `json:"schemaVersion"`

	// RootURL is the URL the crawl started from.
	RootURL string `json:"rootUrl"`

	// Backend is the name of the adapter that listed the tree, if recorded.
	Backend string `json:"backend,omitempty"`

	// SavedAt is when the snapshot was written.
	SavedAt time.Time `json:"savedAt"`

	// Checksum is the hex SHA3-256 of the compacted root payload.
	Checksum string `json:"checksum"`
}

type document struct {
	Header
	Root json.RawMessage `json:"root"`
}

// folderRecord is the persisted form of one folder.
type folderRecord struct {
	URL     string          `json:"url"`
	Name    string          `json:"name"`
	Status  model.Status    `json:"status"`
	Cursor  string          `json:"cursor,omitempty"`
	Error   string          `json:"error,omitempty"`
	Stats   tree.Stats      `json:"stats"`
	Files   []model.File    `json:"files,omitempty"`
	Folders []*folderRecord `json:"folders,omitempty"`
}

type options struct {
	backend     string
	retryErrors bool
	now         func() time.Time
}

// Option configures Serialize, Save, Restore and Load.
type Option func(*options)

// WithBackend records the adapter name in the snapshot header.
func WithBackend(name string) Option {
	return func(o *options) {
		o.backend = name
	}
}

// WithRetryErrors makes Restore reset every Error folder to Pending so that
// the failed subtrees are crawled again.
func WithRetryErrors() Option {
	return func(o *options) {
		o.retryErrors = true
	}
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Serialize encodes t as a snapshot document. Statistics are recalculated
// and the tree is read while no mutation is in progress.
func Serialize(t *tree.Tree, opts ...Option) ([]byte, error) {
	o := newOptions(opts)

	var root *folderRecord
	if err := t.Consistent(func() error {
		root = record(t, t.Root())
		return nil
	}); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot tree: %w", err)
	}
	doc := document{
		Header: Header{
			SchemaVersion: SchemaVersion,
			RootURL:       t.Root().URL(),
			Backend:       o.backend,
			SavedAt:       o.now().UTC(),
			Checksum:      checksum(payload),
		},
		Root: payload,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

func record(t *tree.Tree, n *tree.Node) *folderRecord {
	r := &folderRecord{
		URL:    n.URL(),
		Name:   n.Name(),
		Status: n.Status(),
		Cursor: n.Cursor(),
		Error:  n.Reason(),
		Stats:  n.Stats(),
		Files:  n.Files(),
	}
	for _, id := range n.Folders() {
		if child, ok := t.Node(id); ok {
			r.Folders = append(r.Folders, record(t, child))
		}
	}
	return r
}

// ReadHeader decodes the snapshot header without verifying or rebuilding
// the tree.
func ReadHeader(data []byte) (Header, error) {
	var h Header
	if err := json.Unmarshal(data, &h); err != nil {
		return Header{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return h, nil
}

// Restore rebuilds a tree from a snapshot document. It returns the tree and
// the folders still to crawl in breadth-first canonical order.
//
// InProgress folders are demoted to Pending with their cursor kept. Pending
// folders below an Error folder are not returned, because the crawl that
// wrote the snapshot would never have reached them either. With
// WithRetryErrors the Error folders are reset to Pending first.
func Restore(data []byte, opts ...Option) (*tree.Tree, []tree.NodeID, error) {
	o := newOptions(opts)

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if doc.SchemaVersion != SchemaVersion {
		return nil, nil, fmt.Errorf("%w: got %d, want %d", ErrSchemaVersion, doc.SchemaVersion, SchemaVersion)
	}
	if len(doc.Root) == 0 {
		return nil, nil, fmt.Errorf("%w: missing root", ErrCorrupt)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, doc.Root); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if sum := checksum(compact.Bytes()); sum != doc.Checksum {
		return nil, nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	var root folderRecord
	if err := json.Unmarshal(compact.Bytes(), &root); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if tree.Canonical(root.URL) != tree.Canonical(doc.RootURL) {
		return nil, nil, fmt.Errorf("%w: root %q does not match header %q", ErrCorrupt, root.URL, doc.RootURL)
	}

	t, err := rebuild(&root, o)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return t, pending(t), nil
}

// rebuild attaches the records level by level so that every parent exists
// before its children.
func rebuild(root *folderRecord, o options) (*tree.Tree, error) {
	t, err := tree.NewFromState(state(root, o))
	if err != nil {
		return nil, err
	}

	type item struct {
		parent tree.NodeID
		rec    *folderRecord
	}
	queue := make([]item, 0, len(root.Folders))
	for _, c := range root.Folders {
		queue = append(queue, item{parent: t.Root().ID(), rec: c})
	}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		if it.rec == nil {
			return nil, fmt.Errorf("empty folder record below %d", it.parent)
		}
		id, err := t.Attach(it.parent, state(it.rec, o))
		if err != nil {
			return nil, err
		}
		for _, c := range it.rec.Folders {
			queue = append(queue, item{parent: id, rec: c})
		}
	}

	t.Recalculate()
	return t, nil
}

func state(r *folderRecord, o options) tree.NodeState {
	st := tree.NodeState{
		URL:    r.URL,
		Name:   r.Name,
		Status: r.Status,
		Cursor: r.Cursor,
		Reason: r.Error,
		Files:  r.Files,
	}
	switch st.Status {
	case model.StatusInProgress:
		st.Status = model.StatusPending
	case model.StatusError:
		if o.retryErrors {
			// The failed folder is listed again from its first page.
			st.Status = model.StatusPending
			st.Cursor = ""
			st.Reason = ""
		}
	case model.StatusDone:
		st.Cursor = ""
	}
	return st
}

// pending returns the Pending folders that are not below an Error folder.
func pending(t *tree.Tree) []tree.NodeID {
	blocked := make(map[tree.NodeID]bool)
	ids := make([]tree.NodeID, 0)
	_ = t.WalkBreadthFirst(func(n *tree.Node) error {
		parent, ok := n.Parent()
		if n.Status() == model.StatusError || (ok && blocked[parent]) {
			blocked[n.ID()] = true
			return nil
		}
		if n.Status() == model.StatusPending {
			ids = append(ids, n.ID())
		}
		return nil
	})
	return ids
}

func checksum(payload []byte) string {
	sum := sha3.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
