// Package tree provides the directory tree that a crawl materializes.
//
// # Ownership
//
// A Tree exclusively owns every node reachable from its root. Nodes are
// stored in an arena keyed by NodeID (a hash of the canonical URL) and refer
// to their parent by ID only, so ownership flows strictly from the root to
// the children and workers can hold node identifiers across suspension
// points instead of raw pointers.
//
// # Locking
//
// Every node carries its own mutex. Mutations lock the node being changed
// and then each ancestor in turn (never two nodes at once) to propagate
// aggregate statistics, so unrelated subtrees never serialize on each other.
// A tree-level reader/writer lock is held shared by mutators and taken
// exclusively only by Consistent, which recomputes every aggregate before
// running a callback such as a snapshot.
//
// # Ordering
//
// Children are kept sorted: folders before files, then by name. Names are
// NFC-normalized and compared bytewise (ordinal, case-sensitive), so "B"
// sorts before "b" and the order never depends on backend response order or
// worker interleaving.
package tree
