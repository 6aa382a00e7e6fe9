package tree

import "errors"

// Tree errors.
var (
	// ErrNodeNotFound is returned when a NodeID is not part of the tree.
	ErrNodeNotFound = errors.New("node not found")

	// ErrInvalidTransition is returned when a status change would move a
	// node backwards (e.g. Done -> InProgress).
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrIDCollision is returned when two different URLs hash to the same
	// NodeID. This is astronomically unlikely but must never corrupt the tree.
	ErrIDCollision = errors.New("node id collision")

	// ErrEmptyURL is returned when a folder or root has no URL.
	ErrEmptyURL = errors.New("empty url")
)
