package snapshot

import "errors"

// Snapshot errors.
var (
	// ErrSchemaVersion is returned when a snapshot was written by an
	// incompatible version.
	ErrSchemaVersion = errors.New("unsupported snapshot schema version")

	// ErrCorrupt is returned when a snapshot fails its checksum or its tree
	// cannot be rebuilt.
	ErrCorrupt = errors.New("corrupt snapshot")
)
