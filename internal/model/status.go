package model

import (
	"encoding/json"
	"fmt"
)

// Status is the crawl state of a directory node.
// A node moves strictly forward: Pending -> InProgress -> {Done, Error}.
type Status int

const (
	// StatusPending means the folder is queued but has not been attempted.
	StatusPending Status = iota

	// StatusInProgress means a worker is paging through the folder.
	StatusInProgress

	// StatusDone means every page was consumed without error.
	StatusDone

	// StatusError means the folder was given up after retries.
	// Error is terminal for the node but never blocks siblings or ancestors.
	StatusError
)

// String returns the lower-case name used in snapshots and logs.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in_progress"
	case StatusDone:
		return "done"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// ParseStatus converts a name produced by String back to a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "pending":
		return StatusPending, nil
	case "in_progress":
		return StatusInProgress, nil
	case "done":
		return StatusDone, nil
	case "error":
		return StatusError, nil
	default:
		return StatusPending, fmt.Errorf("unknown status %q", s)
	}
}

// MarshalJSON encodes the status as its name.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a status name.
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
