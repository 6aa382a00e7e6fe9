package model

import "time"

// Outcome is the terminal result of a crawl.
type Outcome string

const (
	// OutcomeCompleted means the crawl finished with no Error nodes.
	OutcomeCompleted Outcome = "completed"

	// OutcomeCompletedWithErrors means the crawl finished but some folders
	// are in the Error state. Their subtrees are missing from the result.
	OutcomeCompletedWithErrors Outcome = "completed_with_errors"

	// OutcomeCancelled means the crawl was drained before quiescence.
	// The tree still holds everything discovered so far and can be resumed
	// from a snapshot.
	OutcomeCancelled Outcome = "cancelled"
)

// NodeError describes a folder that ended in the Error state.
type NodeError struct {
	// URL is the identity of the failed folder.
	URL string `json:"url"`

	// Path is the display path from the crawl root.
	Path string `json:"path"`

	// Reason is the final error message.
	Reason string `json:"reason"`
}

// Report summarizes one crawl run.
type Report struct {
	// RootURL is the URL the crawl started from.
	RootURL string `json:"rootUrl"`

	// Backend is the name of the adapter that listed the folders.
	Backend string `json:"backend"`

	// Outcome is the terminal state of the crawl.
	Outcome Outcome `json:"outcome"`

	// Folders is the number of folders in the tree (including the root).
	Folders int `json:"folders"`

	// FoldersCompleted is the number of folders that reached Done.
	FoldersCompleted int64 `json:"foldersCompleted"`

	// Files is the aggregate file count of the root.
	Files int64 `json:"files"`

	// Bytes is the aggregate byte size of the root.
	Bytes int64 `json:"bytes"`

	// Errors lists every folder in the Error state.
	Errors []NodeError `json:"errors,omitempty"`

	// SnapshotPath is where the session snapshot was written, if any.
	SnapshotPath string `json:"snapshotPath,omitempty"`

	// Started is when the crawl started.
	Started time.Time `json:"started"`

	// Finished is when the crawl stopped.
	Finished time.Time `json:"finished"`
}

// NewReport creates a report for a crawl of rootURL.
func NewReport(rootURL string) *Report {
	return &Report{
		RootURL: rootURL,
		Errors:  make([]NodeError, 0),
		Started: time.Now(),
	}
}

// Elapsed returns the wall-clock duration of the crawl.
func (r *Report) Elapsed() time.Duration {
	if r.Finished.IsZero() {
		return time.Since(r.Started)
	}
	return r.Finished.Sub(r.Started)
}

// HasErrors reports whether any folder failed.
func (r *Report) HasErrors() bool {
	return len(r.Errors) > 0
}
