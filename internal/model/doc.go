// Package model defines the core data structures shared across odindexer.
//
// This package contains the following main types:
//   - File: A discovered file (leaf node), immutable once created
//   - Folder: A read-only view of a directory handed to backend adapters
//   - Page: One listing page returned by a backend adapter
//   - BackendError: The classified failure of a backend request
//   - Report: The terminal outcome of a crawl
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The tree, backend, crawler and report packages all need these
// types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for snapshots, reports
// and database storage.
package model
