// Package database provides SQLite-based storage for odindexer sessions.
//
// This package implements the SessionDB, which records every finished or
// cancelled crawl:
//   - The crawl report (outcome, folder, file and byte counts)
//   - The folders that failed, with their reason
//   - The path of the snapshot that can resume or retry the crawl
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because:
// 1. No external dependencies - the database is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. Sufficient performance for our use case
// 4. WAL mode provides good concurrent read performance
//
// The tree itself is never stored here. Snapshots are the durable form of a
// tree; the database only indexes them.
package database
