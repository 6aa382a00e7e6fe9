// Package snapshot persists a crawl tree so that an interrupted or partially
// failed crawl can be continued later.
//
// A snapshot is one JSON document:
//
//	{
//	  "schemaVersion": 1,
//	  "rootUrl": "https://example.com/pub/",
//	  "backend": "html",
//	  "savedAt": "2026-01-02T15:04:05Z",
//	  "checksum": "<hex sha3-256 of root>",
//	  "root": { "url": ..., "status": "done", "stats": {...}, "files": [...], "folders": [...] }
//	}
//
// The root payload is the nested folder tree in canonical order. Every
// folder carries its status, cursor, error reason, aggregate statistics and
// direct files. The checksum covers the compacted root payload, so a
// truncated or edited file is rejected with ErrCorrupt.
//
// Restoring demotes InProgress folders to Pending and keeps their cursors:
// a folder parked mid-pagination continues from the page it stopped at.
// Restore also returns the folders still to crawl in breadth-first
// canonical order, ready to be passed to crawler.Scheduler.Seed.
//
// Usage:
//
//	if err := snapshot.Save(path, t, snapshot.WithBackend("html")); err != nil {
//	    return err
//	}
//
//	t, pending, err := snapshot.Load(path, snapshot.WithRetryErrors())
package snapshot
