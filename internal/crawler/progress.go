package crawler

import "sync/atomic"

// Progress is a point-in-time copy of the crawl counters.
type Progress struct {
	// FoldersCompleted is the number of folders that reached Done.
	FoldersCompleted int64

	// FoldersErrored is the number of folders that reached Error.
	FoldersErrored int64

	// FilesDiscovered is the number of file entries returned by listings.
	FilesDiscovered int64

	// BytesDiscovered is the sum of the sizes of those entries.
	BytesDiscovered int64

	// Requests is the number of listing requests issued, retries included.
	Requests int64

	// Queued is the number of folders waiting in the queue.
	Queued int
}

// counters are the lock-free, monotonically increasing crawl counters.
type counters struct {
	foldersCompleted atomic.Int64
	foldersErrored   atomic.Int64
	filesDiscovered  atomic.Int64
	bytesDiscovered  atomic.Int64
	requests         atomic.Int64
}

func (c *counters) snapshot(queued int) Progress {
	return Progress{
		FoldersCompleted: c.foldersCompleted.Load(),
		FoldersErrored:   c.foldersErrored.Load(),
		FilesDiscovered:  c.filesDiscovered.Load(),
		BytesDiscovered:  c.bytesDiscovered.Load(),
		Requests:         c.requests.Load(),
		Queued:           queued,
	}
}
