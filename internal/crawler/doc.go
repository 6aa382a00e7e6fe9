// Package crawler schedules the listing of every folder of an open directory.
//
// # Architecture
//
// A Scheduler owns a FIFO work queue of folder IDs and a bounded pool of
// worker goroutines. Each worker takes a folder, pages through it with the
// backend adapter (every request goes through the shared rate limiter and
// the retry policy), merges each page into the tree and finally enqueues the
// subfolders it discovered. A folder that cannot be listed is marked Error
// and the crawl continues with its siblings.
//
// Design decision: We keep the queue outside the tree because:
//  1. The tree is the data product and is snapshotted as-is
//  2. Queue order (breadth-first, FIFO) is a scheduling concern
//  3. Parked folders must go back to the front, which the tree knows nothing about
//
// # States
//
// The scheduler is Running while workers dequeue, Draining after Drain (or
// cancellation of the crawl context) while workers finish the request they
// are waiting on, and Stopped once every worker has exited. Draining never
// abandons an in-flight request: its page is merged and the folder is parked
// at the front of the queue with its cursor, so a later Run (or a restored
// snapshot) continues exactly where the crawl stopped.
//
// # Quiescence
//
// The crawl is complete when the queue is empty and no folder is in flight.
// Workers enqueue discovered subfolders before reporting the folder as
// settled, and the empty check runs under the queue lock right after the
// in-flight counter is decremented, so no worker can exit while another is
// about to produce work.
//
// # Usage
//
//	s, err := crawler.NewScheduler(t, adapter, crawler.WithThreads(8))
//	report, err := s.Run(ctx)
package crawler
