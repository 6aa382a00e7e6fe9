// Package pipeline runs the crawl of each root URL through a sequence of
// steps: crawl, then snapshot, session record and report.
//
// Each root is a Job. A Pipeline executes regular steps in order and then
// its final steps, which run even when the context was cancelled so that a
// drained crawl is still saved and reported.
//
// Design decision: We use a pipeline pattern instead of direct function calls
// because:
// 1. It allows easy addition/removal of steps without modifying core logic
// 2. It provides consistent error handling and logging across steps
// 3. It supports cancellation via context for long-running crawls
//
// The BatchProcessor crawls several roots concurrently with errgroup. Every
// root gets its own scheduler, so rate limits are never shared between
// roots unless the caller passes the same limiter.
package pipeline
