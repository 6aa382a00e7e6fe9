// Package retry runs backend operations under a rate limiter with
// classification-driven retries.
//
// Every failure is classified into an explicit Kind:
//
//   - RateLimited: the backend throttled us. The limiter is penalized and
//     the call is retried once permitted. It never counts against the budget.
//   - Transient: network errors, timeouts and server errors. Retried with
//     capped exponential backoff until MaxRetries failures.
//   - Fatal: permanent conditions. Never retried.
//
// In-flight requests run on a context detached from crawl cancellation and
// bounded by RequestTimeout, so a drain never abandons a request halfway.
// Waits (limiter and backoff) observe the crawl context: cancelling it makes
// Do return ctx.Err() so the caller can park the work instead of failing it.
package retry
