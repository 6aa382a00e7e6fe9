// Package ratelimit provides the per-backend request limiter used by a crawl.
//
// A Limiter grants at most N permits per window W, where N is the
// documented quota scaled by a safety fraction. Waiters are served in
// arrival order. A backend that signals throttling can be told to back off
// with Penalize, which delays every following permit without discarding the
// window accounting already accumulated.
//
// Each crawl owns its own Limiter; concurrent crawls of different roots
// never share one.
package ratelimit
