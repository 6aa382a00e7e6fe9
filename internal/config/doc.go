// Package config provides configuration structures and utilities for odindexer.
// It defines the crawl options (threads, timeouts, retries, rate limits),
// the output preferences, and the per-host site configuration file.
package config
