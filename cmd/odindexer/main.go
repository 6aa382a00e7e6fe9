// Package main provides the entry point for the odindexer CLI.
//
// odindexer walks open directories (HTML index pages, FTP servers, Google
// Drive folders and file hosts) and records every file with its size.
// Interrupted crawls are saved to a snapshot and can be resumed.
//
// Usage:
//
//	odindexer index <url>...
//	odindexer resume <snapshot>
//
// See --help for all available options.
package main

// main is the entry point for odindexer.
func main() {
	Execute()
}
