// Package tor routes crawls through Tor or any other SOCKS5 proxy.
//
// A Client wraps a golang.org/x/net/proxy SOCKS5 dialer. It hands out
// HTTP clients for the HTTP based backends and a DialContext function for
// FTP, and can verify that the proxy actually speaks SOCKS5.
//
// EmbeddedTor starts a private Tor daemon with tornago when no Tor service
// is running. Onion helpers detect .onion targets and validate v3
// addresses so that typos fail before the crawl starts.
package tor
