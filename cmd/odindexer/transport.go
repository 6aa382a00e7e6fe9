package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nao1215/odindexer/internal/backend"
	"github.com/nao1215/odindexer/internal/config"
	"github.com/nao1215/odindexer/internal/tor"
)

// transport is the network path of a run: direct, through a SOCKS5 proxy,
// or through an embedded Tor daemon.
type transport struct {
	client   *tor.Client
	embedded *tor.EmbeddedTor
	timeout  time.Duration
	logger   *slog.Logger
}

// setupTransport connects the run to its proxy, starting embedded Tor when
// requested. The proxy is checked before any crawl starts.
func setupTransport(ctx context.Context, cfg *config.Config, logger *slog.Logger, status io.Writer) (*transport, error) {
	tr := &transport{timeout: cfg.Timeout, logger: logger}

	switch {
	case cfg.ProxyAddress != "":
		client, err := tor.NewClient(cfg.ProxyAddress, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create proxy client: %w", err)
		}
		if s := client.CheckConnection(ctx); s != tor.ProxyStatusOK {
			return nil, fmt.Errorf("proxy check failed: %s (make sure a SOCKS5 proxy is running at %s): %w",
				s, cfg.ProxyAddress, s.Err())
		}
		logger.Info("proxy connection verified", "address", cfg.ProxyAddress)
		tr.client = client

	case cfg.UseTor:
		fmt.Fprintln(status, "Starting embedded Tor daemon...")
		fmt.Fprintf(status, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

		embedded := tor.NewEmbeddedTor(tor.WithStartupTimeout(cfg.TorStartupTimeout))
		if err := embedded.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start embedded Tor: %w", err)
		}
		tr.embedded = embedded

		client, err := embedded.NewClient(cfg.Timeout)
		if err != nil {
			tr.Close()
			return nil, fmt.Errorf("failed to create Tor client: %w", err)
		}
		if s := client.CheckConnection(ctx); s != tor.ProxyStatusOK {
			tr.Close()
			return nil, fmt.Errorf("embedded Tor proxy check failed: %s: %w", s, s.Err())
		}
		logger.Info("embedded Tor daemon started", "socksAddr", embedded.SocksAddr())
		fmt.Fprintf(status, "SOCKS proxy: %s\n\n", embedded.SocksAddr())
		tr.client = client
	}
	return tr, nil
}

// proxied reports whether requests leave through a proxy.
func (t *transport) proxied() bool {
	return t.client != nil
}

// apply sets the HTTP client and FTP dialer of o. Each root gets its own
// HTTP client so connection pools are not shared between hosts.
func (t *transport) apply(o *backend.Options) {
	if t.client == nil {
		o.HTTPClient = &http.Client{Timeout: t.timeout}
		return
	}
	o.HTTPClient = t.client.NewHTTPClient()
	o.DialContext = t.client.DialContext
}

// Close stops the embedded Tor daemon, if one was started.
func (t *transport) Close() {
	if t.embedded == nil {
		return
	}
	t.logger.Info("stopping embedded Tor daemon")
	if err := t.embedded.Stop(); err != nil {
		t.logger.Error("failed to stop embedded Tor", "error", err)
	}
	t.embedded = nil
}
