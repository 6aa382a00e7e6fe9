package backend

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/nao1215/odindexer/internal/model"
)

// Default FTP credentials used when none are configured.
const (
	anonymousUser     = "anonymous"
	anonymousPassword = "anonymous@"
	ftpDefaultPort    = "21"
	ftpMaxIdleConns   = 8
)

// FTPAdapter lists FTP and FTPS servers.
// Connections are pooled so concurrent workers reuse logged-in sessions.
type FTPAdapter struct {
	addr    string
	host    string
	user    string
	pass    string
	secure  bool
	dial    DialContextFunc
	timeout time.Duration

	mu   sync.Mutex
	pool []*ftp.ServerConn
}

// NewFTP creates an FTP adapter for the server of root.
func NewFTP(root *url.URL, o Options) (*FTPAdapter, error) {
	if root.Scheme != "ftp" && root.Scheme != "ftps" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedURL, root.Redacted())
	}
	o = o.withDefaults()

	host := root.Hostname()
	port := root.Port()
	if port == "" {
		port = ftpDefaultPort
	}

	a := &FTPAdapter{
		addr:    net.JoinHostPort(host, port),
		host:    host,
		user:    o.Username,
		pass:    o.Password,
		secure:  root.Scheme == "ftps",
		dial:    o.DialContext,
		timeout: o.Timeout,
	}
	if a.user == "" {
		a.user = anonymousUser
		if a.pass == "" {
			a.pass = anonymousPassword
		}
	}
	if a.dial == nil {
		d := &net.Dialer{Timeout: o.Timeout}
		a.dial = d.DialContext
	}
	return a, nil
}

// Name implements Adapter.
func (a *FTPAdapter) Name() string { return NameFTP }

// Limits implements Adapter.
func (a *FTPAdapter) Limits() model.Limits { return model.Limits{} }

// ListPage implements Adapter. FTP listings are never paginated.
func (a *FTPAdapter) ListPage(ctx context.Context, folder model.Folder, _ string) (*model.Page, error) {
	u, err := url.Parse(folder.URL)
	if err != nil {
		return nil, model.Fatal(fmt.Errorf("parse url: %w", err))
	}
	dir := u.Path
	if dir == "" {
		dir = "/"
	}

	c, err := a.getConn(ctx)
	if err != nil {
		return nil, classifyFTP(err)
	}

	type listResult struct {
		entries []*ftp.Entry
		err     error
	}
	resultCh := make(chan listResult, 1)
	go func() {
		entries, err := c.List(dir)
		a.putConn(c, err)
		resultCh <- listResult{entries, err}
	}()

	var entries []*ftp.Entry
	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, classifyFTP(res.err)
		}
		entries = res.entries
	case <-ctx.Done():
		// The connection is returned to the pool by the goroutine once the
		// server answers.
		return nil, model.Transient(fmt.Errorf("list %s: %w", dir, ctx.Err()))
	}

	return ftpPage(folder.URL, entries), nil
}

// ftpPage converts FTP entries into a page.
func ftpPage(folderURL string, entries []*ftp.Entry) *model.Page {
	if !strings.HasSuffix(folderURL, "/") {
		folderURL += "/"
	}
	page := &model.Page{
		Files:   make([]model.File, 0, len(entries)),
		Folders: make([]model.FolderEntry, 0),
	}
	for _, e := range entries {
		if e.Name == "" || e.Name == "." || e.Name == ".." {
			continue
		}
		escaped := url.PathEscape(e.Name)
		switch e.Type {
		case ftp.EntryTypeFolder:
			page.Folders = append(page.Folders, model.FolderEntry{Name: e.Name, URL: folderURL + escaped + "/"})
		default:
			// Links are listed as files; their targets are not resolved.
			page.Files = append(page.Files, model.File{URL: folderURL + escaped, Name: e.Name, Size: int64(e.Size)})
		}
	}
	return page
}

// Close logs out of every pooled connection.
func (a *FTPAdapter) Close() error {
	a.mu.Lock()
	pool := a.pool
	a.pool = nil
	a.mu.Unlock()

	var errs []error
	for _, c := range pool {
		if err := c.Quit(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// getConn returns a pooled connection or opens a new one.
func (a *FTPAdapter) getConn(ctx context.Context) (*ftp.ServerConn, error) {
	a.mu.Lock()
	if n := len(a.pool); n > 0 {
		c := a.pool[n-1]
		a.pool = a.pool[:n-1]
		a.mu.Unlock()
		return c, nil
	}
	a.mu.Unlock()

	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(a.timeout),
		ftp.DialWithDialFunc(func(network, address string) (net.Conn, error) {
			return a.dial(ctx, network, address)
		}),
	}
	if a.secure {
		//nolint:gosec // Open directories commonly use self-signed certificates
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: a.host, InsecureSkipVerify: true}))
	}

	c, err := ftp.Dial(a.addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", a.addr, err)
	}
	if err := c.Login(a.user, a.pass); err != nil {
		_ = c.Quit()
		return nil, fmt.Errorf("login to %s: %w", a.addr, err)
	}
	return c, nil
}

// putConn returns a connection to the pool. A connection that failed with
// something other than a regular FTP reply is checked with NOOP first.
func (a *FTPAdapter) putConn(c *ftp.ServerConn, err error) {
	if err != nil {
		var protoErr *textproto.Error
		if !errors.As(err, &protoErr) {
			if nopErr := c.NoOp(); nopErr != nil {
				_ = c.Quit()
				return
			}
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.pool) >= ftpMaxIdleConns {
		go func() { _ = c.Quit() }()
		return
	}
	a.pool = append(a.pool, c)
}

// classifyFTP maps FTP replies to backend error kinds.
// 421 (too many connections, service not available) is throttling, other
// 4xx replies are transient and 5xx replies are permanent.
func classifyFTP(err error) error {
	var protoErr *textproto.Error
	if !errors.As(err, &protoErr) {
		return model.Transient(err)
	}
	switch {
	case protoErr.Code == ftp.StatusNotAvailable:
		return model.RateLimited(err, 0)
	case protoErr.Code >= 400 && protoErr.Code < 500:
		return model.Transient(err)
	default:
		return model.Fatal(err)
	}
}
