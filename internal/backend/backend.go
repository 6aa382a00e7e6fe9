package backend

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/nao1215/odindexer/internal/model"
)

// Adapter lists folders of one backend.
type Adapter interface {
	// Name returns the backend name (e.g. "html", "ftp").
	Name() string

	// ListPage lists one page of folder starting at cursor.
	// An empty cursor requests the first page. The returned page's
	// NextCursor is empty when the listing is complete.
	ListPage(ctx context.Context, folder model.Folder, cursor string) (*model.Page, error)

	// Limits returns the documented request quota of the backend.
	Limits() model.Limits
}

// FileProber is implemented by adapters that can tell whether a root URL
// points at a single file rather than a folder.
type FileProber interface {
	// Probe returns the file when rawURL is a single file, and nil when it
	// is a folder.
	Probe(ctx context.Context, rawURL string) (*model.File, error)
}

// Backend names.
const (
	NameHTML       = "html"
	NameFTP        = "ftp"
	NameGDIndex    = "gdindex"
	NamePixeldrain = "pixeldrain"
	NameMediafire  = "mediafire"
	NameBlitzfiles = "blitzfiles"
	NameDrive      = "drive"
)

// Names lists every backend name accepted by ForURL.
var Names = []string{NameHTML, NameFTP, NameGDIndex, NamePixeldrain, NameMediafire, NameBlitzfiles, NameDrive}

// Backend errors.
var (
	// ErrUnknownBackend is returned when a forced backend name is not known.
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrMissingAPIKey is returned when the Google Drive backend is selected
	// without an API key.
	ErrMissingAPIKey = errors.New("google drive requires an api key")

	// ErrUnsupportedURL is returned when a URL cannot be handled by the
	// selected backend.
	ErrUnsupportedURL = errors.New("unsupported url for backend")

	// ErrBodyTooLarge is returned when a listing response is larger than
	// Options.MaxBodySize.
	ErrBodyTooLarge = errors.New("response body too large")
)

// DialContextFunc dials a network connection. It matches net.Dialer.DialContext.
type DialContextFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Options configures adapters created by ForURL.
type Options struct {
	// Backend forces a backend by name. Empty means detect from the URL.
	Backend string

	// HTTPClient is used by every HTTP-based adapter.
	// It should already carry proxy, cookie and header configuration.
	HTTPClient *http.Client

	// DialContext is used by the FTP adapter. Nil means a direct dial.
	DialContext DialContextFunc

	// UserAgent is sent with every HTTP request.
	UserAgent string

	// Header is added to every HTTP request (cookies, custom headers).
	Header http.Header

	// Username and Password are used for HTTP basic auth and FTP login.
	Username string
	Password string

	// APIKey is the Google Drive API key.
	APIKey string

	// Timeout bounds connection establishment for FTP.
	Timeout time.Duration

	// MaxBodySize limits how much of a listing response is read.
	MaxBodySize int64
}

// Default values.
const (
	DefaultUserAgent   = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
	DefaultMaxBodySize = 64 * 1024 * 1024
	DefaultTimeout     = 100 * time.Second
)

func (o Options) withDefaults() Options {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.MaxBodySize <= 0 {
		o.MaxBodySize = DefaultMaxBodySize
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}
