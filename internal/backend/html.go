package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"
	"golang.org/x/net/html"

	"github.com/nao1215/odindexer/internal/model"
)

// ErrNotListing is returned when a folder URL does not serve an HTML page.
var ErrNotListing = errors.New("response is not an html directory listing")

// HTMLAdapter lists generic HTML directory indexes.
//
// Design decision: We use golang.org/x/net/html for parsing rather than
// regex because:
//  1. It correctly handles malformed HTML common on the web
//  2. Listings from Apache, nginx, IIS and lighttpd differ only in markup,
//     and a DOM walk handles tables, <pre> blocks and lists alike
type HTMLAdapter struct {
	req *requester
}

// NewHTML creates an HTML index adapter.
func NewHTML(o Options) *HTMLAdapter {
	return &HTMLAdapter{req: newRequester(o.withDefaults())}
}

// Name implements Adapter.
func (a *HTMLAdapter) Name() string { return NameHTML }

// Limits implements Adapter. Plain web servers document no quota.
func (a *HTMLAdapter) Limits() model.Limits { return model.Limits{} }

// ListPage implements Adapter. HTML listings are never paginated.
func (a *HTMLAdapter) ListPage(ctx context.Context, folder model.Folder, _ string) (*model.Page, error) {
	resp, err := a.req.get(ctx, folder.URL)
	if err != nil {
		return nil, err
	}
	if ct := resp.header.Get("Content-Type"); ct != "" && !isHTML(ct) {
		return nil, model.Fatal(fmt.Errorf("%w: %s", ErrNotListing, ct))
	}

	base, err := url.Parse(resp.finalURL)
	if err != nil {
		return nil, model.Fatal(fmt.Errorf("parse url: %w", err))
	}
	page, err := parseListing(base, bytes.NewReader(resp.body))
	if err != nil {
		return nil, model.Transient(fmt.Errorf("parse listing: %w", err))
	}
	return page, nil
}

// Probe implements FileProber. A URL that does not end in "/" and does not
// serve HTML is a single file.
func (a *HTMLAdapter) Probe(ctx context.Context, rawURL string) (*model.File, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, model.Fatal(err)
	}
	if u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return nil, nil
	}

	resp, err := a.req.do(ctx, http.MethodHead, rawURL, nil, nil)
	if err != nil {
		var be *model.BackendError
		if errors.As(err, &be) && be.Kind == model.KindFatal && IsStatus(err, http.StatusMethodNotAllowed) {
			// Servers that reject HEAD are listed as folders.
			return nil, nil
		}
		return nil, err
	}
	if isHTML(resp.header.Get("Content-Type")) {
		return nil, nil
	}

	name, err := url.PathUnescape(path.Base(u.Path))
	if err != nil {
		name = path.Base(u.Path)
	}
	size := int64(0)
	if cl := resp.header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > 0 {
			size = n
		}
	}
	return &model.File{URL: rawURL, Name: name, Size: size}, nil
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(contentType, "html")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// Errors returned by parseName. They are never surfaced; they only explain
// why a link is not a listing entry.
var (
	errURLJoinFailed     = errors.New("url join failed")
	errFoundQuestionMark = errors.New("found ? in url")
	errHostMismatch      = errors.New("host mismatch")
	errSchemeMismatch    = errors.New("scheme mismatch")
	errNotUnderRoot      = errors.New("not under root")
	errNameIsEmpty       = errors.New("name is empty")
	errNameContainsSlash = errors.New("name contains /")
)

// parseName resolves href against base and returns the entry name relative
// to base. Folder names keep their trailing slash. Links with a query
// (sort links), links off the host and links outside base are rejected.
func parseName(base *url.URL, href string) (string, *url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", nil, errURLJoinFailed
	}
	u := base.ResolveReference(ref)
	u.Fragment = ""
	if u.RawQuery != "" || strings.Contains(href, "?") {
		return "", nil, errFoundQuestionMark
	}
	if !strings.EqualFold(base.Host, u.Host) {
		return "", nil, errHostMismatch
	}
	if base.Scheme != u.Scheme {
		return "", nil, errSchemeMismatch
	}
	basePath := base.EscapedPath()
	if !strings.HasSuffix(basePath, "/") {
		basePath = path.Dir(basePath) + "/"
	}
	uPath := u.EscapedPath()
	if !strings.HasPrefix(uPath, basePath) {
		return "", nil, errNotUnderRoot
	}
	name := uPath[len(basePath):]
	if name == "" {
		return "", nil, errNameIsEmpty
	}
	if slash := strings.Index(name, "/"); slash >= 0 && slash != len(name)-1 {
		return "", nil, errNameContainsSlash
	}
	return name, u, nil
}

// parseListing turns an HTML directory listing into a page.
func parseListing(base *url.URL, in io.Reader) (*model.Page, error) {
	doc, err := html.Parse(in)
	if err != nil {
		return nil, err
	}

	page := &model.Page{
		Files:   make([]model.File, 0),
		Folders: make([]model.FolderEntry, 0),
	}
	seen := make(map[string]struct{})

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href := getAttr(n, "href"); href != "" {
				addEntry(page, seen, base, href, n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return page, nil
}

func addEntry(page *model.Page, seen map[string]struct{}, base *url.URL, href string, a *html.Node) {
	name, u, err := parseName(base, href)
	if err != nil {
		return
	}
	if _, found := seen[name]; found {
		return
	}
	seen[name] = struct{}{}

	isDir := strings.HasSuffix(name, "/")
	display, err := url.PathUnescape(strings.TrimSuffix(name, "/"))
	if err != nil {
		display = strings.TrimSuffix(name, "/")
	}

	if isDir {
		page.Folders = append(page.Folders, model.FolderEntry{Name: display, URL: u.String()})
		return
	}
	page.Files = append(page.Files, model.File{URL: u.String(), Name: display, Size: entrySize(a)})
}

// entrySize finds the size printed next to a listing link.
//
// Table listings (Apache FancyIndexing, lighttpd, h5ai) put the size in a
// sibling cell of the same row. Preformatted listings (nginx autoindex,
// Apache plain) print it in the text after the link; IIS prints it before.
func entrySize(a *html.Node) int64 {
	if row := ancestor(a, "tr"); row != nil {
		cell := ancestor(a, "td")
		for c := row.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || (c.Data != "td" && c.Data != "th") || c == cell {
				continue
			}
			if size, ok := parseSize(textOf(c)); ok {
				return size
			}
		}
		return 0
	}

	if size, ok := lastSize(followingText(a)); ok {
		return size
	}
	if size, ok := lastSize(precedingText(a)); ok {
		return size
	}
	return 0
}

func ancestor(n *html.Node, tag string) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == tag {
			return p
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

// followingText collects text after n up to the next link or line break.
func followingText(n *html.Node) string {
	var sb strings.Builder
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode && (s.Data == "a" || s.Data == "br") {
			break
		}
		if s.Type == html.TextNode {
			line, _, cut := strings.Cut(s.Data, "\n")
			sb.WriteString(line)
			if cut && strings.TrimSpace(sb.String()) != "" {
				break
			}
			continue
		}
		sb.WriteString(textOf(s))
	}
	return sb.String()
}

// precedingText collects the text before n back to the previous link or
// line break.
func precedingText(n *html.Node) string {
	var parts []string
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode && (s.Data == "a" || s.Data == "br") {
			break
		}
		if s.Type == html.TextNode {
			text := s.Data
			if i := strings.LastIndex(text, "\n"); i >= 0 {
				parts = append([]string{text[i+1:]}, parts...)
				break
			}
			parts = append([]string{text}, parts...)
		}
	}
	return strings.Join(parts, " ")
}

// lastSize returns the last whitespace-separated token that reads as a size.
func lastSize(text string) (int64, bool) {
	fields := strings.Fields(text)
	// Sizes may be printed with a separate unit ("1.2 MB").
	for i := len(fields) - 1; i >= 0; i-- {
		if i > 0 && isUnit(fields[i]) {
			if size, ok := parseSize(fields[i-1] + " " + fields[i]); ok {
				return size, true
			}
		}
		if size, ok := parseSize(fields[i]); ok {
			return size, true
		}
	}
	return 0, false
}

func isUnit(s string) bool {
	switch strings.ToLower(s) {
	case "b", "bytes", "kb", "mb", "gb", "tb", "kib", "mib", "gib", "tib", "k", "m", "g", "t":
		return true
	}
	return false
}

// parseSize parses a listing size such as "4096", "1.2K", "3.5 MB" or
// "12 KiB". Single-letter suffixes are binary, as printed by Apache and
// nginx. "-" (directories) and dates or times are rejected.
func parseSize(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || !unicode.IsDigit(rune(s[0])) {
		return 0, false
	}
	if strings.ContainsAny(s, ":/-") {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", "")

	last := s[len(s)-1]
	if len(s) > 1 && strings.ContainsRune("KMGTkmgt", rune(last)) && !unicode.IsLetter(rune(s[len(s)-2])) {
		s += "iB"
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, false
	}
	return int64(n), true
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
