package backend

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/nao1215/odindexer/internal/model"
)

// BlitzfilesAdapter lists BeDrive shareable links such as those hosted on
// blitzfiles.tech.
//
// A share is addressed as "/drive/s/<link>" and a folder inside it as
// "/drive/s/<link>/<folder>". Listings are paginated; the cursor is the
// next_page_url returned by the server.
type BlitzfilesAdapter struct {
	req *requester
}

// NewBlitzfiles creates a Blitzfiles adapter.
func NewBlitzfiles(o Options) *BlitzfilesAdapter {
	return &BlitzfilesAdapter{req: newRequester(o.withDefaults())}
}

// Name implements Adapter.
func (a *BlitzfilesAdapter) Name() string { return NameBlitzfiles }

// Limits implements Adapter.
func (a *BlitzfilesAdapter) Limits() model.Limits { return model.Limits{} }

type blitzfilesResponse struct {
	Link           *blitzfilesLink    `json:"link"`
	FolderChildren blitzfilesChildren `json:"folderChildren"`
}

type blitzfilesLink struct {
	ID    flexInt          `json:"id"`
	Hash  string           `json:"hash"`
	Entry *blitzfilesEntry `json:"entry"`
}

type blitzfilesChildren struct {
	CurrentPage flexInt           `json:"current_page"`
	LastPage    flexInt           `json:"last_page"`
	NextPageURL string            `json:"next_page_url"`
	Data        []blitzfilesEntry `json:"data"`
}

type blitzfilesEntry struct {
	ID       flexInt `json:"id"`
	Name     string  `json:"name"`
	FileName string  `json:"file_name"`
	FileSize flexInt `json:"file_size"`
	Type     string  `json:"type"`
	Hash     string  `json:"hash"`
	URL      string  `json:"url"`
}

// blitzfilesShare splits a share URL into its site origin, link hash and
// optional folder hash.
func blitzfilesShare(rawURL string) (origin *url.URL, link, folder string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", "", err
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 3 || parts[0] != "drive" || parts[1] != "s" || parts[2] == "" {
		return nil, "", "", fmt.Errorf("%w: %s", ErrUnsupportedURL, u.Redacted())
	}
	if len(parts) > 3 {
		folder = parts[3]
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}, parts[2], folder, nil
}

// ListPage implements Adapter.
func (a *BlitzfilesAdapter) ListPage(ctx context.Context, folder model.Folder, cursor string) (*model.Page, error) {
	origin, link, folderHash, err := blitzfilesShare(folder.URL)
	if err != nil {
		return nil, model.Fatal(err)
	}

	endpoint := cursor
	if endpoint == "" {
		q := url.Values{}
		q.Set("withEntries", "true")
		q.Set("order", "name:asc")
		if folderHash != "" {
			q.Set("folderId", folderHash)
		}
		api := origin.JoinPath("secure", "drive", "shareable-links", link)
		api.RawQuery = q.Encode()
		endpoint = api.String()
	} else {
		next, err := origin.Parse(cursor)
		if err != nil {
			return nil, model.Fatal(fmt.Errorf("invalid cursor %q: %w", cursor, err))
		}
		if next.Host != origin.Host {
			return nil, model.Fatal(fmt.Errorf("cursor %q leaves %s", cursor, origin.Host))
		}
		endpoint = next.String()
	}

	var resp blitzfilesResponse
	if err := a.req.getJSON(ctx, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	children := resp.FolderChildren
	shareURL := origin.JoinPath("drive", "s", link).String()
	page := &model.Page{
		Files:   make([]model.File, 0, len(children.Data)),
		Folders: make([]model.FolderEntry, 0),
	}
	for _, e := range children.Data {
		if e.Type == "folder" {
			page.Folders = append(page.Folders, model.FolderEntry{
				Name: e.Name,
				URL:  shareURL + "/" + url.PathEscape(e.Hash),
			})
			continue
		}
		page.Files = append(page.Files, model.File{
			URL:  blitzfilesFileURL(origin, e),
			Name: e.Name,
			Size: int64(e.FileSize),
		})
	}

	if children.NextPageURL != "" && (children.LastPage == 0 || children.CurrentPage < children.LastPage) {
		page.NextCursor = children.NextPageURL
	}
	return page, nil
}

func blitzfilesFileURL(origin *url.URL, e blitzfilesEntry) string {
	if e.URL != "" {
		if u, err := origin.Parse(e.URL); err == nil {
			return u.String()
		}
	}
	u := origin.JoinPath("secure", "uploads", "download")
	u.RawQuery = url.Values{"hashes": {e.Hash}}.Encode()
	return u.String()
}
