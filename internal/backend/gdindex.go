package backend

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/nao1215/odindexer/internal/model"
)

// driveFolderMimeType marks folders in Google Drive and in the Drive-backed
// index scripts.
const driveFolderMimeType = "application/vnd.google-apps.folder"

// GDIndexAdapter lists Google Drive index sites (GoIndex, Go2Index and
// Bhadoo index). Each folder URL accepts a POST with the page token and page
// index of the previous response.
type GDIndexAdapter struct {
	req *requester
}

// NewGDIndex creates a Google Drive index adapter.
func NewGDIndex(o Options) *GDIndexAdapter {
	return &GDIndexAdapter{req: newRequester(o.withDefaults())}
}

// Name implements Adapter.
func (a *GDIndexAdapter) Name() string { return NameGDIndex }

// Limits implements Adapter. Index scripts run on Cloudflare workers and
// document no quota.
func (a *GDIndexAdapter) Limits() model.Limits { return model.Limits{} }

type gdIndexRequest struct {
	Query     string  `json:"q"`
	Password  *string `json:"password"`
	PageToken *string `json:"page_token"`
	PageIndex int     `json:"page_index"`
}

type gdIndexResponse struct {
	NextPageToken string        `json:"nextPageToken"`
	CurPageIndex  int           `json:"curPageIndex"`
	Data          *gdIndexData  `json:"data"`
	Error         *gdIndexError `json:"error"`
}

type gdIndexData struct {
	NextPageToken string        `json:"nextPageToken"`
	Files         []gdIndexFile `json:"files"`
	Error         *gdIndexError `json:"error"`
}

type gdIndexFile struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	MimeType string  `json:"mimeType"`
	Size     flexInt `json:"size"`
}

type gdIndexError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// errGDIndex is the cause of an error reported in a response body.
var errGDIndex = errors.New("index error")

// ListPage implements Adapter.
func (a *GDIndexAdapter) ListPage(ctx context.Context, folder model.Folder, cursor string) (*model.Page, error) {
	index, token, err := decodeGDIndexCursor(cursor)
	if err != nil {
		return nil, model.Fatal(err)
	}

	body := gdIndexRequest{PageIndex: index}
	if token != "" {
		body.PageToken = &token
	}

	var resp gdIndexResponse
	if err := a.req.postJSON(ctx, folder.URL, body, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil && resp.Error.Code != 0 {
		return nil, gdIndexErr(resp.Error)
	}
	if resp.Data == nil {
		return nil, model.Transient(fmt.Errorf("%w: response has no data", errGDIndex))
	}
	if resp.Data.Error != nil && resp.Data.Error.Code != 0 {
		return nil, gdIndexErr(resp.Data.Error)
	}

	base := folder.URL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	page := &model.Page{
		Files:   make([]model.File, 0, len(resp.Data.Files)),
		Folders: make([]model.FolderEntry, 0),
	}
	for _, f := range resp.Data.Files {
		if f.Name == "" {
			continue
		}
		escaped := url.PathEscape(f.Name)
		if f.MimeType == driveFolderMimeType {
			page.Folders = append(page.Folders, model.FolderEntry{Name: f.Name, URL: base + escaped + "/"})
			continue
		}
		page.Files = append(page.Files, model.File{URL: base + escaped, Name: f.Name, Size: int64(f.Size)})
	}

	next := resp.NextPageToken
	if next == "" {
		next = resp.Data.NextPageToken
	}
	if next != "" {
		page.NextCursor = encodeGDIndexCursor(resp.CurPageIndex+1, next)
	}
	return page, nil
}

// encodeGDIndexCursor packs the page index and page token into one cursor.
func encodeGDIndexCursor(index int, token string) string {
	return strconv.Itoa(index) + ":" + token
}

func decodeGDIndexCursor(cursor string) (int, string, error) {
	if cursor == "" {
		return 0, "", nil
	}
	idx, token, ok := strings.Cut(cursor, ":")
	if !ok {
		return 0, "", fmt.Errorf("invalid cursor %q", cursor)
	}
	index, err := strconv.Atoi(idx)
	if err != nil || index < 0 {
		return 0, "", fmt.Errorf("invalid cursor %q", cursor)
	}
	return index, token, nil
}

func gdIndexErr(e *gdIndexError) error {
	cause := fmt.Errorf("%w %d: %s", errGDIndex, e.Code, e.Message)
	switch {
	case e.Code == 429:
		return model.RateLimited(cause, 0)
	case e.Code >= 500:
		return model.Transient(cause)
	default:
		return model.Fatal(cause)
	}
}
