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

// MediafireAdapter lists public Mediafire folders through the folder
// get_content API. Folders and files are fetched as separate chunked
// listings; the cursor tracks which listing and chunk comes next.
type MediafireAdapter struct {
	req *requester
}

// NewMediafire creates a Mediafire adapter.
func NewMediafire(o Options) *MediafireAdapter {
	return &MediafireAdapter{req: newRequester(o.withDefaults())}
}

// Name implements Adapter.
func (a *MediafireAdapter) Name() string { return NameMediafire }

// Limits implements Adapter.
func (a *MediafireAdapter) Limits() model.Limits { return model.Limits{} }

const (
	mediafireFolders = "folders"
	mediafireFiles   = "files"
)

type mediafireResult struct {
	Response mediafireResponse `json:"response"`
}

type mediafireResponse struct {
	Result        string                 `json:"result"`
	Message       string                 `json:"message"`
	Error         flexInt                `json:"error"`
	FolderContent mediafireFolderContent `json:"folder_content"`
}

type mediafireFolderContent struct {
	ChunkNumber flexInt           `json:"chunk_number"`
	Folders     []mediafireFolder `json:"folders"`
	Files       []mediafireFile   `json:"files"`
	MoreChunks  string            `json:"more_chunks"`
}

type mediafireFolder struct {
	FolderKey string `json:"folderkey"`
	Name      string `json:"name"`
}

type mediafireFile struct {
	QuickKey string  `json:"quickkey"`
	Hash     string  `json:"hash"`
	Filename string  `json:"filename"`
	Size     flexInt `json:"size"`
}

var errMediafire = errors.New("mediafire error")

// mediafireFolderKey extracts the folder key from "/folder/<key>[/<name>]"
// and from the legacy "/?<key>" form.
func mediafireFolderKey(u *url.URL) (string, error) {
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) >= 2 && parts[0] == "folder" && parts[1] != "" {
		return parts[1], nil
	}
	if (u.Path == "" || u.Path == "/") && u.RawQuery != "" && !strings.Contains(u.RawQuery, "=") {
		return u.RawQuery, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedURL, u.Redacted())
}

// ListPage implements Adapter.
func (a *MediafireAdapter) ListPage(ctx context.Context, folder model.Folder, cursor string) (*model.Page, error) {
	u, err := url.Parse(folder.URL)
	if err != nil {
		return nil, model.Fatal(err)
	}
	key, err := mediafireFolderKey(u)
	if err != nil {
		return nil, model.Fatal(err)
	}
	contentType, chunk, err := decodeMediafireCursor(cursor)
	if err != nil {
		return nil, model.Fatal(err)
	}

	q := url.Values{}
	q.Set("folder_key", key)
	q.Set("content_type", contentType)
	q.Set("chunk", strconv.Itoa(chunk))
	q.Set("response_format", "json")
	endpoint := u.Scheme + "://" + u.Host + "/api/1.5/folder/get_content.php?" + q.Encode()

	var res mediafireResult
	if err := a.req.getJSON(ctx, endpoint, nil, &res); err != nil {
		return nil, err
	}
	if !strings.EqualFold(res.Response.Result, "success") {
		cause := fmt.Errorf("%w %d: %s", errMediafire, int64(res.Response.Error), res.Response.Message)
		if isRateLimitBody([]byte(res.Response.Message)) {
			return nil, model.RateLimited(cause, 0)
		}
		return nil, model.Fatal(cause)
	}

	base := u.Scheme + "://" + u.Host
	content := res.Response.FolderContent
	page := &model.Page{
		Files:   make([]model.File, 0, len(content.Files)),
		Folders: make([]model.FolderEntry, 0, len(content.Folders)),
	}
	for _, f := range content.Folders {
		page.Folders = append(page.Folders, model.FolderEntry{
			Name: f.Name,
			URL:  base + "/folder/" + url.PathEscape(f.FolderKey) + "/" + url.PathEscape(f.Name),
		})
	}
	for _, f := range content.Files {
		file := model.File{
			URL:  base + "/file/" + url.PathEscape(f.QuickKey) + "/" + url.PathEscape(f.Filename),
			Name: f.Filename,
			Size: int64(f.Size),
		}
		if f.Hash != "" {
			file.Hash = "sha256:" + f.Hash
		}
		page.Files = append(page.Files, file)
	}

	switch {
	case strings.EqualFold(content.MoreChunks, "yes"):
		page.NextCursor = encodeMediafireCursor(contentType, chunk+1)
	case contentType == mediafireFolders:
		page.NextCursor = encodeMediafireCursor(mediafireFiles, 1)
	}
	return page, nil
}

func encodeMediafireCursor(contentType string, chunk int) string {
	return contentType + ":" + strconv.Itoa(chunk)
}

func decodeMediafireCursor(cursor string) (string, int, error) {
	if cursor == "" {
		return mediafireFolders, 1, nil
	}
	contentType, n, ok := strings.Cut(cursor, ":")
	if !ok || (contentType != mediafireFolders && contentType != mediafireFiles) {
		return "", 0, fmt.Errorf("invalid cursor %q", cursor)
	}
	chunk, err := strconv.Atoi(n)
	if err != nil || chunk < 1 {
		return "", 0, fmt.Errorf("invalid cursor %q", cursor)
	}
	return contentType, chunk, nil
}
