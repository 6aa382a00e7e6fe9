package backend

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/nao1215/odindexer/internal/model"
)

// PixeldrainAdapter lists Pixeldrain albums ("/l/<id>") and probes single
// file links ("/u/<id>"). Albums are flat, so every listing is one page of
// files.
type PixeldrainAdapter struct {
	req *requester
}

// NewPixeldrain creates a Pixeldrain adapter.
func NewPixeldrain(o Options) *PixeldrainAdapter {
	return &PixeldrainAdapter{req: newRequester(o.withDefaults())}
}

// Name implements Adapter.
func (a *PixeldrainAdapter) Name() string { return NamePixeldrain }

// Limits implements Adapter.
func (a *PixeldrainAdapter) Limits() model.Limits { return model.Limits{} }

type pixeldrainList struct {
	ID    string           `json:"id"`
	Title string           `json:"title"`
	Files []pixeldrainFile `json:"files"`
}

type pixeldrainFile struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Size       flexInt `json:"size"`
	HashSHA256 string  `json:"hash_sha256"`
}

// pixeldrainLink splits a share URL into the API base and the kind ("l" for
// albums, "u" for files) and id of the link.
func pixeldrainLink(rawURL string) (apiBase, kind, id string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", "", err
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || (parts[0] != "l" && parts[0] != "u") || parts[1] == "" {
		return "", "", "", fmt.Errorf("%w: %s", ErrUnsupportedURL, rawURL)
	}
	return u.Scheme + "://" + u.Host + "/api", parts[0], parts[1], nil
}

// ListPage implements Adapter.
func (a *PixeldrainAdapter) ListPage(ctx context.Context, folder model.Folder, _ string) (*model.Page, error) {
	api, kind, id, err := pixeldrainLink(folder.URL)
	if err != nil {
		return nil, model.Fatal(err)
	}
	if kind != "l" {
		return nil, model.Fatal(fmt.Errorf("%w: %s is not an album", ErrUnsupportedURL, folder.URL))
	}

	var list pixeldrainList
	if err := a.req.getJSON(ctx, api+"/list/"+url.PathEscape(id), nil, &list); err != nil {
		return nil, err
	}

	page := &model.Page{
		Files:   make([]model.File, 0, len(list.Files)),
		Folders: make([]model.FolderEntry, 0),
	}
	for _, f := range list.Files {
		page.Files = append(page.Files, pixeldrainModelFile(api, f))
	}
	return page, nil
}

// Probe implements FileProber.
func (a *PixeldrainAdapter) Probe(ctx context.Context, rawURL string) (*model.File, error) {
	api, kind, id, err := pixeldrainLink(rawURL)
	if err != nil {
		return nil, model.Fatal(err)
	}
	if kind != "u" {
		return nil, nil
	}

	var f pixeldrainFile
	if err := a.req.getJSON(ctx, api+"/file/"+url.PathEscape(id)+"/info", nil, &f); err != nil {
		return nil, err
	}
	if f.ID == "" {
		f.ID = id
	}
	file := pixeldrainModelFile(api, f)
	return &file, nil
}

func pixeldrainModelFile(api string, f pixeldrainFile) model.File {
	file := model.File{
		URL:  api + "/file/" + url.PathEscape(f.ID),
		Name: f.Name,
		Size: int64(f.Size),
	}
	if f.HashSHA256 != "" {
		file.Hash = "sha256:" + f.HashSHA256
	}
	return file
}
