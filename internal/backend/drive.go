package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"

	"github.com/nao1215/odindexer/internal/model"
)

// Google Drive quota: 1000 requests per 100 seconds per user, of which 900
// are used by default.
const (
	driveMaxRequests     = 900
	driveQuotaWindow     = 100 * time.Second
	driveQuotaFraction   = 0.9
	drivePageSize        = 1000
	driveShortcutType    = "application/vnd.google-apps.shortcut"
	driveResourceKeyHdr  = "X-Goog-Drive-Resource-Keys"
	driveListFields      = "nextPageToken, files(id, name, mimeType, size, md5Checksum, shortcutDetails, resourceKey)"
	driveGetFields       = "id, name, mimeType, size, md5Checksum, resourceKey"
	driveFolderURLPrefix = "https://drive.google.com/drive/folders/"
	driveFileURLPrefix   = "https://drive.google.com/uc?export=download&id="
)

// driveIDPattern matches Drive file and folder IDs. IDs are interpolated into
// list queries, so anything else is rejected.
var driveIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// DriveAdapter lists public Google Drive folders with an API key.
type DriveAdapter struct {
	svc *drive.Service
}

// NewDrive creates a Google Drive adapter. The API key is attached to every
// request by the HTTP transport. Extra client options (such as an endpoint
// override) are applied after the defaults.
func NewDrive(ctx context.Context, o Options, extra ...option.ClientOption) (*DriveAdapter, error) {
	if o.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	o = o.withDefaults()

	base := o.HTTPClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	client := &http.Client{
		Timeout:       o.HTTPClient.Timeout,
		Jar:           o.HTTPClient.Jar,
		CheckRedirect: o.HTTPClient.CheckRedirect,
		Transport:     &transport.APIKey{Key: o.APIKey, Transport: base},
	}

	opts := append([]option.ClientOption{
		option.WithHTTPClient(client),
		option.WithUserAgent(o.UserAgent),
	}, extra...)
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &DriveAdapter{svc: svc}, nil
}

// Name implements Adapter.
func (a *DriveAdapter) Name() string { return NameDrive }

// Limits implements Adapter.
func (a *DriveAdapter) Limits() model.Limits {
	return model.Limits{
		MaxRequests: driveMaxRequests,
		Window:      model.Duration(driveQuotaWindow),
		Fraction:    driveQuotaFraction,
	}
}

// driveRef is a Drive item addressed by ID and optional resource key.
type driveRef struct {
	id          string
	resourceKey string
	file        bool
}

// parseDriveURL accepts folder URLs ("/drive/folders/<id>",
// "/drive/u/0/folders/<id>", "open?id=<id>") and file URLs ("/file/d/<id>",
// "uc?id=<id>").
func parseDriveURL(rawURL string) (driveRef, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return driveRef{}, err
	}
	q := u.Query()
	ref := driveRef{resourceKey: q.Get("resourcekey")}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		switch {
		case parts[i] == "folders":
			ref.id = parts[i+1]
		case parts[i] == "file" && parts[i+1] == "d" && i+2 < len(parts):
			ref.id = parts[i+2]
			ref.file = true
		}
	}
	if ref.id == "" {
		ref.id = q.Get("id")
		ref.file = strings.HasSuffix(u.Path, "/uc") || u.Path == "uc"
	}
	if ref.id == "" || !driveIDPattern.MatchString(ref.id) {
		return driveRef{}, fmt.Errorf("%w: %s", ErrUnsupportedURL, rawURL)
	}
	return ref, nil
}

func driveFolderURL(id, resourceKey string) string {
	u := driveFolderURLPrefix + id
	if resourceKey != "" {
		u += "?resourcekey=" + url.QueryEscape(resourceKey)
	}
	return u
}

func driveFileURL(id, resourceKey string) string {
	u := driveFileURLPrefix + id
	if resourceKey != "" {
		u += "&resourcekey=" + url.QueryEscape(resourceKey)
	}
	return u
}

// ListPage implements Adapter. The cursor is the Drive page token.
func (a *DriveAdapter) ListPage(ctx context.Context, folder model.Folder, cursor string) (*model.Page, error) {
	ref, err := parseDriveURL(folder.URL)
	if err != nil {
		return nil, model.Fatal(err)
	}

	call := a.svc.Files.List().
		Q(fmt.Sprintf("'%s' in parents", ref.id)).
		PageSize(drivePageSize).
		Fields(googleapi.Field(driveListFields)).
		IncludeItemsFromAllDrives(true).
		SupportsAllDrives(true).
		Context(ctx)
	if cursor != "" {
		call.PageToken(cursor)
	}
	if ref.resourceKey != "" {
		call.Header().Set(driveResourceKeyHdr, ref.id+"/"+ref.resourceKey)
	}

	list, err := call.Do()
	if err != nil {
		return nil, classifyDrive(err)
	}

	page := &model.Page{
		Files:      make([]model.File, 0, len(list.Files)),
		Folders:    make([]model.FolderEntry, 0),
		NextCursor: list.NextPageToken,
	}
	for _, f := range list.Files {
		id, mimeType, resourceKey := f.Id, f.MimeType, f.ResourceKey
		if mimeType == driveShortcutType && f.ShortcutDetails != nil {
			id = f.ShortcutDetails.TargetId
			mimeType = f.ShortcutDetails.TargetMimeType
			resourceKey = f.ShortcutDetails.TargetResourceKey
		}
		if id == "" {
			continue
		}
		if mimeType == driveFolderMimeType {
			page.Folders = append(page.Folders, model.FolderEntry{Name: f.Name, URL: driveFolderURL(id, resourceKey)})
			continue
		}
		page.Files = append(page.Files, driveModelFile(id, resourceKey, f))
	}
	return page, nil
}

// Probe implements FileProber for "/file/d/<id>" links.
func (a *DriveAdapter) Probe(ctx context.Context, rawURL string) (*model.File, error) {
	ref, err := parseDriveURL(rawURL)
	if err != nil {
		return nil, model.Fatal(err)
	}
	if !ref.file {
		return nil, nil
	}

	call := a.svc.Files.Get(ref.id).
		Fields(googleapi.Field(driveGetFields)).
		SupportsAllDrives(true).
		Context(ctx)
	if ref.resourceKey != "" {
		call.Header().Set(driveResourceKeyHdr, ref.id+"/"+ref.resourceKey)
	}
	f, err := call.Do()
	if err != nil {
		return nil, classifyDrive(err)
	}
	if f.MimeType == driveFolderMimeType {
		return nil, nil
	}
	file := driveModelFile(f.Id, f.ResourceKey, f)
	return &file, nil
}

func driveModelFile(id, resourceKey string, f *drive.File) model.File {
	file := model.File{
		URL:  driveFileURL(id, resourceKey),
		Name: f.Name,
		Size: f.Size,
	}
	if f.Md5Checksum != "" {
		file.Hash = "md5:" + f.Md5Checksum
	}
	return file
}

// classifyDrive maps Drive API errors to backend error kinds.
// 5xx is transient, rateLimitExceeded and userRateLimitExceeded are
// throttling (Drive reports them as 403), other API errors are permanent.
func classifyDrive(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return model.Transient(err)
	}
	if gerr.Code >= 500 && gerr.Code < 600 {
		return model.Transient(err)
	}
	after := time.Duration(0)
	if gerr.Header != nil {
		after = retryAfter(gerr.Header.Get("Retry-After"))
	}
	if gerr.Code == http.StatusTooManyRequests {
		return model.RateLimited(err, after)
	}
	for _, item := range gerr.Errors {
		if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
			return model.RateLimited(err, after)
		}
	}
	return model.Fatal(err)
}
