package model

// File is a discovered file. It is a leaf of the directory tree and is
// never mutated after it has been stored.
type File struct {
	// URL is the resolved download URL and the identity of the file.
	URL string `json:"url"`

	// Name is the file name as displayed by the backend.
	Name string `json:"name"`

	// Size is the byte size. Zero means the backend did not report it.
	Size int64 `json:"size"`

	// Hash is an optional checksum supplied by the backend
	// (e.g. "sha256:..." or "md5:...").
	Hash string `json:"hash,omitempty"`
}

// Folder is the read-only view of a directory node handed to adapters.
// Adapters never see or mutate the tree itself.
type Folder struct {
	// URL is the canonical URL of the folder.
	URL string

	// Name is the display name of the folder.
	Name string

	// Path is the slash-separated path from the crawl root ("/" for root).
	Path string
}

// FolderEntry is a subfolder reported by one listing page.
type FolderEntry struct {
	// Name is the display name of the subfolder.
	Name string

	// URL is the identity of the subfolder.
	URL string
}

// Page is the result of listing one page of a folder.
type Page struct {
	// Files are the files found on this page.
	Files []File

	// Folders are the subfolders found on this page.
	Folders []FolderEntry

	// NextCursor is the opaque token of the next page.
	// Empty means the listing is complete.
	NextCursor string
}

// HasMore reports whether the backend announced another page.
func (p *Page) HasMore() bool {
	return p != nil && p.NextCursor != ""
}

// Limits is the documented request quota of a backend.
// The rate limiter is configured from these values unless the user
// overrides them.
type Limits struct {
	// MaxRequests is the number of requests allowed per Window.
	// Zero means the backend documents no limit.
	MaxRequests int

	// Window is the quota window.
	Window Duration

	// Fraction is the share of the quota actually used, leaving headroom.
	Fraction float64
}

// Unlimited reports whether the backend documents no quota.
func (l Limits) Unlimited() bool {
	return l.MaxRequests <= 0 || l.Window <= 0
}
