package report

import (
	"path"
	"sort"
	"strings"

	"github.com/nao1215/odindexer/internal/model"
	"github.com/nao1215/odindexer/internal/tree"
)

// DefaultSummaryLimit is the number of folders and extensions kept in a
// summary.
const DefaultSummaryLimit = 10

// noExtension labels files without an extension.
const noExtension = "(none)"

// FolderSummary is the aggregate of one top-level folder.
type FolderSummary struct {
	Name   string       `json:"name"`
	Path   string       `json:"path"`
	URL    string       `json:"url"`
	Status model.Status `json:"status"`
	Files  int64        `json:"files"`
	Bytes  int64        `json:"bytes"`
}

// ExtensionSummary counts the files sharing one extension.
type ExtensionSummary struct {
	Extension string `json:"extension"`
	Files     int64  `json:"files"`
	Bytes     int64  `json:"bytes"`
}

// Summary is a report plus a breakdown of the tree it was computed from.
type Summary struct {
	// Report is the crawl report.
	Report *model.Report `json:"report"`

	// TopFolders are the largest direct subfolders of the root, by size.
	TopFolders []FolderSummary `json:"topFolders,omitempty"`

	// Extensions are the most common file extensions, by size.
	Extensions []ExtensionSummary `json:"extensions,omitempty"`

	// Pending is the number of folders neither done nor failed.
	Pending int `json:"pending"`
}

// Summarize builds a summary of t. limit caps both breakdowns; zero or
// less means DefaultSummaryLimit. A nil tree yields a summary holding only
// the report.
func Summarize(report *model.Report, t *tree.Tree, limit int) *Summary {
	s := &Summary{Report: report}
	if t == nil {
		return s
	}
	if limit <= 0 {
		limit = DefaultSummaryLimit
	}

	_ = t.Consistent(func() error {
		s.TopFolders = topFolders(t, limit)
		s.Extensions = extensions(t, limit)
		return nil
	})
	counts := t.CountStatus()
	s.Pending = counts[model.StatusPending] + counts[model.StatusInProgress]
	return s
}

func topFolders(t *tree.Tree, limit int) []FolderSummary {
	var out []FolderSummary
	for _, id := range t.Root().Folders() {
		n, ok := t.Node(id)
		if !ok {
			continue
		}
		st := n.Stats()
		out = append(out, FolderSummary{
			Name:   n.Name(),
			Path:   n.Path(),
			URL:    n.URL(),
			Status: n.Status(),
			Files:  st.Files,
			Bytes:  st.Bytes,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Bytes != out[j].Bytes {
			return out[i].Bytes > out[j].Bytes
		}
		return out[i].Path < out[j].Path
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func extensions(t *tree.Tree, limit int) []ExtensionSummary {
	byExt := make(map[string]*ExtensionSummary)
	_ = t.Walk(func(n *tree.Node) error {
		for _, f := range n.Files() {
			ext := fileExtension(f.Name)
			e, ok := byExt[ext]
			if !ok {
				e = &ExtensionSummary{Extension: ext}
				byExt[ext] = e
			}
			e.Files++
			e.Bytes += f.Size
		}
		return nil
	})

	out := make([]ExtensionSummary, 0, len(byExt))
	for _, e := range byExt {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bytes != out[j].Bytes {
			return out[i].Bytes > out[j].Bytes
		}
		if out[i].Files != out[j].Files {
			return out[i].Files > out[j].Files
		}
		return out[i].Extension < out[j].Extension
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// fileExtension returns the lower-cased extension of name without the dot.
func fileExtension(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
	if ext == "" {
		return noExtension
	}
	return ext
}
