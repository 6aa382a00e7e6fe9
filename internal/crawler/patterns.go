package crawler

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/nao1215/odindexer/internal/model"
	"github.com/nao1215/odindexer/internal/tree"
)

// folderFilter decides which discovered subfolders are crawled.
type folderFilter struct {
	// ignore are folder path patterns to skip.
	ignore []string

	// follow are folder path patterns to crawl. Empty means every folder
	// that is not ignored.
	follow []string
}

func (f folderFilter) empty() bool {
	return len(f.ignore) == 0 && len(f.follow) == 0
}

// apply removes the subfolders of page that should not be crawled.
// parentPath is the tree path of the folder the page belongs to.
func (f folderFilter) apply(parentPath string, page *model.Page) *model.Page {
	if page == nil || f.empty() || len(page.Folders) == 0 {
		return page
	}
	kept := make([]model.FolderEntry, 0, len(page.Folders))
	for _, entry := range page.Folders {
		if f.shouldCrawl(tree.ChildPath(parentPath, entry.Name)) {
			kept = append(kept, entry)
		}
	}
	filtered := *page
	filtered.Folders = kept
	return &filtered
}

// shouldCrawl checks a folder path against the ignore and follow patterns.
//
// Logic:
//  1. If the path matches any ignore pattern, skip it
//  2. If follow patterns are set, the path must match one of them or lie
//     on the way to one (so "/pub/linux/*" still crawls "/pub")
//  3. Otherwise, crawl it
func (f folderFilter) shouldCrawl(folderPath string) bool {
	if folderPath == "" {
		folderPath = "/"
	}

	for _, pattern := range f.ignore {
		if matchPattern(pattern, folderPath) {
			return false
		}
	}

	if len(f.follow) == 0 {
		return true
	}
	for _, pattern := range f.follow {
		if matchPattern(pattern, folderPath) || leadsTo(folderPath, pattern) {
			return true
		}
	}
	return false
}

// leadsTo reports whether folderPath is an ancestor of the literal prefix of
// pattern.
func leadsTo(folderPath, pattern string) bool {
	literal := pattern
	if i := strings.IndexAny(pattern, "*?["); i >= 0 {
		literal = pattern[:i]
	}
	if !strings.HasPrefix(literal, "/") {
		return false
	}
	return strings.HasPrefix(literal, strings.TrimSuffix(folderPath, "/")+"/")
}

// matchPattern checks if a path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//   - a trailing /* to match a folder and everything below it
//
// Examples:
//   - "/pub/*" matches "/pub/linux", "/pub/linux/iso"
//   - "*sample*" matches "/music/samples"
//   - "/v?" matches "/v1", "/v2"
func matchPattern(pattern, folderPath string) bool {
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(folderPath, prefix+"/") || folderPath == prefix {
			return true
		}
	}

	matched, err := filepath.Match(pattern, folderPath)
	if err != nil {
		return false
	}
	if matched {
		return true
	}

	// Patterns without a separator match the folder name alone.
	if !strings.Contains(pattern, "/") {
		matched, err := filepath.Match(pattern, path.Base(folderPath))
		if err == nil && matched {
			return true
		}
	}

	return false
}
