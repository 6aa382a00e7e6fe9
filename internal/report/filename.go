package report

import (
	"net/url"
	"strings"
)

// maxFileNameLen bounds generated file names well below common
// file system limits.
const maxFileNameLen = 150

// FileName derives a file system safe name for the outputs of a crawl of
// rootURL, e.g. "http://example.com/pub/" with ".txt" becomes
// "example.com_pub.txt". Credentials in the URL never reach the name.
func FileName(rootURL, ext string) string {
	name := rootURL
	if u, err := url.Parse(rootURL); err == nil && u.Host != "" {
		name = u.Host + u.Path
		if u.RawQuery != "" {
			name += "_" + u.RawQuery
		}
	}

	var sb strings.Builder
	underscore := false
	for _, r := range name {
		if isSafeRune(r) {
			sb.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore {
			sb.WriteByte('_')
			underscore = true
		}
	}

	clean := strings.Trim(sb.String(), "_.")
	if len(clean) > maxFileNameLen {
		clean = strings.TrimRight(clean[:maxFileNameLen], "_.")
	}
	if clean == "" {
		clean = "index"
	}
	return clean + ext
}

func isSafeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '.':
		return true
	default:
		return false
	}
}
