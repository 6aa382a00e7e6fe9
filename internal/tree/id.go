package tree

import (
	"net/url"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"
)

// NodeID identifies a directory node inside a Tree.
// It is derived from the canonical URL so the same folder discovered twice
// maps to the same node.
type NodeID uint64

// IDFor returns the NodeID of a canonical URL.
func IDFor(canonicalURL string) NodeID {
	return NodeID(xxhash.Sum64String(canonicalURL))
}

// Canonical normalizes a folder URL for identity.
//
// Design decision: We normalize URLs because:
//  1. Same folder can have different URL representations
//  2. Fragment (#anchor) doesn't change the listing
//  3. Scheme and host are case-insensitive
//
// Trailing slashes are kept as reported because some backends distinguish
// them.
func Canonical(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	// Empty path and "/" are the same folder for hierarchical URLs.
	if u.Path == "" && u.Opaque == "" && u.Host != "" {
		u.Path = "/"
	}

	return u.String()
}

// sortKey is the collation key of a child name.
func sortKey(name string) string {
	return norm.NFC.String(name)
}

// ChildPath returns the tree path of a folder called name below parentPath.
// The name is always one segment: "/" inside it is written as %2F and the
// names "." and ".." are kept literally instead of being resolved.
func ChildPath(parentPath, name string) string {
	segment := strings.ReplaceAll(name, "/", "%2F")
	if parentPath == "" || parentPath == "/" {
		return "/" + segment
	}
	return strings.TrimSuffix(parentPath, "/") + "/" + segment
}
