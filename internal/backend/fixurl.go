package backend

import (
	"encoding/base64"
	"net/url"
	"strings"
)

// googleDriveHost is the host of Google Drive share links.
const googleDriveHost = "drive.google.com"

// FixURL normalizes a URL typed or pasted by a user.
//
//   - surrounding whitespace is trimmed
//   - base64-encoded URLs (as posted on forums) are decoded
//   - a missing scheme defaults to http
//   - a bare host gets a trailing "/"
//   - the Google Drive "usp" tracking parameter is dropped
func FixURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if decoded, ok := decodeBase64URL(raw); ok {
		raw = decoded
	}

	if !hasKnownScheme(raw) {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Path == "" && u.RawQuery == "" && !strings.HasSuffix(raw, "/") {
		u.Path = "/"
	}
	if strings.EqualFold(u.Hostname(), googleDriveHost) {
		q := u.Query()
		if q.Has("usp") {
			q.Del("usp")
			u.RawQuery = q.Encode()
		}
	}
	return u.String()
}

func hasKnownScheme(raw string) bool {
	lower := strings.ToLower(raw)
	for _, scheme := range []string{"http:", "https:", "ftp:", "ftps:"} {
		if strings.Contains(lower, scheme) {
			return true
		}
	}
	return false
}

// decodeBase64URL decodes s when it is standard base64 of something that
// looks like a URL. Plain host names can be valid base64, so the decoded
// value must carry a scheme separator.
func decodeBase64URL(s string) (string, bool) {
	if s == "" || strings.Contains(s, "://") {
		return "", false
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", false
	}
	decoded := strings.TrimSpace(string(data))
	if !strings.Contains(decoded, "://") {
		return "", false
	}
	return decoded, true
}

// Credentials extracts "user:password@" userinfo from rawURL. It returns the
// URL without userinfo and the decoded credentials. ok is false when the URL
// carries no password.
func Credentials(rawURL string) (clean, username, password string, ok bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return rawURL, "", "", false
	}
	username = u.User.Username()
	password, ok = u.User.Password()
	u.User = nil
	return u.String(), username, password, ok
}
