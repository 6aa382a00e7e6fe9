package backend

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Hosts recognized by Detect.
const (
	pixeldrainHost = "pixeldrain.com"
	mediafireHost  = "mediafire.com"
	blitzfilesHost = "blitzfiles.tech"
)

// Detect returns the backend name for rawURL. Google Drive index sites look
// like any other web site and must be selected explicitly.
func Detect(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "ftp", "ftps":
		return NameFTP, nil
	case "http", "https":
	default:
		return "", fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	switch {
	case host == googleDriveHost:
		return NameDrive, nil
	case hostIs(host, pixeldrainHost):
		return NamePixeldrain, nil
	case hostIs(host, mediafireHost):
		return NameMediafire, nil
	case hostIs(host, blitzfilesHost):
		return NameBlitzfiles, nil
	default:
		return NameHTML, nil
	}
}

// hostIs reports whether host is domain or a subdomain of it.
func hostIs(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// ForURL creates the adapter for rawURL. Options.Backend overrides the
// detection.
func ForURL(ctx context.Context, rawURL string, o Options) (Adapter, error) {
	name := strings.ToLower(strings.TrimSpace(o.Backend))
	if name == "" {
		detected, err := Detect(rawURL)
		if err != nil {
			return nil, err
		}
		name = detected
	}

	switch name {
	case NameHTML:
		return NewHTML(o), nil
	case NameFTP:
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parse url: %w", err)
		}
		return NewFTP(u, o)
	case NameGDIndex:
		return NewGDIndex(o), nil
	case NamePixeldrain:
		return NewPixeldrain(o), nil
	case NameMediafire:
		return NewMediafire(o), nil
	case NameBlitzfiles:
		return NewBlitzfiles(o), nil
	case NameDrive:
		return NewDrive(ctx, o)
	default:
		return nil, fmt.Errorf("%w: %q (valid: %s)", ErrUnknownBackend, o.Backend, strings.Join(Names, ", "))
	}
}
