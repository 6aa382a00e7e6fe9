package config

import (
	"net/http"
	"net/url"
	"strings"
)

// SiteConfig holds site-specific configuration for one host.
// This allows customizing crawl behavior and credentials per server.
type SiteConfig struct {
	// Backend forces a backend for this host (e.g. "gdindex").
	Backend string `yaml:"backend,omitempty"`

	// Cookie is an HTTP cookie to use when listing this host.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this host.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Username and Password are used for HTTP basic auth and FTP login.
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`

	// APIKey is the Google Drive API key.
	APIKey string `yaml:"apiKey,omitempty"`

	// Threads overrides the global thread count for this host.
	// If zero, the global value is used.
	Threads int `yaml:"threads,omitempty"`

	// IgnorePatterns are folder path patterns to skip during crawling.
	// Patterns are matched against the folder path using glob syntax.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns are folder path patterns to crawl.
	// If specified, only folders matching these patterns are crawled.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// File represents the structure of the .odindexer configuration file.
type File struct {
	// Sites maps host names to their site-specific configurations.
	// Keys are host names without scheme or port (e.g., "ftp.example.com").
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults contains default site configuration applied to all hosts
	// unless overridden in the site-specific configuration.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for a host.
// It merges the site-specific configuration with defaults.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	// Start with defaults
	result := cf.Defaults
	if len(cf.Defaults.Headers) > 0 {
		result.Headers = make(map[string]string, len(cf.Defaults.Headers))
		for k, v := range cf.Defaults.Headers {
			result.Headers[k] = v
		}
	}

	siteConfig, ok := cf.Sites[strings.ToLower(host)]
	if !ok {
		return result
	}
	if siteConfig.Backend != "" {
		result.Backend = siteConfig.Backend
	}
	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.Username != "" {
		result.Username = siteConfig.Username
		result.Password = siteConfig.Password
	}
	if siteConfig.APIKey != "" {
		result.APIKey = siteConfig.APIKey
	}
	if siteConfig.Threads != 0 {
		result.Threads = siteConfig.Threads
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		for k, v := range siteConfig.Headers {
			result.Headers[k] = v
		}
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = siteConfig.FollowPatterns
	}
	return result
}

// ForURL returns the site configuration for the host of rawURL.
// A nil File or an unparsable URL yields the zero SiteConfig.
func (cf *File) ForURL(rawURL string) SiteConfig {
	if cf == nil {
		return SiteConfig{}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return cf.GetSiteConfig("")
	}
	return cf.GetSiteConfig(u.Hostname())
}

// Header returns the cookie and custom headers as an http.Header.
func (sc SiteConfig) Header() http.Header {
	h := make(http.Header)
	for k, v := range sc.Headers {
		h.Set(k, v)
	}
	if sc.Cookie != "" {
		h.Set("Cookie", sc.Cookie)
	}
	return h
}
