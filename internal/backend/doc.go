// Package backend provides the listing adapters for every supported kind of
// open directory.
//
// An Adapter turns one page of one folder into a model.Page. Adapters are
// stateless with respect to the crawl: they never see the tree, they only
// receive the read-only model.Folder view and an opaque cursor, and they
// classify their own failures as rate-limited, transient or fatal
// (model.BackendError). Credentials such as API keys, resource keys, basic
// auth and cookies are adapter configuration and never reach the engine.
//
// Supported backends:
//   - html: generic HTML directory indexes (Apache, nginx, IIS and similar)
//   - ftp: FTP servers
//   - gdindex: Google Drive index sites (Go2Index, Bhadoo)
//   - pixeldrain: Pixeldrain lists
//   - mediafire: Mediafire folders
//   - blitzfiles: Blitzfiles shared links
//   - drive: Google Drive shared folders (API key)
//
// ForURL selects the adapter for a root URL.
package backend
