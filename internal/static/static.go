// Package static serves static assets from disk with embedded defaults.
package static

import (
	"embed"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

// DefaultURL is the path static assets are served under when none is configured.
const DefaultURL = "/static/"

//go:embed assets
var assetsFS embed.FS

// DefaultFS returns the embedded assets with the "assets" prefix stripped.
func DefaultFS() fs.FS {
	sub, err := fs.Sub(assetsFS, "assets")
	if err != nil {
		panic(err)
	}
	return sub
}

// layeredFS resolves names against each layer in order.
type layeredFS []fs.FS

func (l layeredFS) Open(name string) (fs.File, error) {
	for _, layer := range l {
		f, err := layer.Open(name)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// NormalizeURL returns url with leading and trailing slashes, or DefaultURL
// when url is empty.
func NormalizeURL(url string) string {
	url = strings.Trim(url, "/")
	if url == "" {
		return DefaultURL
	}
	return "/" + url + "/"
}

// Handler serves files from root, falling back to the embedded assets. An
// empty root serves the embedded assets only. Directories are never listed.
// The handler expects the mount prefix to be stripped already.
func Handler(root string) http.Handler {
	var files fs.FS = DefaultFS()
	if root != "" {
		files = layeredFS{os.DirFS(root), DefaultFS()}
	}
	fileServer := http.FileServerFS(files)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if p == "" || p == "." {
			http.NotFound(w, r)
			return
		}

		info, err := fs.Stat(files, p)
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}
