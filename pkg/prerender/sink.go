package prerender

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Sink stores prerendered files. name is a slash-separated path relative
// to the output root, such as "about/index.html".
type Sink interface {
	WriteFile(ctx context.Context, name, contentType string, data []byte) error
}

// DirSink writes files below a local directory.
type DirSink struct {
	Dir string
}

// WriteFile implements Sink.
func (s DirSink) WriteFile(_ context.Context, name, _ string, data []byte) error {
	p := filepath.Join(s.Dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0644)
}

// htmlFileName maps a URL to its HTML file: /about becomes about/index.html,
// or about.html with noExtraDir. The root is always index.html.
func htmlFileName(url string, noExtraDir bool) string {
	p := strings.Trim(path.Clean("/"+url), "/")
	switch {
	case p == "":
		return "index.html"
	case noExtraDir:
		return p + ".html"
	default:
		return p + "/index.html"
	}
}

// pageContextFileName maps a URL to the file client-side navigation fetches.
func pageContextFileName(url string) string {
	p := strings.Trim(path.Clean("/"+url), "/")
	if p == "" {
		return "index.pageContext.json"
	}
	return p + "/index.pageContext.json"
}
