package pagefile

import (
	"path"
	"sort"
	"strings"
)

// FileType classifies a page file by its suffix.
type FileType string

const (
	// TypeView is the page's view (`.page`), loaded on both sides.
	TypeView FileType = ".page"
	// TypeServer holds server-only hooks (`.page.server`).
	TypeServer FileType = ".page.server"
	// TypeClient holds browser-only hooks (`.page.client`).
	TypeClient FileType = ".page.client"
	// TypeRoute holds the route (`.page.route`).
	TypeRoute FileType = ".page.route"
)

// FileTypes lists every file type.
var FileTypes = []FileType{TypeView, TypeServer, TypeClient, TypeRoute}

// Valid reports whether t is a known file type.
func (t FileType) Valid() bool {
	switch t {
	case TypeView, TypeServer, TypeClient, TypeRoute:
		return true
	}
	return false
}

// Env selects the files loaded for one side of the application.
type Env int

const (
	// EnvServer loads `.page.server` and `.page` files.
	EnvServer Env = iota
	// EnvClient loads `.page.client` and `.page` files.
	EnvClient
)

// FileType returns the environment-specific file type.
func (e Env) FileType() FileType {
	if e == EnvClient {
		return TypeClient
	}
	return TypeServer
}

// DetermineFileType derives the file type from the suffix convention:
// hello.page.server.go is a server file, hello.page.tsx a view file.
// It returns "" for paths that are not page files.
func DetermineFileType(filePath string) FileType {
	parts := strings.Split(path.Base(filePath), ".")
	for i, p := range parts {
		if p != "page" || i == 0 {
			continue
		}
		if i+1 < len(parts) {
			switch parts[i+1] {
			case "server":
				return TypeServer
			case "client":
				return TypeClient
			case "route":
				return TypeRoute
			}
		}
		return TypeView
	}
	return ""
}

// DeterminePageID strips the page file suffix: /pages/hello/index.page.server.go
// belongs to the page /pages/hello/index.
func DeterminePageID(filePath string) string {
	dir, base := path.Split(filePath)
	if i := strings.Index(base, ".page"); i > 0 {
		base = base[:i]
	}
	id := dir + base
	// A renderer directory groups the default files of its parent.
	if strings.HasSuffix(dir, "/renderer/") && strings.HasPrefix(base, "_default") {
		id = strings.TrimSuffix(dir, "renderer/") + "_default"
	}
	return id
}

// IsDefaultFilePath reports whether filePath is a default file, applying to
// every page below its directory.
func IsDefaultFilePath(filePath string) bool {
	return strings.Contains(filePath, "/_default") || strings.Contains(filePath, "/renderer/")
}

// IsErrorPagePath reports whether filePath belongs to the error page.
func IsErrorPagePath(filePath string) bool {
	return strings.Contains(DeterminePageID(filePath), "/_error")
}

// scopeDir returns the directory a default file applies to.
func scopeDir(filePath string) string {
	p := filePath
	if i := strings.Index(p, "/_default"); i >= 0 {
		p = p[:i]
	} else {
		p = path.Dir(p)
	}
	p = strings.TrimSuffix(p, "/renderer")
	if p == "" || p == "." {
		return "/"
	}
	return p
}

func sortedKeys(e Exports) []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
