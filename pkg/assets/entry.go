package assets

import (
	"strings"
)

// Module id conventions.
const (
	// FrameworkPrefix marks modules shipped with the runtime. They are
	// looked up by the end of their manifest key.
	FrameworkPrefix = "@@pagerender/"

	// VirtualPrefix marks virtual modules generated by the build. Their id
	// is their manifest key.
	VirtualPrefix = "virtual:pagerender:"
)

// GetManifestEntry finds the manifest entry of a client module id. It
// reports false when the manifest has no entry for it, which happens when
// the bundler tree-shook the module.
func GetManifestEntry(id string, m *Manifest) (string, ManifestEntry, bool) {
	switch {
	case strings.HasPrefix(id, FrameworkPrefix):
		return m.findKeyEnd(id[len(FrameworkPrefix)-1:])

	case strings.HasPrefix(id, VirtualPrefix):
		return m.lookup(id)

	case strings.HasPrefix(id, "/node_modules/") || strings.HasPrefix(id, "/../"):
		parts := strings.Split(id, "/node_modules/")
		keyEnd := "/" + strings.TrimPrefix(parts[len(parts)-1], "/")
		if key, e, ok := m.findKeyEnd(keyEnd); ok {
			return key, e, ok
		}
		// Retry without the package directory.
		segs := strings.Split(keyEnd, "/")
		if len(segs) > 2 {
			return m.findKeyEnd("/" + strings.Join(segs[2:], "/"))
		}
		return "", ManifestEntry{}, false

	case strings.HasPrefix(id, "/"):
		return m.lookup(id[1:])

	case isNpmPackageModule(id):
		if key, ok := m.packageKey(id); ok {
			return m.lookup(key)
		}
	}
	return "", ManifestEntry{}, false
}

// findKeyEnd returns the entry whose key ends with keyEnd. Keys relative to
// a parent directory win over others.
func (m *Manifest) findKeyEnd(keyEnd string) (string, ManifestEntry, bool) {
	var found, relative string
	for _, k := range m.Keys() {
		if !strings.HasSuffix(k, keyEnd) {
			continue
		}
		if found == "" {
			found = k
		}
		if relative == "" && strings.HasPrefix(k, "../") {
			relative = k
		}
	}
	if relative != "" {
		found = relative
	}
	if found == "" {
		return "", ManifestEntry{}, false
	}
	return m.lookup(found)
}

func (m *Manifest) lookup(key string) (string, ManifestEntry, bool) {
	e, ok := m.Entry(key)
	if !ok {
		return "", ManifestEntry{}, false
	}
	return key, e, true
}

func isNpmPackageModule(id string) bool {
	if id == "" || strings.HasPrefix(id, ".") || strings.HasPrefix(id, "/") || strings.Contains(id, ":") {
		return false
	}
	if id[0] == '@' {
		return strings.Count(id, "/") >= 1
	}
	return true
}
