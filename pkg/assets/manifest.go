// Package assets resolves the scripts, styles and preloads of a page and
// injects them into the rendered HTML.
//
// In production, every client module is mapped through the build manifest
// to its fingerprinted output file:
//
//	{
//	  "pages/index.page.client.ts": {
//	    "file": "assets/index.page.client.4a5b6c.js",
//	    "isEntry": true,
//	    "imports": ["_vendor.1a2b3c.js"],
//	    "css": ["assets/index.8d9e0f.css"]
//	  }
//	}
//
// In development, module ids are used as-is and styles are collected from
// the dev server's module graph.
package assets

import (
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/vango-dev/pagerender/internal/errors"
)

// ManifestEntry is one module of the build manifest.
type ManifestEntry struct {
	File           string   `json:"file"`
	Src            string   `json:"src,omitempty"`
	IsEntry        bool     `json:"isEntry,omitempty"`
	Imports        []string `json:"imports,omitempty"`
	DynamicImports []string `json:"dynamicImports,omitempty"`
	CSS            []string `json:"css,omitempty"`
	Assets         []string `json:"assets,omitempty"`
}

// Manifest maps source module paths to their build output. It is safe for
// concurrent use.
type Manifest struct {
	mu      sync.RWMutex
	entries map[string]ManifestEntry
	keyMap  map[string]string
}

// NewManifest creates an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{
		entries: make(map[string]ManifestEntry),
		keyMap:  make(map[string]string),
	}
}

// Load reads a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.CodeConfigNotFound).
			WithDetailf("build manifest %s", path).Wrap(err).
			WithSuggestion("Build the client before running in production.")
	}
	return Parse(data)
}

// Parse decodes a manifest.
func Parse(data []byte) (*Manifest, error) {
	var entries map[string]ManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.FromError(err, errors.CodeConfigParse).WithDetail("build manifest is not valid JSON")
	}
	m := NewManifest()
	for k, e := range entries {
		m.entries[k] = e
	}
	return m, nil
}

// Entry returns the entry stored under key.
func (m *Manifest) Entry(key string) (ManifestEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return e, ok
}

// Set adds or replaces an entry.
func (m *Manifest) Set(key string, e ManifestEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = e
}

// MapPackage records the manifest key of an npm package module, such as the
// framework's client entry.
func (m *Manifest) MapPackage(id, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keyMap[id] = key
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Keys returns the entry keys in sorted order.
func (m *Manifest) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Manifest) packageKey(id string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.keyMap[id]
	return k, ok
}
