package assets

import (
	"strings"
)

// ClientDependency is a module the page's client code depends on.
type ClientDependency struct {
	ID string
	// OnlyAssets collects the static assets and styles of the module but
	// not its code. Server files are walked this way so that the styles
	// they import are still loaded.
	OnlyAssets bool
}

// CollectAssets walks the manifest from each dependency, following
// imports, and returns the URLs of the output files, styles and static
// assets. Dependencies missing from the manifest are skipped.
func CollectAssets(m *Manifest, deps []ClientDependency) []string {
	c := &collector{m: m, visited: map[string]bool{}, seen: map[string]bool{}}
	for _, d := range deps {
		key, _, ok := GetManifestEntry(d.ID, m)
		if !ok {
			continue
		}
		c.walk(key, d.OnlyAssets)
	}
	return c.urls
}

type collector struct {
	m       *Manifest
	visited map[string]bool
	seen    map[string]bool
	urls    []string
}

func (c *collector) add(file string) {
	u := "/" + strings.TrimPrefix(file, "/")
	if !c.seen[u] {
		c.seen[u] = true
		c.urls = append(c.urls, u)
	}
}

func (c *collector) walk(key string, onlyAssets bool) {
	if c.visited[key] {
		return
	}
	c.visited[key] = true
	e, ok := c.m.Entry(key)
	if !ok {
		return
	}
	if !onlyAssets {
		c.add(e.File)
	}
	for _, imp := range e.Imports {
		c.walk(imp, onlyAssets)
	}
	for _, css := range e.CSS {
		c.add(css)
	}
	for _, a := range e.Assets {
		c.add(a)
	}
}

// Module is a node of the development module graph.
type Module struct {
	URL     string
	Imports []string
}

// ModuleGraph gives access to the modules the development server knows
// about.
type ModuleGraph interface {
	Module(id string) (Module, bool)
}

// MapModuleGraph is a ModuleGraph backed by a map from module id.
type MapModuleGraph map[string]Module

// Module implements ModuleGraph.
func (g MapModuleGraph) Module(id string) (Module, bool) {
	m, ok := g[id]
	return m, ok
}

// CollectStyles walks the development module graph from each dependency
// and returns the URLs of the style modules it reaches.
func CollectStyles(g ModuleGraph, deps []ClientDependency) []string {
	visited := map[string]bool{}
	var urls []string
	var walk func(id string)
	walk = func(id string) {
		mod, ok := g.Module(id)
		if !ok || mod.URL == "" || visited[mod.URL] {
			return
		}
		visited[mod.URL] = true
		if isStyleModule(mod.URL) {
			urls = append(urls, mod.URL)
		}
		for _, imp := range mod.Imports {
			walk(imp)
		}
	}
	for _, d := range deps {
		walk(d.ID)
	}
	return urls
}

func isStyleModule(u string) bool {
	p, query, _ := strings.Cut(u, "?")
	return strings.HasSuffix(p, ".css") || strings.Contains(query, "type=style")
}
