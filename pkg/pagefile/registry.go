package pagefile

import (
	"context"
	"path"
	"sort"
	"sync"

	"github.com/vango-dev/pagerender/internal/errors"
)

// Source produces the page files descriptor. In development it is called
// again after every file change.
type Source func(ctx context.Context) (GlobResult, error)

// Registry holds the page files of an application. It is read-mostly and
// safe for concurrent use.
type Registry struct {
	source            Source
	reloadEachRequest bool

	mu       sync.RWMutex
	loaded   bool
	files    []*PageFile
	byPath   map[string]*PageFile
	byPage   map[string][]*PageFile
	defaults *dirTrie
	pageIDs  []string
}

// NewRegistry indexes files. File paths must be unique.
func NewRegistry(files []*PageFile) (*Registry, error) {
	r := &Registry{}
	if err := r.index(files); err != nil {
		return nil, err
	}
	return r, nil
}

// FromGlob parses g and indexes the result.
func FromGlob(g GlobResult) (*Registry, error) {
	files, err := Parse(g)
	if err != nil {
		return nil, err
	}
	return NewRegistry(files)
}

// NewRegistryFromSource creates a registry populated by source on first use.
// With reloadEachRequest, every call to Files asks the source again.
func NewRegistryFromSource(source Source, reloadEachRequest bool) *Registry {
	return &Registry{source: source, reloadEachRequest: reloadEachRequest}
}

func (r *Registry) index(files []*PageFile) error {
	byPath := make(map[string]*PageFile, len(files))
	byPage := map[string][]*PageFile{}
	defaults := newDirTrie()
	ids := map[string]struct{}{}

	for _, f := range files {
		if _, dup := byPath[f.FilePath]; dup {
			return errors.New(errors.CodeDuplicatePage).WithDetailf("%s is listed twice", f.FilePath)
		}
		byPath[f.FilePath] = f
		if f.IsDefaultFile {
			defaults.insert(scopeDir(f.FilePath), f)
			continue
		}
		byPage[f.PageID] = append(byPage[f.PageID], f)
		ids[f.PageID] = struct{}{}
	}

	pageIDs := make([]string, 0, len(ids))
	for id := range ids {
		pageIDs = append(pageIDs, id)
	}
	sort.Strings(pageIDs)

	sorted := append([]*PageFile(nil), files...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FilePath < sorted[j].FilePath })

	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = sorted
	r.byPath = byPath
	r.byPage = byPage
	r.defaults = defaults
	r.pageIDs = pageIDs
	r.loaded = true
	return nil
}

// Files returns every page file, populating the registry from its source
// when needed.
func (r *Registry) Files(ctx context.Context) ([]*PageFile, error) {
	r.mu.RLock()
	loaded := r.loaded
	files := r.files
	r.mu.RUnlock()

	if r.source != nil && (!loaded || r.reloadEachRequest) {
		g, err := r.source(ctx)
		if err != nil {
			return nil, err
		}
		parsed, err := Parse(g)
		if err != nil {
			return nil, err
		}
		if err := r.index(parsed); err != nil {
			return nil, err
		}
		return parsed, nil
	}
	return files, nil
}

// File returns the page file at filePath.
func (r *Registry) File(filePath string) (*PageFile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byPath[filePath]
	return f, ok
}

// AllPageIDs lists the pages, derived from non-default files only.
func (r *Registry) AllPageIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.pageIDs...)
}

// ErrorPageID returns the page rendering errors, or "" when the application
// has none.
func (r *Registry) ErrorPageID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.pageIDs {
		for _, f := range r.byPage[id] {
			if f.IsErrorPageFile {
				return id
			}
		}
	}
	return ""
}

// FindFilesForPage returns the files applying to pageID in env, page-local
// files first, then default files from the nearest ancestor directory to
// the most distant. Within a directory, environment-specific files come
// before view files, then files are ordered by path.
func (r *Registry) FindFilesForPage(pageID string, env Env) []*PageFile {
	return r.find(pageID, env.FileType(), TypeView)
}

// FindFilesOfType applies the same cascade to a single file type.
func (r *Registry) FindFilesOfType(pageID string, ft FileType) []*PageFile {
	return r.find(pageID, ft)
}

// DefaultFilesOfType returns every default file of type ft, whatever page
// it applies to.
func (r *Registry) DefaultFilesOfType(ft FileType) []*PageFile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*PageFile
	for _, f := range r.files {
		if f.IsDefaultFile && f.FileType == ft {
			out = append(out, f)
		}
	}
	return out
}

func (r *Registry) find(pageID string, types ...FileType) []*PageFile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defaults == nil {
		return nil
	}

	rank := func(ft FileType) int {
		for i, t := range types {
			if t == ft {
				return i
			}
		}
		return -1
	}
	pick := func(files []*PageFile) []*PageFile {
		var out []*PageFile
		for _, f := range files {
			if rank(f.FileType) >= 0 {
				out = append(out, f)
			}
		}
		sort.SliceStable(out, func(i, j int) bool {
			ri, rj := rank(out[i].FileType), rank(out[j].FileType)
			if ri != rj {
				return ri < rj
			}
			return out[i].FilePath < out[j].FilePath
		})
		return out
	}

	out := pick(r.byPage[pageID])
	for _, level := range r.defaults.ancestors(path.Dir(pageID)) {
		out = append(out, pick(level)...)
	}
	return out
}

// Invalidate drops every loaded export so the next load fetches the modules
// again. A registry backed by a source is re-populated on next use.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	files := r.files
	if r.source != nil {
		r.loaded = false
	}
	r.mu.Unlock()
	for _, f := range files {
		f.reset()
	}
}
