// Package pagefile holds the page files of an application and answers which
// of them apply to a page.
//
// Page files are discovered by the build integration and handed over as a
// GlobResult: for each file type, a map from virtual file path to a loader.
// Parse validates that shape and produces PageFile values whose loaders run
// at most once. A Registry indexes the files and resolves the default-file
// cascade: page-local files first, then _default files from the nearest
// ancestor directory to the most distant one.
package pagefile

import (
	"context"
	"fmt"
	"sync"

	"github.com/vango-dev/pagerender/pkg/hook"
)

// Exports are the values a page file exports, by name.
type Exports map[string]any

// Meta is build metadata attached to a page file, such as extracted styles.
type Meta map[string]any

// Loader loads the exports of a page file.
type Loader func(ctx context.Context) (Exports, error)

// ExportNamesLoader loads only the export names of a page file.
type ExportNamesLoader func(ctx context.Context) ([]string, error)

// MetaLoader loads the metadata of a page file.
type MetaLoader func(ctx context.Context) (Meta, error)

// FileExports are the loaded exports of a page file along with the hooks
// they provide.
type FileExports struct {
	Values Exports
	Caps   *hook.Capabilities
}

// PageFile is one module associated with a page, or a default file shared
// by every page below its directory.
type PageFile struct {
	FilePath        string
	FileType        FileType
	PageID          string
	IsDefaultFile   bool
	IsErrorPageFile bool

	loadExports     Loader
	loadExportNames ExportNamesLoader
	loadMeta        MetaLoader

	mu          sync.Mutex
	exports     *FileExports
	exportNames []string
	namesLoaded bool
	meta        Meta
	metaLoaded  bool
}

// NewPageFile creates a page file, deriving its type and page from filePath.
func NewPageFile(filePath string, load Loader) *PageFile {
	return &PageFile{
		FilePath:        filePath,
		FileType:        DetermineFileType(filePath),
		PageID:          DeterminePageID(filePath),
		IsDefaultFile:   IsDefaultFilePath(filePath),
		IsErrorPageFile: IsErrorPagePath(filePath),
		loadExports:     load,
	}
}

// Loadable reports whether the exports of the file can be loaded in this
// environment.
func (f *PageFile) Loadable() bool {
	return f.loadExports != nil
}

// LoadFileExports loads the exports once. Later calls return the same
// *FileExports. Failed loads are retried on the next call.
func (f *PageFile) LoadFileExports(ctx context.Context) (*FileExports, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exports != nil {
		return f.exports, nil
	}
	if f.loadExports == nil {
		return nil, fmt.Errorf("pagefile: %s cannot be loaded in this environment", f.FilePath)
	}
	values, err := f.loadExports(ctx)
	if err != nil {
		return nil, fmt.Errorf("pagefile: load %s: %w", f.FilePath, err)
	}
	if values == nil {
		values = Exports{}
	}
	caps, err := hook.Resolve(f.FilePath, values)
	if err != nil {
		return nil, err
	}
	f.exports = &FileExports{Values: values, Caps: caps}
	return f.exports, nil
}

// LoadExportNames returns the export names without loading the module when
// a names loader is available.
func (f *PageFile) LoadExportNames(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	if f.namesLoaded {
		defer f.mu.Unlock()
		return f.exportNames, nil
	}
	load := f.loadExportNames
	f.mu.Unlock()

	var names []string
	if load != nil {
		var err error
		if names, err = load(ctx); err != nil {
			return nil, fmt.Errorf("pagefile: load export names of %s: %w", f.FilePath, err)
		}
	} else {
		exports, err := f.LoadFileExports(ctx)
		if err != nil {
			return nil, err
		}
		for name := range exports.Values {
			names = append(names, name)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.exportNames = names
	f.namesLoaded = true
	return names, nil
}

// LoadMeta loads the metadata once. Files without metadata return nil.
func (f *PageFile) LoadMeta(ctx context.Context) (Meta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.metaLoaded || f.loadMeta == nil {
		return f.meta, nil
	}
	meta, err := f.loadMeta(ctx)
	if err != nil {
		return nil, fmt.Errorf("pagefile: load meta of %s: %w", f.FilePath, err)
	}
	f.meta = meta
	f.metaLoaded = true
	return meta, nil
}

// reset forgets everything loaded so far.
func (f *PageFile) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exports = nil
	f.exportNames = nil
	f.namesLoaded = false
	f.meta = nil
	f.metaLoaded = false
}

// String returns the file path.
func (f *PageFile) String() string {
	return f.FilePath
}
