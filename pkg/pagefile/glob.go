package pagefile

import (
	"context"
	"sort"
	"strings"

	"github.com/vango-dev/pagerender/internal/errors"
)

// GlobResult is the page file descriptor produced by the build integration.
// Buckets are keyed by file type, then by virtual file path.
type GlobResult struct {
	// IsGeneratedFile must be true. It guards against hand-written or stale
	// descriptors.
	IsGeneratedFile bool

	PageFilesLazy             map[FileType]map[string]Loader
	PageFilesEager            map[FileType]map[string]Exports
	PageFilesExportNamesLazy  map[FileType]map[string]ExportNamesLoader
	PageFilesExportNamesEager map[FileType]map[string][]string
	PageFilesMetaLazy         map[FileType]map[string]MetaLoader

	// PageFilesList names every page file of the application, including the
	// ones not loadable in this environment.
	PageFilesList []string
}

func malformed(format string, args ...any) error {
	return errors.New(errors.CodeMalformedGlob).WithDetailf(format, args...).
		WithSuggestion("The page files descriptor does not match this runtime version. Rebuild the application.")
}

// Parse validates g and returns its page files sorted by path.
func Parse(g GlobResult) ([]*PageFile, error) {
	if !g.IsGeneratedFile {
		return nil, malformed("IsGeneratedFile is false")
	}
	if g.PageFilesLazy == nil {
		return nil, malformed("PageFilesLazy is missing")
	}
	if _, ok := g.PageFilesLazy[TypeView]; !ok {
		return nil, malformed("the %s bucket is missing", TypeView)
	}
	_, hasServer := g.PageFilesLazy[TypeServer]
	_, hasClient := g.PageFilesLazy[TypeClient]
	if !hasServer && !hasClient {
		return nil, malformed("both the %s and %s buckets are missing", TypeServer, TypeClient)
	}

	files := map[string]*PageFile{}
	get := func(ft FileType, filePath string) (*PageFile, error) {
		if !ft.Valid() {
			return nil, malformed("unknown file type %q", ft)
		}
		if !strings.HasPrefix(filePath, "/") || strings.Contains(filePath, `\`) {
			return nil, malformed("file path %q is not a posix path starting with /", filePath)
		}
		if got := DetermineFileType(filePath); got != ft {
			return nil, malformed("file %q is in the %s bucket but its suffix says %q", filePath, ft, got)
		}
		f, ok := files[filePath]
		if !ok {
			f = NewPageFile(filePath, nil)
			files[filePath] = f
		}
		return f, nil
	}

	for ft, bucket := range g.PageFilesLazy {
		for filePath, load := range bucket {
			if load == nil {
				return nil, malformed("loader of %q is nil", filePath)
			}
			f, err := get(ft, filePath)
			if err != nil {
				return nil, err
			}
			f.loadExports = load
		}
	}
	for ft, bucket := range g.PageFilesEager {
		for filePath, exports := range bucket {
			f, err := get(ft, filePath)
			if err != nil {
				return nil, err
			}
			exports := exports
			f.loadExports = func(context.Context) (Exports, error) { return exports, nil }
		}
	}
	for ft, bucket := range g.PageFilesExportNamesLazy {
		for filePath, load := range bucket {
			f, err := get(ft, filePath)
			if err != nil {
				return nil, err
			}
			f.loadExportNames = load
		}
	}
	for ft, bucket := range g.PageFilesExportNamesEager {
		for filePath, names := range bucket {
			f, err := get(ft, filePath)
			if err != nil {
				return nil, err
			}
			names := names
			f.loadExportNames = func(context.Context) ([]string, error) { return names, nil }
		}
	}
	for ft, bucket := range g.PageFilesMetaLazy {
		for filePath, load := range bucket {
			f, err := get(ft, filePath)
			if err != nil {
				return nil, err
			}
			f.loadMeta = load
		}
	}
	for _, filePath := range g.PageFilesList {
		ft := DetermineFileType(filePath)
		if ft == "" {
			return nil, malformed("%q in PageFilesList is not a page file", filePath)
		}
		if _, err := get(ft, filePath); err != nil {
			return nil, err
		}
	}

	out := make([]*PageFile, 0, len(files))
	for _, f := range files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilePath < out[j].FilePath })
	return out, nil
}
