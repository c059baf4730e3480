package pagefile

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/pagerender/internal/errors"
	"github.com/vango-dev/pagerender/pkg/hook"
	"github.com/vango-dev/pagerender/pkg/pagecontext"
)

// Loaded is the aggregate of every page file applying to a page.
type Loaded struct {
	// Files are the loaded files in cascade order.
	Files []*PageFile

	// Sources pair each file with its resolved hooks, in cascade order.
	Sources []hook.Source

	// Exports maps each export name to the value of the first file
	// exporting it.
	Exports map[string]any

	// ExportsAll keeps every contribution, page-local first.
	ExportsAll map[string][]pagecontext.ExportValue

	// PageExports are the exports of the page-local files only.
	PageExports map[string]any

	// PassToClient is the union of the passToClient exports.
	PassToClient []string
}

// Caps returns the capabilities of the file at filePath.
func (l *Loaded) Caps(filePath string) *hook.Capabilities {
	for _, s := range l.Sources {
		if s.FilePath == filePath {
			return s.Caps
		}
	}
	return nil
}

// knownServerExports are the exports a server or route file may have
// without declaring them in customExports.
var knownServerExports = map[string]bool{
	hook.ExportGuard:                 true,
	hook.ExportOnBeforeRender:        true,
	hook.ExportRender:                true,
	hook.ExportOnBeforeRoute:         true,
	hook.ExportRoute:                 true,
	hook.ExportPrerender:             true,
	hook.ExportPassToClient:          true,
	hook.ExportDoNotPrerender:        true,
	hook.ExportCustomExports:         true,
	hook.ExportFilesystemRoutingRoot: true,
	hook.ExportSkipDefaultGuard:      true,
	hook.ExportSkipDefaultOnBefore:   true,
	hook.ExportAsyncRouteOptIn:       true,
}

// LoadPageFiles loads the files applying to pageID in env and aggregates
// their exports. Files that cannot be loaded in this environment are
// skipped.
func LoadPageFiles(ctx context.Context, r *Registry, pageID string, env Env) (*Loaded, error) {
	var files []*PageFile
	for _, f := range r.FindFilesForPage(pageID, env) {
		if f.Loadable() {
			files = append(files, f)
		}
	}

	exports := make([]*FileExports, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			e, err := f.LoadFileExports(gctx)
			if err != nil {
				return err
			}
			exports[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	l := &Loaded{
		Files:       files,
		Exports:     map[string]any{},
		ExportsAll:  map[string][]pagecontext.ExportValue{},
		PageExports: map[string]any{},
	}
	var custom []string
	for _, e := range exports {
		custom = append(custom, e.Caps.CustomExports...)
	}
	seenPass := map[string]bool{}
	for i, f := range files {
		e := exports[i]
		l.Sources = append(l.Sources, hook.Source{FilePath: f.FilePath, IsDefault: f.IsDefaultFile, Caps: e.Caps})
		for _, name := range sortedKeys(e.Values) {
			v := e.Values[name]
			if _, ok := l.Exports[name]; !ok {
				l.Exports[name] = v
			}
			if !f.IsDefaultFile {
				if _, ok := l.PageExports[name]; !ok {
					l.PageExports[name] = v
				}
			}
			l.ExportsAll[name] = append(l.ExportsAll[name], pagecontext.ExportValue{
				FilePath:    f.FilePath,
				ExportValue: v,
				IsDefault:   f.IsDefaultFile,
			})
			if f.FileType != TypeView && f.FileType != TypeClient && !knownServerExports[name] && !contains(custom, name) {
				errors.WarnCode(slog.Default(), errors.CodeUnknownExport, f.FilePath+"#"+name,
					"file", f.FilePath, "export", name)
			}
		}
		for _, k := range e.Caps.PassToClient {
			if !seenPass[k] {
				seenPass[k] = true
				l.PassToClient = append(l.PassToClient, k)
			}
		}
	}
	return l, nil
}

// StringUnion merges the []string contributions to an export, keeping the
// first occurrence of each value.
func StringUnion(exportsAll map[string][]pagecontext.ExportValue, name string) []string {
	var out []string
	seen := map[string]bool{}
	for _, ev := range exportsAll[name] {
		list, _ := ev.ExportValue.([]string)
		for _, s := range list {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
