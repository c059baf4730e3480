package router

import (
	"context"
	"path"

	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/pagerender/internal/errors"
	"github.com/vango-dev/pagerender/pkg/hook"
	"github.com/vango-dev/pagerender/pkg/pagefile"
)

// RouteType is the kind of a page route.
type RouteType int

const (
	RouteFilesystem RouteType = iota
	RouteString
	RouteFunction
)

func (t RouteType) String() string {
	switch t {
	case RouteString:
		return "string"
	case RouteFunction:
		return "function"
	default:
		return "filesystem"
	}
}

// PageRoute is the route of one page.
type PageRoute struct {
	PageID string
	Type   RouteType

	// RouteString is set for string and filesystem routes.
	RouteString string

	// Func is set for function routes.
	Func hook.RouteFunc

	// DefinedAt names the file defining the route. Filesystem routes name
	// the page files they were derived from.
	DefinedAt string

	// AsyncOptIn silences the slow route function warning.
	AsyncOptIn bool
}

// PageRoutes are the routes of every page along with the global routing
// hooks.
type PageRoutes struct {
	Routes []PageRoute

	OnBeforeRoute     hook.OnBeforeRouteFunc
	OnBeforeRouteFile string

	Roots []FilesystemRoot
}

// LoadPageRoutes loads the .page.route files of reg and builds the route of
// every page except the error page.
func LoadPageRoutes(ctx context.Context, reg *pagefile.Registry) (*PageRoutes, error) {
	if _, err := reg.Files(ctx); err != nil {
		return nil, err
	}

	defaults := reg.DefaultFilesOfType(pagefile.TypeRoute)
	errorPage := reg.ErrorPageID()
	pageIDs := reg.AllPageIDs()

	local := make(map[string]*pagefile.PageFile, len(pageIDs))
	for _, id := range pageIDs {
		for _, f := range reg.FindFilesOfType(id, pagefile.TypeRoute) {
			if !f.IsDefaultFile && f.PageID == id {
				local[id] = f
			}
			break
		}
	}

	toLoad := append([]*pagefile.PageFile(nil), defaults...)
	for _, f := range local {
		toLoad = append(toLoad, f)
	}
	exports := make(map[*pagefile.PageFile]*pagefile.FileExports, len(toLoad))
	results := make([]*pagefile.FileExports, len(toLoad))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range toLoad {
		if !f.Loadable() {
			continue
		}
		i, f := i, f
		g.Go(func() error {
			e, err := f.LoadFileExports(gctx)
			results[i] = e
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, f := range toLoad {
		if results[i] != nil {
			exports[f] = results[i]
		}
	}

	pr := &PageRoutes{}
	for _, f := range defaults {
		e := exports[f]
		if e == nil {
			continue
		}
		if e.Caps.OnBeforeRoute != nil {
			if pr.OnBeforeRoute != nil {
				return nil, errors.Usagef("onBeforeRoute() is defined twice: %s and %s", pr.OnBeforeRouteFile, f.FilePath)
			}
			pr.OnBeforeRoute = e.Caps.OnBeforeRoute
			pr.OnBeforeRouteFile = f.FilePath
		}
		if root := e.Caps.FilesystemRoutingRoot; root != "" {
			if root[0] != '/' {
				return nil, errors.New(errors.CodeInvalidRouteString).
					WithDetailf("filesystemRoutingRoot of %s is %q but it should start with a leading slash '/'", f.FilePath, root)
			}
			pr.Roots = append(pr.Roots, FilesystemRoot{Dir: path.Dir(f.FilePath), URLRoot: root})
		}
	}

	for _, id := range pageIDs {
		if id == errorPage {
			continue
		}
		route := PageRoute{PageID: id}
		var caps *hook.Capabilities
		if f := local[id]; f != nil && exports[f] != nil {
			caps = exports[f].Caps
			route.DefinedAt = f.FilePath
		}
		switch {
		case caps != nil && caps.RouteString != "":
			if err := AssertRouteString(caps.RouteString, route.DefinedAt); err != nil {
				return nil, err
			}
			route.Type = RouteString
			route.RouteString = caps.RouteString
		case caps != nil && caps.RouteFunc != nil:
			route.Type = RouteFunction
			route.Func = caps.RouteFunc
			route.AsyncOptIn = caps.AsyncRouteOptIn
		default:
			route.Type = RouteFilesystem
			route.RouteString = DeduceFilesystemRoute(id, pr.Roots)
			route.DefinedAt = id + ".page.*"
		}
		pr.Routes = append(pr.Routes, route)
	}
	return pr, nil
}
