// Package hook defines the hooks page files export and runs them.
//
// Hooks are plain Go functions stored in a page file's exports under a
// well-known name. Their types are checked once, when the file is loaded,
// and collected into a Capabilities value the pipeline dispatches on.
package hook

import (
	"context"

	"github.com/vango-dev/pagerender/pkg/pagecontext"
	"github.com/vango-dev/pagerender/pkg/render"
)

// GuardFunc may only abort: return an abort signal or nil.
type GuardFunc func(ctx context.Context, pc *pagecontext.PageContext) error

// OnBeforeRenderFunc fetches data. The returned addendum is merged into the
// page context.
type OnBeforeRenderFunc func(ctx context.Context, pc *pagecontext.PageContext) (pagecontext.Addendum, error)

// RenderFunc produces the document. It returns nil, a *render.Document, or a
// RenderResult.
type RenderFunc func(ctx context.Context, pc *pagecontext.PageContext) (any, error)

// RenderResult is the structured return value of a render hook.
type RenderResult struct {
	// DocumentHTML is nil or a *render.Document.
	DocumentHTML any

	// PageContext is merged before the page context is serialized.
	PageContext pagecontext.Addendum

	// PageContextFunc is resolved after a streamed document has been fully
	// sent and before the page context is serialized.
	PageContextFunc func(ctx context.Context) (pagecontext.Addendum, error)
}

// RouteMatch is the result of a route function.
type RouteMatch struct {
	Match       bool
	RouteParams map[string]string

	// Precedence overrides the ranking between matching routes. Higher wins.
	Precedence *int
}

// RouteFunc decides whether a page matches the current URL. A nil match
// means no match.
type RouteFunc func(ctx context.Context, pc *pagecontext.PageContext) (*RouteMatch, error)

// BeforeRouteResult is returned by the global onBeforeRoute hook.
type BeforeRouteResult struct {
	// URLOriginal rewrites the URL routing runs against.
	URLOriginal string

	// PageContext is merged before routing. Setting pageId (and optionally
	// routeParams) skips routing altogether.
	PageContext pagecontext.Addendum
}

// OnBeforeRouteFunc runs before routing for every request.
type OnBeforeRouteFunc func(ctx context.Context, pc *pagecontext.PageContext) (*BeforeRouteResult, error)

// PrerenderEntry is one URL returned by a prerender hook.
type PrerenderEntry struct {
	URL         string
	PageContext pagecontext.Addendum
}

// PrerenderFunc lists the URLs to prerender.
type PrerenderFunc func(ctx context.Context) ([]PrerenderEntry, error)

// Render returns a RenderFunc that always renders doc. It is handy for
// static pages and tests.
func Render(doc *render.Document) RenderFunc {
	return func(context.Context, *pagecontext.PageContext) (any, error) {
		return doc, nil
	}
}
