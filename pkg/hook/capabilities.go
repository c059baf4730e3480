package hook

import (
	"context"
	"fmt"

	"github.com/vango-dev/pagerender/internal/errors"
	"github.com/vango-dev/pagerender/pkg/pagecontext"
)

// Export names the pipeline understands.
const (
	ExportGuard                 = "guard"
	ExportOnBeforeRender        = "onBeforeRender"
	ExportRender                = "render"
	ExportOnBeforeRoute         = "onBeforeRoute"
	ExportRoute                 = "route"
	ExportPrerender             = "prerender"
	ExportPassToClient          = "passToClient"
	ExportPage                  = "Page"
	ExportDoNotPrerender        = "doNotPrerender"
	ExportCustomExports         = "customExports"
	ExportFilesystemRoutingRoot = "filesystemRoutingRoot"
	ExportSkipDefaultGuard      = "skipDefaultGuardHook"
	ExportSkipDefaultOnBefore   = "skipDefaultOnBeforeRenderHook"
	ExportAsyncRouteOptIn       = "iKnowThePerformanceRisksOfAsyncRouteFunctions"
)

// Capabilities are the hooks and flags one page file provides, type-checked
// at load time.
type Capabilities struct {
	Guard          GuardFunc
	OnBeforeRender OnBeforeRenderFunc
	Render         RenderFunc
	OnBeforeRoute  OnBeforeRouteFunc
	Prerender      PrerenderFunc

	// Exactly one of RouteString and RouteFunc is set when the file defines
	// a route.
	RouteString string
	RouteFunc   RouteFunc

	PassToClient          []string
	CustomExports         []string
	FilesystemRoutingRoot string

	DoNotPrerender            bool
	SkipDefaultGuard          bool
	SkipDefaultOnBeforeRender bool
	AsyncRouteOptIn           bool
}

// HasRoute reports whether the file defines a route.
func (c *Capabilities) HasRoute() bool {
	return c.RouteString != "" || c.RouteFunc != nil
}

// Resolve checks the types of the known exports of a page file.
func Resolve(filePath string, exports map[string]any) (*Capabilities, error) {
	c := &Capabilities{}
	for name, v := range exports {
		if err := c.set(name, v); err != nil {
			return nil, errors.New(errors.CodeInvalidExport).
				WithDetailf("export %q of %s: %v", name, filePath, err)
		}
	}
	return c, nil
}

func (c *Capabilities) set(name string, v any) error {
	switch name {
	case ExportGuard:
		switch f := v.(type) {
		case GuardFunc:
			c.Guard = f
		case func(context.Context, *pagecontext.PageContext) error:
			c.Guard = f
		default:
			return wrongType(v, "hook.GuardFunc")
		}
	case ExportOnBeforeRender:
		switch f := v.(type) {
		case OnBeforeRenderFunc:
			c.OnBeforeRender = f
		case func(context.Context, *pagecontext.PageContext) (pagecontext.Addendum, error):
			c.OnBeforeRender = f
		default:
			return wrongType(v, "hook.OnBeforeRenderFunc")
		}
	case ExportRender:
		switch f := v.(type) {
		case RenderFunc:
			c.Render = f
		case func(context.Context, *pagecontext.PageContext) (any, error):
			c.Render = f
		default:
			return wrongType(v, "hook.RenderFunc")
		}
	case ExportOnBeforeRoute:
		switch f := v.(type) {
		case OnBeforeRouteFunc:
			c.OnBeforeRoute = f
		case func(context.Context, *pagecontext.PageContext) (*BeforeRouteResult, error):
			c.OnBeforeRoute = f
		default:
			return wrongType(v, "hook.OnBeforeRouteFunc")
		}
	case ExportRoute:
		switch f := v.(type) {
		case string:
			c.RouteString = f
		case RouteFunc:
			c.RouteFunc = f
		case func(context.Context, *pagecontext.PageContext) (*RouteMatch, error):
			c.RouteFunc = f
		case func(context.Context, *pagecontext.PageContext) (bool, error):
			c.RouteFunc = func(ctx context.Context, pc *pagecontext.PageContext) (*RouteMatch, error) {
				ok, err := f(ctx, pc)
				if err != nil || !ok {
					return nil, err
				}
				return &RouteMatch{Match: true}, nil
			}
		default:
			return wrongType(v, "a route string or hook.RouteFunc")
		}
	case ExportPrerender:
		switch f := v.(type) {
		case PrerenderFunc:
			c.Prerender = f
		case func(context.Context) ([]PrerenderEntry, error):
			c.Prerender = f
		case func(context.Context) ([]string, error):
			c.Prerender = func(ctx context.Context) ([]PrerenderEntry, error) {
				urls, err := f(ctx)
				if err != nil {
					return nil, err
				}
				entries := make([]PrerenderEntry, len(urls))
				for i, u := range urls {
					entries[i] = PrerenderEntry{URL: u}
				}
				return entries, nil
			}
		default:
			return wrongType(v, "hook.PrerenderFunc")
		}
	case ExportPassToClient:
		s, ok := v.([]string)
		if !ok {
			return wrongType(v, "[]string")
		}
		c.PassToClient = s
	case ExportCustomExports:
		s, ok := v.([]string)
		if !ok {
			return wrongType(v, "[]string")
		}
		c.CustomExports = s
	case ExportFilesystemRoutingRoot:
		s, ok := v.(string)
		if !ok {
			return wrongType(v, "string")
		}
		c.FilesystemRoutingRoot = s
	case ExportDoNotPrerender:
		return setBool(&c.DoNotPrerender, v)
	case ExportSkipDefaultGuard:
		return setBool(&c.SkipDefaultGuard, v)
	case ExportSkipDefaultOnBefore:
		return setBool(&c.SkipDefaultOnBeforeRender, v)
	case ExportAsyncRouteOptIn:
		return setBool(&c.AsyncRouteOptIn, v)
	}
	return nil
}

func setBool(dst *bool, v any) error {
	b, ok := v.(bool)
	if !ok {
		return wrongType(v, "bool")
	}
	*dst = b
	return nil
}

func wrongType(v any, want string) error {
	return fmt.Errorf("got %T, want %s", v, want)
}
