package hook

import (
	"context"
	"io"
	"strings"

	"github.com/vango-dev/pagerender/internal/errors"
	"github.com/vango-dev/pagerender/pkg/abort"
	"github.com/vango-dev/pagerender/pkg/pagecontext"
	"github.com/vango-dev/pagerender/pkg/render"
)

// Source is one loaded page file, in cascade order: page-local files first,
// then default files from the nearest to the most distant.
type Source struct {
	FilePath  string
	IsDefault bool
	Caps      *Capabilities
}

type inheritedKey struct{}

type inherited struct {
	run      func(ctx context.Context, pc *pagecontext.PageContext) (pagecontext.Addendum, error)
	called   bool
	addendum pagecontext.Addendum
}

// RunInherited runs the hook the current hook overrides. A guard or
// onBeforeRender hook that shadows an inherited one must call it, unless its
// file exports skipDefaultGuardHook or skipDefaultOnBeforeRenderHook. The
// inherited addendum is merged before the caller's own addendum; it is also
// returned for inspection.
func RunInherited(ctx context.Context, pc *pagecontext.PageContext) (pagecontext.Addendum, error) {
	in, _ := ctx.Value(inheritedKey{}).(*inherited)
	if in == nil || in.run == nil {
		return nil, nil
	}
	if in.called {
		return nil, errors.Usagef("hook.RunInherited() was already called")
	}
	in.called = true
	a, err := in.run(ctx, pc)
	in.addendum = a
	return a, err
}

type link struct {
	filePath string
	skipNext bool
	call     func(ctx context.Context, pc *pagecontext.PageContext) (pagecontext.Addendum, error)
}

func (r *Runner) runChain(ctx context.Context, pc *pagecontext.PageContext, name string, links []link, i int) (pagecontext.Addendum, error) {
	l := links[i]
	in := &inherited{}
	if i+1 < len(links) && !l.skipNext {
		in.run = func(ctx context.Context, pc *pagecontext.PageContext) (pagecontext.Addendum, error) {
			return r.runChain(ctx, pc, name, links, i+1)
		}
	}

	hctx := context.WithValue(ctx, inheritedKey{}, in)
	own, sig, err := call(hctx, r, name, l.filePath, func(c context.Context) (pagecontext.Addendum, error) {
		return l.call(c, pc)
	})
	if sig != nil {
		return nil, sig
	}
	if err != nil {
		return nil, err
	}
	if in.run != nil && !in.called {
		return nil, errors.New(errors.CodeInheritedHookSkipped).
			WithDetailf("the %s() hook of %s overrides the one of %s without calling it", name, l.filePath, links[i+1].filePath).
			WithSuggestion("Call hook.RunInherited(ctx, pc) in " + l.filePath + " or export " + skipExport(name) + " = true")
	}

	if len(in.addendum) == 0 {
		return own, nil
	}
	merged := pagecontext.Addendum{}
	for k, v := range in.addendum {
		merged[k] = v
	}
	for k, v := range own {
		merged[k] = v
	}
	return merged, nil
}

func skipExport(name string) string {
	if name == ExportGuard {
		return ExportSkipDefaultGuard
	}
	return ExportSkipDefaultOnBefore
}

// Guard runs the guard hooks of sources.
func (r *Runner) Guard(ctx context.Context, pc *pagecontext.PageContext, sources []Source) (*abort.Signal, error) {
	var links []link
	for _, s := range sources {
		if s.Caps == nil || s.Caps.Guard == nil {
			continue
		}
		fn := s.Caps.Guard
		links = append(links, link{
			filePath: s.FilePath,
			skipNext: s.Caps.SkipDefaultGuard,
			call: func(ctx context.Context, pc *pagecontext.PageContext) (pagecontext.Addendum, error) {
				return nil, fn(ctx, pc)
			},
		})
	}
	if len(links) == 0 {
		return nil, nil
	}
	_, err := r.runChain(ctx, pc, ExportGuard, links, 0)
	return split(err)
}

// OnBeforeRender runs the onBeforeRender hooks of sources and merges their
// addenda into pc.
func (r *Runner) OnBeforeRender(ctx context.Context, pc *pagecontext.PageContext, sources []Source) (*abort.Signal, error) {
	var links []link
	for _, s := range sources {
		if s.Caps == nil || s.Caps.OnBeforeRender == nil {
			continue
		}
		links = append(links, link{
			filePath: s.FilePath,
			skipNext: s.Caps.SkipDefaultOnBeforeRender,
			call:     s.Caps.OnBeforeRender,
		})
	}
	if len(links) == 0 {
		return nil, nil
	}
	a, err := r.runChain(ctx, pc, ExportOnBeforeRender, links, 0)
	if sig, err := split(err); sig != nil || err != nil {
		return sig, err
	}
	pc.Merge(a)
	return nil, nil
}

// Rendered is the normalized outcome of a render hook.
type Rendered struct {
	// Document is nil when the hook rendered nothing.
	Document *render.Document

	PageContext     pagecontext.Addendum
	PageContextFunc func(ctx context.Context) (pagecontext.Addendum, error)
	FilePath        string
}

// FindRender returns the render hook that applies, in cascade order.
func FindRender(sources []Source) (RenderFunc, string) {
	for _, s := range sources {
		if s.Caps != nil && s.Caps.Render != nil {
			return s.Caps.Render, s.FilePath
		}
	}
	return nil, ""
}

// Render runs the render hook of sources and validates its result.
func (r *Runner) Render(ctx context.Context, pc *pagecontext.PageContext, sources []Source) (*Rendered, *abort.Signal, error) {
	fn, filePath := FindRender(sources)
	if fn == nil {
		files := make([]string, len(sources))
		for i, s := range sources {
			files[i] = s.FilePath
		}
		return nil, nil, errors.New(errors.CodeNoRenderHook).
			WithDetailf("no render() hook found for page %s; loaded files: %s", pc.PageID, strings.Join(files, ", "))
	}

	v, sig, err := call(ctx, r, ExportRender, filePath, func(c context.Context) (any, error) {
		return fn(c, pc)
	})
	if sig != nil || err != nil {
		return nil, sig, err
	}
	out, err := normalizeRender(v, filePath)
	if err != nil {
		return nil, nil, err
	}
	pc.Merge(out.PageContext)
	return out, nil, nil
}

func normalizeRender(v any, filePath string) (*Rendered, error) {
	out := &Rendered{FilePath: filePath}
	switch res := v.(type) {
	case nil:
		return out, nil
	case *render.Document:
		out.Document = res
		return out, nil
	case RenderResult:
		return normalizeResult(res, out, filePath)
	case *RenderResult:
		if res == nil {
			return out, nil
		}
		return normalizeResult(*res, out, filePath)
	case string:
		return nil, errors.New(errors.CodeStringRenderResult).
			WithDetailf("render() of %s returned a string", filePath)
	case io.Reader:
		out.Document = render.Stream(res)
		return out, nil
	}
	return nil, errors.New(errors.CodeInvalidExport).
		WithDetailf("render() of %s returned %T; expected nil, *render.Document or hook.RenderResult", filePath, v)
}

func normalizeResult(res RenderResult, out *Rendered, filePath string) (*Rendered, error) {
	out.PageContext = res.PageContext
	out.PageContextFunc = res.PageContextFunc
	switch doc := res.DocumentHTML.(type) {
	case nil:
	case *render.Document:
		out.Document = doc
	case string:
		return nil, errors.New(errors.CodeStringRenderResult).
			WithDetailf("render() of %s returned a string as DocumentHTML", filePath)
	default:
		return nil, errors.New(errors.CodeInvalidExport).
			WithDetailf("render() of %s returned DocumentHTML of type %T", filePath, doc)
	}
	return out, nil
}

// OnBeforeRoute runs the global onBeforeRoute hook.
func (r *Runner) OnBeforeRoute(ctx context.Context, pc *pagecontext.PageContext, fn OnBeforeRouteFunc, filePath string) (*BeforeRouteResult, *abort.Signal, error) {
	return call(ctx, r, ExportOnBeforeRoute, filePath, func(c context.Context) (*BeforeRouteResult, error) {
		return fn(c, pc)
	})
}

// Route runs a route function.
func (r *Runner) Route(ctx context.Context, pc *pagecontext.PageContext, fn RouteFunc, filePath string) (*RouteMatch, *abort.Signal, error) {
	return call(ctx, r, ExportRoute, filePath, func(c context.Context) (*RouteMatch, error) {
		return fn(c, pc)
	})
}

// Prerender runs a prerender hook.
func (r *Runner) Prerender(ctx context.Context, fn PrerenderFunc, filePath string) ([]PrerenderEntry, error) {
	entries, sig, err := call(ctx, r, ExportPrerender, filePath, func(c context.Context) ([]PrerenderEntry, error) {
		return fn(c)
	})
	if sig != nil {
		return nil, errors.Usagef("prerender() of %s returned %s; abort signals are not supported in prerender hooks", filePath, sig.Call)
	}
	return entries, err
}
