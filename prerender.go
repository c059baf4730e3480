package pagerender

import (
	"context"
	"net/http"

	"github.com/vango-dev/pagerender/internal/errors"
	"github.com/vango-dev/pagerender/pkg/pagecontext"
)

// PrerenderResult is a page rendered ahead of time.
type PrerenderResult struct {
	PageContext *pagecontext.PageContext

	// DocumentHTML is the full HTML document.
	DocumentHTML string

	// PageContextJSON is the payload client-side navigation fetches for
	// the page.
	PageContextJSON string
}

// PrerenderPage renders a page to a string. Unlike RenderPage it fails on
// hook errors instead of rendering the error page, and render hooks must
// not return streams. A URL that would render the 404 page is a usage
// error, whether or not the application has an error page.
func (e *Engine) PrerenderPage(ctx context.Context, init Init) (*PrerenderResult, error) {
	r := e.newRenderer(true)
	pc, err := r.run(ctx, init, "pagerender.PrerenderPage", func(ctx context.Context, pc *pagecontext.PageContext) (*pagecontext.PageContext, error) {
		return r.renderPage(ctx, pc)
	})
	if err != nil {
		return nil, err
	}
	if (pc.Is404 != nil && *pc.Is404) || (pc.PageID == "" && pc.HTTPResponse == nil) {
		return nil, errors.New(errors.CodePrerenderNoPage).
			WithDetailf("%s matches no page", pc.URLOriginal)
	}
	return prerendered(pc)
}

// RenderStatic404Page renders the error page as a 404 page, to be served
// by static hosts for unknown URLs. It returns nil when the application has
// no error page.
func (e *Engine) RenderStatic404Page(ctx context.Context) (*PrerenderResult, error) {
	if _, err := e.registry.Files(ctx); err != nil {
		return nil, err
	}
	if e.registry.ErrorPageID() == "" {
		return nil, nil
	}

	r := e.newRenderer(true)
	pc, err := r.run(ctx, Init{URLOriginal: "/fake-404-url"}, "pagerender.RenderStatic404Page", func(ctx context.Context, pc *pagecontext.PageContext) (*pagecontext.PageContext, error) {
		pc.AddComputedURLProps("")
		return r.renderErrorPage(ctx, pc, http.StatusNotFound, nil, nil)
	})
	if err != nil {
		return nil, err
	}
	return prerendered(pc)
}

func prerendered(pc *pagecontext.PageContext) (*PrerenderResult, error) {
	resp := pc.HTTPResponse
	if resp == nil {
		return nil, errors.New(errors.CodePrerenderNoDocument).
			WithDetailf("page %s rendered no document for %s", pc.PageID, pc.URLOriginal)
	}
	if loc := resp.Header.Get("Location"); loc != "" {
		return nil, errors.Usagef("prerendering %s redirected to %s; redirects cannot be prerendered", pc.URLOriginal, loc)
	}
	html, err := resp.Body()
	if err != nil {
		return nil, err
	}
	data, err := pc.SerializeForClient()
	if err != nil {
		return nil, err
	}
	return &PrerenderResult{
		PageContext:     pc,
		DocumentHTML:    html,
		PageContextJSON: data,
	}, nil
}
