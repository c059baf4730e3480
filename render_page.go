package pagerender

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/pagerender/internal/errors"
	"github.com/vango-dev/pagerender/pkg/abort"
	"github.com/vango-dev/pagerender/pkg/assets"
	"github.com/vango-dev/pagerender/pkg/pagecontext"
	"github.com/vango-dev/pagerender/pkg/pagefile"
	"github.com/vango-dev/pagerender/pkg/render"
	"github.com/vango-dev/pagerender/pkg/response"
	"github.com/vango-dev/pagerender/pkg/router"
)

// PageContextURLSuffix marks the requests of client-side navigation: the
// client router fetches <url>/index.pageContext.json to get the page
// context of <url> without its HTML.
const PageContextURLSuffix = "/index.pageContext.json"

// Init is the initial page context of a render.
type Init struct {
	// URLOriginal is the request URL, including the base URL.
	URLOriginal string

	// HTTPHeaders are the request headers. Names are lower-cased.
	HTTPHeaders map[string]string

	// Extra is merged into the page context before routing. Keys that
	// would override built-in fields are dropped.
	Extra pagecontext.Addendum
}

// renderer carries the state of one RenderPage or PrerenderPage call.
type renderer struct {
	e         *Engine
	logger    *slog.Logger
	prerender bool
	chain     abort.Chain
}

// =============================================================================
// RenderPage
// =============================================================================

// RenderPage renders the page matching init.URLOriginal.
//
// The returned page context carries the response in HTTPResponse. It is nil
// when there is nothing to render: the URL is outside the base URL, no
// page matches and there is no error page, or the render hook returned no
// document. Hook errors are logged and answered with the error page; the
// returned error is reserved for usage errors, which must be fixed in the
// application.
func (e *Engine) RenderPage(ctx context.Context, init Init) (*pagecontext.PageContext, error) {
	r := e.newRenderer(false)
	return r.run(ctx, init, "pagerender.RenderPage", func(ctx context.Context, pc *pagecontext.PageContext) (*pagecontext.PageContext, error) {
		return r.renderPage(ctx, pc)
	})
}

func (e *Engine) newRenderer(prerender bool) *renderer {
	return &renderer{
		e:         e,
		logger:    e.logger.With("request_id", uuid.NewString()),
		prerender: prerender,
	}
}

// run wraps a render with its span, its metrics and the logging of usage
// errors.
func (r *renderer) run(ctx context.Context, init Init, spanName string, fn func(context.Context, *pagecontext.PageContext) (*pagecontext.PageContext, error)) (*pagecontext.PageContext, error) {
	start := time.Now()
	var span trace.Span
	if r.e.tracer != nil {
		ctx, span = r.e.tracer.Start(ctx, spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("pagerender.url", init.URLOriginal)))
		defer span.End()
	}

	pc, err := fn(ctx, newPageContext(init))

	status := 0
	if pc.HTTPResponse != nil {
		status = pc.HTTPResponse.StatusCode
	}
	if span != nil {
		span.SetAttributes(
			attribute.String("pagerender.page_id", pc.PageID),
			attribute.Int("http.status_code", status),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	if r.e.observer != nil {
		r.e.observer.ObserveRender(pc.PageID, status, time.Since(start))
	}
	if err != nil && errors.MarkLogged(err) {
		r.logger.Error("render failed", "url", init.URLOriginal, "err", err)
	}
	return pc, err
}

// newPageContext creates the page context of init. Client-side navigation
// requests are recognized by their URL suffix.
func newPageContext(init Init) *pagecontext.PageContext {
	urlOriginal, isNavigation := stripPageContextURL(init.URLOriginal)
	pc := pagecontext.New(urlOriginal)
	pc.IsClientSideNavigation = isNavigation
	pc.HTTPHeaders = make(map[string]string, len(init.HTTPHeaders))
	for k, v := range init.HTTPHeaders {
		pc.HTTPHeaders[strings.ToLower(k)] = v
	}
	if len(init.Extra) > 0 {
		pc.Merge(pagecontext.StripBuiltIns(init.Extra))
	}
	return pc
}

func stripPageContextURL(u string) (string, bool) {
	p, rest := u, ""
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		p, rest = u[:i], u[i:]
	}
	if !strings.HasSuffix(p, PageContextURLSuffix) {
		return u, false
	}
	p = strings.TrimSuffix(p, PageContextURLSuffix)
	if p == "" {
		p = "/"
	}
	return p + rest, true
}

// renderPage handles what comes before routing: ignored URLs, the base
// URL and configured redirects.
func (r *renderer) renderPage(ctx context.Context, pc *pagecontext.PageContext) (*pagecontext.PageContext, error) {
	if isIgnoredURL(pc.URLOriginal) {
		r.logger.Debug("URL ignored", "url", pc.URLOriginal)
		return pc, nil
	}
	if !pc.AddComputedURLProps(r.e.baseURL) {
		r.logger.Debug("URL outside of base URL", "url", pc.URLOriginal, "base_url", r.e.baseURL)
		return pc, nil
	}
	if !pc.IsClientSideNavigation {
		if target := router.ResolveRedirects(r.e.redirects, pc.URLPathname); target != "" {
			pc.HTTPResponse = response.NewRedirect(r.e.withBase(target), http.StatusMovedPermanently)
			return pc, nil
		}
		if target := r.e.trailingSlashRedirect(pc); target != "" {
			pc.HTTPResponse = response.NewRedirect(target, http.StatusMovedPermanently)
			return pc, nil
		}
	}
	return r.render(ctx, pc)
}

func isIgnoredURL(u string) bool {
	p, _, _ := strings.Cut(u, "?")
	return strings.HasSuffix(p, "/favicon.ico")
}

// render routes and renders pc, following the abort signals raised on the
// way. Every rewrite forks the page context: the returned context is the
// one that rendered last.
func (r *renderer) render(ctx context.Context, pc *pagecontext.PageContext) (*pagecontext.PageContext, error) {
	for {
		matched, sig, err := r.renderURL(ctx, pc)
		if err != nil {
			return r.renderAfterError(ctx, pc, err)
		}
		if sig == nil {
			if !matched {
				r.logger.Debug("no page matches URL", "url", pc.URLPathname)
				return r.renderStatus(ctx, pc, http.StatusNotFound, nil)
			}
			return pc, nil
		}

		if err := r.chain.Record(sig); err != nil {
			return pc, err
		}
		r.intercepted(pc, sig)

		switch sig.Kind {
		case abort.KindRedirect:
			r.redirect(pc, sig)
			return pc, nil
		case abort.KindRewrite:
			next := pc.Fork()
			next.SetURLRewrite(sig.URL)
			if sig.Reason != nil {
				next.AbortReason = sig.Reason
			}
			if !next.AddComputedURLProps("") {
				return pc, errors.New(errors.CodeInvalidAbort).
					WithDetailf("%s: %q is not a valid URL", sig.Call, sig.URL)
			}
			pc = next
		default:
			return r.renderStatus(ctx, pc, sig.StatusCode, sig)
		}
	}
}

// renderURL routes pc and executes the matching page. It reports whether a
// page matched.
func (r *renderer) renderURL(ctx context.Context, pc *pagecontext.PageContext) (bool, *abort.Signal, error) {
	routes, err := r.e.Routes(ctx)
	if err != nil {
		return false, nil, err
	}
	res, err := r.e.router.Resolve(ctx, pc, routes)
	if err != nil {
		if sig, ok := abort.As(err); ok {
			return true, sig, nil
		}
		return false, nil, err
	}
	if res == nil {
		return false, nil, nil
	}
	pc.PageID = res.PageID
	pc.RouteParams = res.RouteParams

	sig, err := r.executePage(ctx, pc, http.StatusOK, false)
	return true, sig, err
}

// executePage loads the files of pc.PageID, runs its hooks and sets the
// response. The error page skips the guard hook.
func (r *renderer) executePage(ctx context.Context, pc *pagecontext.PageContext, status int, isErrorPage bool) (*abort.Signal, error) {
	loaded, err := pagefile.LoadPageFiles(ctx, r.e.registry, pc.PageID, pagefile.EnvServer)
	if err != nil {
		return nil, err
	}
	if r.logger.Enabled(ctx, slog.LevelDebug) {
		files := make([]string, len(loaded.Files))
		for i, f := range loaded.Files {
			files[i] = f.FilePath
		}
		r.logger.Debug("page files loaded", "page_id", pc.PageID, "files", files)
	}
	pc.Exports = loaded.Exports
	pc.ExportsAll = loaded.ExportsAll
	pc.PassToClient = loaded.PassToClient

	if !isErrorPage {
		if sig, err := r.e.runner.Guard(ctx, pc, loaded.Sources); sig != nil || err != nil {
			return sig, err
		}
	}
	if sig, err := r.e.runner.OnBeforeRender(ctx, pc, loaded.Sources); sig != nil || err != nil {
		return sig, err
	}

	if pc.IsClientSideNavigation {
		body, err := pc.SerializeForClient()
		if err != nil {
			return nil, err
		}
		pc.HTTPResponse = response.New(body, status, response.ContentTypeJSON)
		return nil, nil
	}

	rendered, sig, err := r.e.runner.Render(ctx, pc, loaded.Sources)
	if sig != nil || err != nil {
		return sig, err
	}
	if rendered.Document == nil {
		r.logger.Debug("render hook returned no document", "page_id", pc.PageID, "file", rendered.FilePath)
		return nil, nil
	}
	if r.prerender && rendered.Document.HasStream() {
		return nil, errors.New(errors.CodePrerenderStream).
			WithDetailf("render() of %s returned a stream while prerendering %s", rendered.FilePath, pc.URLOriginal)
	}

	doc, err := assets.InjectDocument(ctx, rendered.Document, assets.Injection{
		URLPathname: pc.URLPathname,
		Assets:      r.e.pageAssets(pc.PageID),
		Transformer: r.e.transformer,
		PageContext: func(ctx context.Context) (string, error) {
			if rendered.PageContextFunc != nil {
				a, err := rendered.PageContextFunc(ctx)
				if err != nil {
					return "", err
				}
				pc.Merge(a)
			}
			return pc.SerializeForClient()
		},
	})
	if err != nil {
		return nil, err
	}
	resp, err := r.respond(pc, doc, status)
	if err != nil {
		return nil, err
	}
	pc.HTTPResponse = resp
	return nil, nil
}

func (r *renderer) respond(pc *pagecontext.PageContext, doc *render.Document, status int) (*response.HTTPResponse, error) {
	if !doc.HasStream() {
		html, err := doc.String()
		if err != nil {
			return nil, err
		}
		return response.New(html, status, response.ContentTypeHTML), nil
	}
	return response.NewStream(doc.Reader(), status, response.ContentTypeHTML, func(err error) {
		pc.SetErrorWhileStreaming(err)
		if errors.MarkLogged(err) {
			r.logger.Error("error while streaming", "url", pc.URLOriginal, "page_id", pc.PageID, "err", err)
		}
	}), nil
}

// intercepted reports a consumed abort signal. Signals are control flow,
// never errors.
func (r *renderer) intercepted(pc *pagecontext.PageContext, sig *abort.Signal) {
	if r.e.observer != nil {
		r.e.observer.ObserveAbort(sig.Kind.String(), sig.StatusCode)
	}
	if !r.e.production {
		r.logger.Debug("abort intercepted", "call", sig.Call, "url", pc.URLOriginal, "page_id", pc.PageID)
	}
}

// redirect answers with a redirect. Client-side navigation gets the target
// in the JSON payload instead; the client router follows it.
func (r *renderer) redirect(pc *pagecontext.PageContext, sig *abort.Signal) {
	target := r.e.withBase(sig.URL)
	if !pc.IsClientSideNavigation {
		pc.HTTPResponse = response.NewRedirect(target, sig.StatusCode)
		return
	}
	body, _ := json.Marshal(map[string]any{
		"_urlRedirect": map[string]any{"url": target, "statusCode": sig.StatusCode},
	})
	pc.HTTPResponse = response.New(string(body), http.StatusOK, response.ContentTypeJSON)
}

// =============================================================================
// Helpers
// =============================================================================

// withBase prefixes absolute paths with the base URL. Full URLs are kept.
func (e *Engine) withBase(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return target
	}
	base := strings.TrimRight(e.baseURL, "/")
	if base == "" {
		return target
	}
	return base + target
}

func (e *Engine) trailingSlashRedirect(pc *pagecontext.PageContext) string {
	if e.trailingSlash == nil {
		return ""
	}
	p := pc.URLPathname
	if p == "/" || path.Ext(p) != "" {
		return ""
	}
	hasSlash := strings.HasSuffix(p, "/")
	switch {
	case *e.trailingSlash && !hasSlash:
		p += "/"
	case !*e.trailingSlash && hasSlash:
		p = strings.TrimRight(p, "/")
		if p == "" {
			return ""
		}
	default:
		return ""
	}
	target := e.withBase(p)
	if u, err := url.Parse(pc.URLOriginal); err == nil && u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return target
}

// pageAssets computes the assets of a page: the code of its client and
// view files, plus the styles and static assets imported by its server
// files.
func (e *Engine) pageAssets(pageID string) []assets.PageAsset {
	var (
		deps    []assets.ClientDependency
		entries []string
	)
	for _, f := range e.registry.FindFilesForPage(pageID, pagefile.EnvClient) {
		deps = append(deps, assets.ClientDependency{ID: f.FilePath})
		if f.FileType == pagefile.TypeClient && len(entries) == 0 {
			entries = append(entries, f.FilePath)
		}
	}
	for _, f := range e.registry.FindFilesOfType(pageID, pagefile.TypeServer) {
		deps = append(deps, assets.ClientDependency{ID: f.FilePath, OnlyAssets: true})
	}
	return assets.GetPageAssets(assets.Input{
		Production:    e.production,
		Manifest:      e.manifest,
		Graph:         e.graph,
		Dependencies:  deps,
		ClientEntries: entries,
		BaseURL:       e.baseURL,
		BaseAssets:    e.baseAssets,
	})
}
